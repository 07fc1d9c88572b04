// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/roomchat/internal/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Disconnect reasons passed to the hub's handler
const (
	ReasonClientClosed = "client closed"
	ReasonTooLarge     = "message too large"
	ReasonReadError    = "read error"
)

// Client represents one WebSocket connection registered with a hub.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	addr      string
	handshake map[string]string
	// rooms is guarded by hub.mutex
	rooms          map[string]struct{}
	closed         atomic.Bool
	closeOnce      sync.Once
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
}

// NewClient creates a client with a fresh connection id. handshake carries the
// values sent with the upgrade request; it may be nil.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, handshake map[string]string) *Client {
	cfg := CurrentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if handshake == nil {
		handshake = map[string]string{}
	}

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		handshake:      handshake,
		rooms:          make(map[string]struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
	}
}

// newLimiter allows Burst messages at once, refilled evenly over RefillInterval.
func newLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}

// ID returns the connection id assigned at creation.
func (c *Client) ID() string {
	return c.id
}

// closeSend closes the send queue once. It reports whether this call closed it.
func (c *Client) closeSend() bool {
	closedNow := false
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
		closedNow = true
	})
	return closedNow
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Warn("Error setting initial read deadline", "conn", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.logger.Warn("Error setting read deadline in pong handler", "conn", c.id, "error", err)
		}
		return nil
	})
}

// readErrorReason logs a read failure and returns the disconnect reason for it.
func (c *Client) readErrorReason(err error) string {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.hub.logger.Warn("Message exceeded maximum size", "conn", c.id, "limit", c.maxMessageSize)
		return ReasonTooLarge
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.hub.logger.Debug("Client disconnected", "conn", c.id, "error", err)
		return ReasonClientClosed
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.hub.logger.Debug("Client connection closed", "conn", c.id, "error", err)
		return ReasonClientClosed
	}

	c.hub.logger.Warn("WebSocket read error", "conn", c.id, "addr", c.addr, "error", err)
	return ReasonReadError
}

// allowMessage reports whether the client is within its rate limit.
func (c *Client) allowMessage() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.hub.logger.Warn("Rate limit exceeded; discarding message",
			"conn", c.id,
			"burst", c.rateLimit.Burst,
			"interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes a frame and hands it to the hub. It returns false
// when the hub is shutting down.
func (c *Client) processMessage(raw []byte) bool {
	env, err := decodeEnvelope(raw)
	if err != nil {
		c.hub.logger.Warn("Invalid frame",
			"conn", c.id,
			"frame", utils.SanitizeLogString(string(raw)),
			"error", err)
		return true
	}
	return c.hub.enqueue(inboundEvent{client: c, envelope: env})
}

func (c *Client) readPump() {
	reason := ReasonClientClosed
	defer func() {
		c.hub.leave(c, reason)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.logger.Warn("Error closing connection in readPump", "conn", c.id, "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			reason = c.readErrorReason(err)
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if !c.allowMessage() {
			continue
		}

		if !c.processMessage(raw) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.hub.logger.Warn("Error closing connection in writePump", "conn", c.id, "error", err)
	}
}

// handleMessage writes one queued frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.logger.Warn("Error setting write deadline", "conn", c.id, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.logger.Warn("Error writing message", "conn", c.id, "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.hub.logger.Warn("Error writing close message", "conn", c.id, "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.logger.Warn("Error setting write deadline for ping", "conn", c.id, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.hub.logger.Warn("Error writing ping message", "conn", c.id, "error", err)
		return false
	}
	return true
}
