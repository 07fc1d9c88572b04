// Package server coordinates client registration, room subscriptions, event
// delivery, and connection cleanup via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/utils"
)

// EventHandler receives the lifecycle and inbound events of a hub's clients.
// Every method is called from the hub's Run goroutine, one at a time, in the
// order the events arrived.
type EventHandler interface {
	OnConnect(connID string, handshake map[string]string)
	OnEvent(connID, event string, data json.RawMessage)
	OnDisconnect(connID, reason string)
}

type nopHandler struct{}

func (nopHandler) OnConnect(string, map[string]string)      {}
func (nopHandler) OnEvent(string, string, json.RawMessage) {}
func (nopHandler) OnDisconnect(string, string)             {}

type inboundEvent struct {
	client   *Client
	envelope Envelope
}

type departure struct {
	client *Client
	reason string
}

// Hub manages WebSocket client connections and their room subscriptions.
// The registry is only changed by the Run goroutine; the mutex lets other
// goroutines read a consistent snapshot.
type Hub struct {
	name       string
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	handler    EventHandler
	register   chan *Client
	unregister chan departure
	inbound    chan inboundEvent
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates a hub that accepts connections and discards their events until
// a handler is set. name labels the hub in logs.
func NewHub(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		name:       name,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		handler:    nopHandler{},
		register:   make(chan *Client),
		unregister: make(chan departure),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.With("hub", name),
	}
}

// SetHandler installs the handler for client events. It must be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	if handler == nil {
		handler = nopHandler{}
	}
	h.handler = handler
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("Received nil client registration; skipping")
				continue
			}
			h.registerClient(client)

		case d := <-h.unregister:
			h.unregisterClient(d.client, d.reason)

		case ev := <-h.inbound:
			if !h.isRegistered(ev.client) {
				continue
			}
			h.handler.OnEvent(ev.client.id, ev.envelope.Event, ev.envelope.Data)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("Client registered",
		"conn", client.id,
		"addr", client.addr,
		"clients", clientCount)

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	h.handler.OnConnect(client.id, client.handshake)
}

// unregisterClient drops the client and its subscriptions before the handler
// sees the disconnect. Repeated departures of the same client are ignored.
func (h *Hub) unregisterClient(client *Client, reason string) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	for roomID := range client.rooms {
		h.removeFromRoom(client, roomID)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.closeSend()

	h.logger.Info("Client unregistered",
		"conn", client.id,
		"addr", client.addr,
		"reason", reason,
		"clients", clientCount)

	h.handler.OnDisconnect(client.id, reason)
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	current, ok := h.clients[client.id]
	return ok && current == client
}

// removeFromRoom must be called with the write lock held.
func (h *Hub) removeFromRoom(client *Client, roomID string) {
	delete(client.rooms, roomID)
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, client.id)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// Join subscribes a connection to a room. Unknown connections are ignored.
func (h *Hub) Join(connID, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = client
	client.rooms[roomID] = struct{}{}
}

// Leave removes a connection from a room.
func (h *Hub) Leave(connID, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if client, ok := h.clients[connID]; ok {
		h.removeFromRoom(client, roomID)
	}
}

// Emit sends an event to one connection.
func (h *Hub) Emit(connID, event string, data json.RawMessage) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}

	h.mutex.RLock()
	client, exists := h.clients[connID]
	h.mutex.RUnlock()
	if !exists {
		return
	}

	h.deliver([]*Client{client}, frame)
}

// Broadcast sends an event to every connection.
func (h *Hub) Broadcast(event string, data json.RawMessage) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.deliver(h.getClientSnapshot(), frame)
}

// EmitToRoom sends an event to every subscriber of roomID except exceptConnID.
func (h *Hub) EmitToRoom(roomID, exceptConnID, event string, data json.RawMessage) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}

	h.mutex.RLock()
	members := h.rooms[roomID]
	targets := make([]*Client, 0, len(members))
	for id, client := range members {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	h.deliver(targets, frame)
}

// Snapshot returns the subscriber count of every non-empty room together with
// the ids of all live connections.
func (h *Hub) Snapshot() rooms.Snapshot {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	snap := rooms.Snapshot{
		Rooms:       make(map[string]int, len(h.rooms)),
		Connections: make(map[string]struct{}, len(h.clients)),
	}
	for roomID, members := range h.rooms {
		snap.Rooms[roomID] = len(members)
	}
	for id := range h.clients {
		snap.Connections[id] = struct{}{}
	}
	return snap
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) encode(event string, data json.RawMessage) ([]byte, bool) {
	frame, err := encodeEnvelope(event, data)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", utils.SanitizeLogString(event), "error", err)
		return nil, false
	}
	return frame, true
}

// deliver queues frame for each target. A client whose queue is full is closed
// and leaves through the normal unregister path once its pumps stop.
func (h *Hub) deliver(targets []*Client, frame []byte) {
	for _, client := range targets {
		if h.safeSend(client, frame) {
			continue
		}
		if client.closeSend() {
			h.logger.Warn("Closing client with full send buffer", "conn", client.id, "addr", client.addr)
		}
	}
}

func (h *Hub) safeSend(client *Client, message []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in safeSend", "conn", client.id, "panic", r)
			sent = false
		}
	}()

	if client.closed.Load() {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every send queue and connection so both pumps exit.
func (h *Hub) shutdownClients() {
	h.logger.Info("Shutting down all client connections...")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		client.closeSend()
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.logger.Warn("Error closing client connection", "conn", client.id, "addr", client.addr, "error", err)
		}
	}

	h.logger.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the event loop, closes all connections and waits for the
// client goroutines to finish, giving up after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown...")

	h.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		h.logger.Warn("Hub shutdown timeout reached before the event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-timer.C:
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// enqueue hands an inbound event to the loop unless the hub is shutting down.
func (h *Hub) enqueue(ev inboundEvent) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave reports a client departure to the loop unless the hub is shutting down.
func (h *Hub) leave(client *Client, reason string) {
	select {
	case h.unregister <- departure{client: client, reason: reason}:
	case <-h.ctx.Done():
	}
}

// admit hands a new client to the loop. It fails once the hub is shutting down.
func (h *Hub) admit(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}
