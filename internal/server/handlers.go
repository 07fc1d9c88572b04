// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the roster endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/utils"
	"github.com/gorilla/websocket"
)

// Handshake query parameters copied from the upgrade request
var handshakeParams = []string{"user_id", "room_id"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

const roomsTimeout = 3 * time.Second

// RosterSource provides the current public room roster and single room lookups.
type RosterSource interface {
	Roster(ctx context.Context) ([]rooms.RoomProfile, error)
	Room(ctx context.Context, id string) (rooms.RoomProfile, error)
}

// ServeHTTP upgrades the request to a WebSocket and registers the connection
// with the hub. Upgrades from disallowed origins are answered with 403.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	handshake := make(map[string]string, len(handshakeParams))
	query := r.URL.Query()
	for _, key := range handshakeParams {
		handshake[key] = query.Get(key)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h, r.RemoteAddr, handshake)

	// The hub launches the pump goroutines once the client is registered.
	if !h.admit(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Room chat server is running!")
}

// WelcomeHandler answers the greeting endpoint.
func WelcomeHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, "Welcome~!")
}

// RoomsHandler returns the current roster as JSON. When the room list is
// unavailable the roster holds only the waiting room.
func RoomsHandler(source RosterSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), roomsTimeout)
		defer cancel()

		roster, err := source.Roster(ctx)
		if err != nil {
			logger.Error("Room list unavailable for roster request", "error", err)
		}

		writeJSON(w, logger, http.StatusOK, roster)
	}
}

// RoomHandler returns one room, looked up by the {id} path value.
func RoomHandler(source RosterSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.PathValue("id")

		ctx, cancel := context.WithTimeout(r.Context(), roomsTimeout)
		defer cancel()

		room, err := source.Room(ctx, id)
		switch {
		case errors.Is(err, rooms.ErrNotFound):
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		case err != nil:
			logger.Error("Room lookup failed", "room", utils.SanitizeLogString(id), "error", err)
			http.Error(w, "Room list unavailable", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, logger, http.StatusOK, room)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error writing JSON response", "error", err)
	}
}
