// Package chat relays room events between connections and keeps the public
// roster in sync with room membership.
package chat

import (
	"encoding/json"

	"github.com/Tyrowin/roomchat/internal/rooms"
)

// Event names exchanged with clients
const (
	EventCreateRoom        = "create_room"
	EventCreateRoomSuccess = "create_room_success"
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventMessage           = "message"
	EventOnMessage         = "on_message"
	EventChangeRooms       = "change_rooms"
)

// Handshake keys read from the connection request
const (
	HandshakeUserID = "user_id"
	HandshakeRoomID = "room_id"
)

// Transport is the connection layer the relay drives. Every send is best effort
// and must not block; sending to an unknown connection or an empty room does nothing.
type Transport interface {
	// Join subscribes a connection to a room
	Join(connID, roomID string)
	// Leave removes a connection from a room
	Leave(connID, roomID string)
	// Emit sends an event to one connection
	Emit(connID, event string, data json.RawMessage)
	// Broadcast sends an event to every connection
	Broadcast(event string, data json.RawMessage)
	// EmitToRoom sends an event to every subscriber of a room except one connection
	EmitToRoom(roomID, exceptConnID, event string, data json.RawMessage)
	// Snapshot returns the current room subscriptions and live connections
	Snapshot() rooms.Snapshot
}
