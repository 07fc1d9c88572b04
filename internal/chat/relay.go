package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/utils"
)

const storeTimeout = 3 * time.Second

// session is the relay's view of one connection
type session struct {
	id            string
	userID        string
	handshakeRoom string
	// currentRoom is the room of the last create or join; it is not cleared on leave
	currentRoom string
	// data is the last create/join payload, or the handshake before either.
	// The leave notice reads clientName from it.
	data json.RawMessage
}

// room returns the tracked room, or the handshake room when none was joined
func (s *session) room() string {
	if s.currentRoom != "" {
		return s.currentRoom
	}
	return s.handshakeRoom
}

// Relay handles the events of every chat connection. All methods must be called
// from the transport's single event loop.
type Relay struct {
	transport Transport
	directory *rooms.Directory
	logger    *slog.Logger
	sessions  map[string]*session
}

// NewRelay creates a relay that drives transport and records rooms in directory
func NewRelay(transport Transport, directory *rooms.Directory, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		transport: transport,
		directory: directory,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

// OnConnect records a new connection, subscribes it to its handshake room and
// sends it the current roster.
func (r *Relay) OnConnect(connID string, handshake map[string]string) {
	s := &session{
		id:            connID,
		userID:        handshake[HandshakeUserID],
		handshakeRoom: handshake[HandshakeRoomID],
	}
	blob, err := json.Marshal(map[string]string{
		HandshakeUserID: s.userID,
		HandshakeRoomID: s.handshakeRoom,
	})
	if err != nil {
		r.logger.Error("Failed to encode handshake", "conn", connID, "error", err)
	}
	s.data = blob
	r.sessions[connID] = s

	if s.handshakeRoom != "" {
		r.transport.Join(connID, s.handshakeRoom)
	}

	r.logger.Info("Chat connection opened",
		"conn", connID,
		"user", utils.SanitizeLogString(s.userID),
		"room", utils.SanitizeLogString(s.handshakeRoom))

	if roster, ok := r.encodeRoster(); ok {
		r.transport.Emit(connID, EventChangeRooms, roster)
	}
}

// OnEvent dispatches one client event. A payload that cannot be handled is
// logged and dropped; the connection stays open.
func (r *Relay) OnEvent(connID, event string, data json.RawMessage) {
	s, ok := r.sessions[connID]
	if !ok {
		r.logger.Warn("Event from unknown connection", "conn", connID, "event", event)
		return
	}

	var err error
	switch event {
	case EventCreateRoom:
		err = r.createRoom(s, data)
	case EventJoinRoom:
		err = r.joinRoom(s, data)
	case EventLeaveRoom:
		err = r.leaveRoom(s, data)
	case EventMessage:
		err = r.relay(s, EventMessage, data, false)
	case EventOnMessage:
		err = r.relay(s, EventOnMessage, data, true)
	default:
		r.logger.Debug("Ignoring unknown event", "conn", connID, "event", utils.SanitizeLogString(event))
		return
	}

	if err != nil {
		r.logger.Warn("Dropping event",
			"conn", connID,
			"event", event,
			"payload", utils.SanitizeLogString(string(data)),
			"error", err)
	}
}

// OnDisconnect sends the leave notice for a closed connection and rebroadcasts
// the roster. The transport has already dropped the connection's subscriptions.
func (r *Relay) OnDisconnect(connID, reason string) {
	s, ok := r.sessions[connID]
	if !ok {
		r.broadcastRoster()
		return
	}
	delete(r.sessions, connID)

	roomID := s.room()
	if roomID != "" {
		r.transport.Leave(connID, roomID)
		r.notify(roomID, connID, leftNotice(roomID, s.userID, connID))
	}

	r.logger.Info("Chat connection closed",
		"conn", connID,
		"room", utils.SanitizeLogString(roomID),
		"reason", reason)

	r.broadcastRoster()
}

// Roster computes the roster for the transport's current subscriptions
func (r *Relay) Roster(ctx context.Context) ([]rooms.RoomProfile, error) {
	return r.directory.Roster(ctx, r.transport.Snapshot())
}

// Room looks up one room with its live user count
func (r *Relay) Room(ctx context.Context, id string) (rooms.RoomProfile, error) {
	return r.directory.Room(ctx, id, r.transport.Snapshot())
}

func (r *Relay) createRoom(s *session, data json.RawMessage) error {
	payload, err := decodeRoomPayload(data)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		return ErrMissingRoomID
	}

	r.transport.Join(s.id, payload.ID)
	s.currentRoom = payload.ID
	s.data = data

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	created, err := r.directory.Create(ctx, payload.Profile(s.id))
	if err != nil {
		r.logger.Error("Failed to record room", "conn", s.id, "room", utils.SanitizeLogString(payload.ID), "error", err)
	}

	r.transport.Emit(s.id, EventCreateRoomSuccess, data)
	r.broadcastRoster()

	r.logger.Info("Room created",
		"conn", s.id,
		"room", utils.SanitizeLogString(payload.ID),
		"new", created)
	return nil
}

func (r *Relay) joinRoom(s *session, data json.RawMessage) error {
	payload, err := decodeRoomPayload(data)
	if err != nil {
		return err
	}

	roomID := payload.ID
	if roomID == "" {
		roomID = s.handshakeRoom
	}
	if roomID == "" {
		return ErrMissingRoomID
	}

	r.transport.Join(s.id, roomID)
	s.currentRoom = roomID
	s.data = data

	r.notify(roomID, s.id, enteredNotice(roomID, payload.ClientName, s.id))

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := r.directory.ClaimOwner(ctx, rooms.WaitingRoomID, s.id); err != nil {
		r.logger.Error("Failed to update waiting room owner", "conn", s.id, "error", err)
	}

	r.broadcastRoster()

	r.logger.Info("Room joined", "conn", s.id, "room", utils.SanitizeLogString(roomID))
	return nil
}

func (r *Relay) leaveRoom(s *session, data json.RawMessage) error {
	roomID, err := decodeRoomRef(data)
	if err != nil {
		return err
	}
	if roomID == "" {
		return ErrMissingRoomID
	}

	r.transport.Leave(s.id, roomID)
	r.notify(roomID, s.id, leftNotice(roomID, clientNameOf(s.data), s.id))
	r.broadcastRoster()

	r.logger.Info("Room left", "conn", s.id, "room", utils.SanitizeLogString(roomID))
	return nil
}

// relay forwards a chat payload verbatim to the other members of its room.
// withAlt accepts room_id as well as roomId.
func (r *Relay) relay(s *session, event string, data json.RawMessage, withAlt bool) error {
	var payload ChatPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	target := payload.RoomID
	if withAlt {
		target = payload.Target()
	}
	if target == "" {
		return ErrMissingRoomID
	}

	r.logger.Debug("Relaying message",
		"conn", s.id,
		"event", event,
		"room", utils.SanitizeLogString(target))

	r.transport.EmitToRoom(target, s.id, event, data)
	return nil
}

// notify sends a system notice to a room, skipping the connection that caused it
func (r *Relay) notify(roomID, exceptConnID string, notice Notice) {
	data, err := json.Marshal(notice)
	if err != nil {
		r.logger.Error("Failed to encode notice", "room", utils.SanitizeLogString(roomID), "error", err)
		return
	}
	r.transport.EmitToRoom(roomID, exceptConnID, EventMessage, data)
}

func (r *Relay) broadcastRoster() {
	if roster, ok := r.encodeRoster(); ok {
		r.transport.Broadcast(EventChangeRooms, roster)
	}
}

func (r *Relay) encodeRoster() (json.RawMessage, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	roster, err := r.Roster(ctx)
	if err != nil {
		r.logger.Error("Room list unavailable, sending waiting room only", "error", err)
	}

	data, err := json.Marshal(roster)
	if err != nil {
		r.logger.Error("Failed to encode roster", "error", err)
		return nil, false
	}
	return data, true
}
