package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Tyrowin/roomchat/internal/rooms"
)

var (
	// ErrMalformedPayload is returned when an event body cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingRoomID is returned when an event does not name a room
	ErrMissingRoomID = errors.New("missing room id")
)

// SystemSender is the "from" value of notices written by the relay
const SystemSender = "(SYSTEM)"

// RoomPayload is the body of create_room and join_room
type RoomPayload struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	ClientName      string       `json:"clientName,omitempty"`
	LastMessage     string       `json:"lastMessage"`
	Status          rooms.Status `json:"status"`
	UnreadChatCount int          `json:"unreadChatCount,omitempty"`
}

// Profile converts the payload into the stored room description
func (p RoomPayload) Profile(sid string) rooms.RoomProfile {
	return rooms.RoomProfile{
		ID:              p.ID,
		Name:            p.Name,
		LastMessage:     p.LastMessage,
		Status:          p.Status,
		UnreadChatCount: p.UnreadChatCount,
		SID:             sid,
	}
}

// roomFields is a create_room or join_room body with every field kept raw.
// Clients attach whatever they like to a room, so only the body itself has to
// be a JSON object; a field of an unexpected type reads as its zero value.
type roomFields map[string]json.RawMessage

func decodeRoomFields(raw json.RawMessage) (roomFields, error) {
	var fields roomFields
	if err := decode(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedPayload)
	}
	return fields, nil
}

// text returns a string field. Numbers are returned as written.
func (f roomFields) text(key string) string {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// count returns a non-negative whole number field. Numeric strings are accepted.
func (f roomFields) count(key string) int {
	text := f.text(key)
	if text == "" {
		return 0
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}

func (f roomFields) payload() RoomPayload {
	return RoomPayload{
		ID:              f.text("id"),
		Name:            f.text("name"),
		ClientName:      f.text("clientName"),
		LastMessage:     f.text("lastMessage"),
		Status:          rooms.Status(f.text("status")),
		UnreadChatCount: f.count("unreadChatCount"),
	}
}

// decodeRoomPayload reads a create_room or join_room body
func decodeRoomPayload(raw json.RawMessage) (RoomPayload, error) {
	fields, err := decodeRoomFields(raw)
	if err != nil {
		return RoomPayload{}, err
	}
	return fields.payload(), nil
}

// clientNameOf returns the clientName carried by a stored body, or "" when the
// body has none.
func clientNameOf(blob json.RawMessage) string {
	fields, err := decodeRoomFields(blob)
	if err != nil {
		return ""
	}
	return fields.text("clientName")
}

// ChatPayload holds the routing fields of message and on_message bodies.
// Any other fields travel untouched.
type ChatPayload struct {
	RoomID    string `json:"roomId"`
	RoomIDAlt string `json:"room_id"`
}

// Target returns the room a chat payload is addressed to
func (p ChatPayload) Target() string {
	if p.RoomID != "" {
		return p.RoomID
	}
	return p.RoomIDAlt
}

// Notice is a message written by the relay itself
type Notice struct {
	RoomID string `json:"roomId"`
	From   string `json:"from"`
	Text   string `json:"text"`
}

func enteredNotice(roomID, name, connID string) Notice {
	return Notice{RoomID: roomID, From: SystemSender, Text: fmt.Sprintf("입장 : %s (%s)", name, connID)}
}

func leftNotice(roomID, name, connID string) Notice {
	return Notice{RoomID: roomID, From: SystemSender, Text: fmt.Sprintf("퇴실 : %s (%s)", name, connID)}
}

// unwrap returns the JSON document carried by raw. Clients may send the document
// itself or the document encoded as a JSON string.
func unwrap(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	if trimmed[0] != '"' {
		return trimmed, nil
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return json.RawMessage(inner), nil
}

// decode unmarshals a JSON object body into v
func decode(raw json.RawMessage, v any) error {
	doc, err := unwrap(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// decodeRoomRef extracts the room id of a leave_room body: a bare JSON string,
// or an object carrying id or roomId.
func decodeRoomRef(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		doc := bytes.TrimSpace([]byte(id))
		if len(doc) == 0 || doc[0] != '{' {
			return id, nil
		}
		trimmed = doc
	}

	var ref struct {
		ID     string `json:"id"`
		RoomID string `json:"roomId"`
	}
	if err := decode(trimmed, &ref); err != nil {
		return "", err
	}
	if ref.ID != "" {
		return ref.ID, nil
	}
	return ref.RoomID, nil
}
