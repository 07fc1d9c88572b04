// Package rooms holds the room list created by clients and computes the
// public roster broadcast to every connection.
package rooms

// Status is the display state a client attaches to a room.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// WaitingRoomID identifies the room every client sits in before choosing another.
const WaitingRoomID = "global"

// RoomProfile describes a room as clients see it in the roster.
// UserCount is derived from live subscriptions whenever a roster is computed;
// the stored value is never authoritative.
type RoomProfile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	LastMessage     string `json:"lastMessage"`
	Status          Status `json:"status"`
	UnreadChatCount int    `json:"unreadChatCount,omitempty"`
	UserCount       int    `json:"userCount"`
	// SID is the connection that last changed this entry. Informational only.
	SID string `json:"sid,omitempty"`
}

// WaitingRoom returns the fixed waiting room descriptor with a zero user count.
func WaitingRoom() RoomProfile {
	return RoomProfile{
		ID:          WaitingRoomID,
		Name:        "Global",
		LastMessage: "last",
		Status:      StatusActive,
	}
}

// Snapshot is a point-in-time view of the transport's subscriptions.
type Snapshot struct {
	// Rooms maps room id to its live subscriber count. Empty rooms are absent.
	Rooms map[string]int
	// Connections holds the ids of every live connection.
	Connections map[string]struct{}
}

// Size returns the live subscriber count of a room, zero when unknown.
func (s Snapshot) Size(roomID string) int {
	return s.Rooms[roomID]
}

// isPublic reports whether a room should be listed: it has subscribers and its
// id is not the id of a connection.
func (s Snapshot) isPublic(roomID string) bool {
	if s.Rooms[roomID] <= 0 {
		return false
	}
	_, isConn := s.Connections[roomID]
	return !isConn
}
