package rooms

import (
	"context"
	"fmt"
)

// Directory combines the stored room list with live subscriptions to produce the
// public roster.
type Directory struct {
	store Store
}

// NewDirectory creates a Directory backed by store
func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Create records a room created by a client. The stored user count is cleared
// because it is derived at read time.
func (d *Directory) Create(ctx context.Context, room RoomProfile) (bool, error) {
	room.UserCount = 0
	created, err := d.store.Upsert(ctx, room)
	if err != nil {
		return false, fmt.Errorf("create room %s: %w", room.ID, err)
	}
	return created, nil
}

// ClaimOwner records sid as the last connection to touch the room
func (d *Directory) ClaimOwner(ctx context.Context, roomID, sid string) error {
	if err := d.store.ClaimOwner(ctx, roomID, sid); err != nil {
		return fmt.Errorf("claim room %s: %w", roomID, err)
	}
	return nil
}

// Rooms returns the stored room list, including rooms that are not public
func (d *Directory) Rooms(ctx context.Context) ([]RoomProfile, error) {
	rooms, err := d.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// Room returns one room with its live user count. The waiting room is always
// found; other ids must be in the store.
func (d *Directory) Room(ctx context.Context, id string, snap Snapshot) (RoomProfile, error) {
	if id == WaitingRoomID {
		waiting := WaitingRoom()
		waiting.UserCount = snap.Size(WaitingRoomID)
		return waiting, nil
	}

	room, err := d.store.Get(ctx, id)
	if err != nil {
		return RoomProfile{}, fmt.Errorf("get room %s: %w", id, err)
	}
	room.UserCount = snap.Size(id)
	return room, nil
}

// Roster computes the public roster for snap. When the store cannot be read the
// roster holds only the waiting room and the error is returned alongside it.
func (d *Directory) Roster(ctx context.Context, snap Snapshot) ([]RoomProfile, error) {
	rooms, err := d.Rooms(ctx)
	if err != nil {
		return Compute(nil, snap), err
	}
	return Compute(rooms, snap), nil
}

// Compute builds the roster: the waiting room first, then every listed room that
// currently has subscribers, each with its live user count.
func Compute(list []RoomProfile, snap Snapshot) []RoomProfile {
	waiting := WaitingRoom()
	waiting.UserCount = snap.Size(WaitingRoomID)

	roster := make([]RoomProfile, 0, len(list)+1)
	roster = append(roster, waiting)

	for _, room := range list {
		if room.ID == WaitingRoomID || !snap.isPublic(room.ID) {
			continue
		}
		room.UserCount = snap.Size(room.ID)
		roster = append(roster, room)
	}

	return roster
}
