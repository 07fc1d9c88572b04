package rooms

import (
	"context"
	"sync"
)

// MemoryStore implements Store with in-process storage
type MemoryStore struct {
	rooms []RoomProfile
	index map[string]int
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[string]int),
	}
}

// Upsert stores a room, keeping the position of an existing entry with the same id
func (s *MemoryStore) Upsert(_ context.Context, room RoomProfile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[room.ID]; ok {
		s.rooms[i] = room
		return false, nil
	}

	s.index[room.ID] = len(s.rooms)
	s.rooms = append(s.rooms, room)
	return true, nil
}

// Get retrieves a room by id
func (s *MemoryStore) Get(_ context.Context, id string) (RoomProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return RoomProfile{}, ErrNotFound
	}
	return s.rooms[i], nil
}

// List returns a copy of the room list
func (s *MemoryStore) List(_ context.Context) ([]RoomProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]RoomProfile, len(s.rooms))
	copy(rooms, s.rooms)
	return rooms, nil
}

// ClaimOwner sets the SID of a stored room
func (s *MemoryStore) ClaimOwner(_ context.Context, id, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[id]; ok {
		s.rooms[i].SID = sid
	}
	return nil
}
