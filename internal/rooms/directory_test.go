package rooms_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a testify mock of rooms.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upsert(ctx context.Context, room rooms.RoomProfile) (bool, error) {
	args := m.Called(ctx, room)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, id string) (rooms.RoomProfile, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(rooms.RoomProfile), args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]rooms.RoomProfile, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]rooms.RoomProfile)
	return list, args.Error(1)
}

func (m *MockStore) ClaimOwner(ctx context.Context, id, sid string) error {
	args := m.Called(ctx, id, sid)
	return args.Error(0)
}

func snapshot(counts map[string]int, conns ...string) rooms.Snapshot {
	set := make(map[string]struct{}, len(conns))
	for _, c := range conns {
		set[c] = struct{}{}
	}
	return rooms.Snapshot{Rooms: counts, Connections: set}
}

func TestComputeStartsWithWaitingRoom(t *testing.T) {
	roster := rooms.Compute(nil, snapshot(map[string]int{"global": 3}))

	require.Len(t, roster, 1)
	assert.Equal(t, rooms.WaitingRoomID, roster[0].ID)
	assert.Equal(t, "Global", roster[0].Name)
	assert.Equal(t, "last", roster[0].LastMessage)
	assert.Equal(t, rooms.StatusActive, roster[0].Status)
	assert.Equal(t, 3, roster[0].UserCount)
}

func TestComputeWaitingRoomWithoutSubscribers(t *testing.T) {
	roster := rooms.Compute(nil, snapshot(nil))

	require.Len(t, roster, 1)
	assert.Equal(t, 0, roster[0].UserCount)
}

func TestComputeListsOnlyLiveRooms(t *testing.T) {
	list := []rooms.RoomProfile{
		{ID: "r1", Name: "Room1", UserCount: 99},
		{ID: "r2", Name: "Room2"},
		{ID: "r3", Name: "Room3"},
	}
	snap := snapshot(map[string]int{"r1": 2, "r3": 1, "global": 1})

	roster := rooms.Compute(list, snap)

	require.Len(t, roster, 3)
	assert.Equal(t, "global", roster[0].ID)
	assert.Equal(t, "r1", roster[1].ID)
	assert.Equal(t, 2, roster[1].UserCount, "user count should come from subscriptions")
	assert.Equal(t, "r3", roster[2].ID)
	assert.Equal(t, 1, roster[2].UserCount)
}

func TestComputeExcludesConnectionIDs(t *testing.T) {
	list := []rooms.RoomProfile{
		{ID: "conn-a", Name: "sneaky"},
		{ID: "r1", Name: "Room1"},
	}
	snap := snapshot(map[string]int{"conn-a": 1, "r1": 1}, "conn-a", "conn-b")

	roster := rooms.Compute(list, snap)

	for _, room := range roster {
		assert.NotEqual(t, "conn-a", room.ID)
	}
	assert.Len(t, roster, 2)
}

func TestComputeNeverDuplicatesWaitingRoom(t *testing.T) {
	list := []rooms.RoomProfile{{ID: rooms.WaitingRoomID, Name: "Other", SID: "x"}}
	roster := rooms.Compute(list, snapshot(map[string]int{"global": 2}))

	require.Len(t, roster, 1)
	assert.Equal(t, "Global", roster[0].Name)
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	list := []rooms.RoomProfile{{ID: "r1", UserCount: 7}}
	_ = rooms.Compute(list, snapshot(map[string]int{"r1": 1}))

	assert.Equal(t, 7, list[0].UserCount)
}

func TestRosterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := rooms.NewDirectory(rooms.NewMemoryStore())
	_, err := dir.Create(ctx, rooms.RoomProfile{ID: "r1", Name: "Room1"})
	require.NoError(t, err)

	snap := snapshot(map[string]int{"r1": 1, "global": 1}, "a")

	first, err := dir.Roster(ctx, snap)
	require.NoError(t, err)
	second, err := dir.Roster(ctx, snap)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRosterRetainsEmptyRooms(t *testing.T) {
	ctx := context.Background()
	dir := rooms.NewDirectory(rooms.NewMemoryStore())
	_, err := dir.Create(ctx, rooms.RoomProfile{ID: "r1", Name: "Room1"})
	require.NoError(t, err)

	roster, err := dir.Roster(ctx, snapshot(nil))
	require.NoError(t, err)
	assert.Len(t, roster, 1)

	stored, err := dir.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "r1", stored[0].ID)

	roster, err = dir.Roster(ctx, snapshot(map[string]int{"r1": 1}))
	require.NoError(t, err)
	assert.Len(t, roster, 2, "room should reappear once it has subscribers")
}

func TestCreateClearsUserCount(t *testing.T) {
	ctx := context.Background()
	store := rooms.NewMemoryStore()
	dir := rooms.NewDirectory(store)

	created, err := dir.Create(ctx, rooms.RoomProfile{ID: "r1", UserCount: 5})
	require.NoError(t, err)
	assert.True(t, created)

	room, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, room.UserCount)
}

func TestRosterFallsBackOnStoreError(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	storeErr := errors.New("connection refused")
	store.On("List", ctx).Return(nil, storeErr)

	dir := rooms.NewDirectory(store)
	roster, err := dir.Roster(ctx, snapshot(map[string]int{"global": 4}))

	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	require.Len(t, roster, 1)
	assert.Equal(t, 4, roster[0].UserCount)
	store.AssertExpectations(t)
}

func TestClaimOwnerWrapsErrors(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	storeErr := errors.New("boom")
	store.On("ClaimOwner", ctx, "global", "sid-1").Return(storeErr)

	err := rooms.NewDirectory(store).ClaimOwner(ctx, "global", "sid-1")

	assert.ErrorIs(t, err, storeErr)
	store.AssertExpectations(t)
}

func TestRoomReturnsLiveCount(t *testing.T) {
	ctx := context.Background()
	store := rooms.NewMemoryStore()
	dir := rooms.NewDirectory(store)
	_, err := dir.Create(ctx, rooms.RoomProfile{ID: "r1", Name: "Room1"})
	require.NoError(t, err)

	room, err := dir.Room(ctx, "r1", snapshot(map[string]int{"r1": 3}))
	require.NoError(t, err)
	assert.Equal(t, "Room1", room.Name)
	assert.Equal(t, 3, room.UserCount)

	waiting, err := dir.Room(ctx, rooms.WaitingRoomID, snapshot(map[string]int{"global": 2}))
	require.NoError(t, err)
	assert.Equal(t, "Global", waiting.Name)
	assert.Equal(t, 2, waiting.UserCount)

	_, err = dir.Room(ctx, "missing", snapshot(nil))
	assert.ErrorIs(t, err, rooms.ErrNotFound)
}

func TestRoomWrapsStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	storeErr := errors.New("timeout")
	store.On("Get", ctx, "r1").Return(rooms.RoomProfile{}, storeErr)

	_, err := rooms.NewDirectory(store).Room(ctx, "r1", snapshot(nil))

	assert.ErrorIs(t, err, storeErr)
	store.AssertExpectations(t)
}
