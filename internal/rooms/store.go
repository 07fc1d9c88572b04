package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested room is not in the store
var ErrNotFound = errors.New("room not found")

// Store holds the room list in creation order
type Store interface {
	// Upsert appends a room the first time its id is seen and replaces the
	// stored entry in place afterwards. It reports whether the room was new.
	Upsert(ctx context.Context, room RoomProfile) (bool, error)
	// Get returns the room with the given id
	Get(ctx context.Context, id string) (RoomProfile, error)
	// List returns every stored room in creation order
	List(ctx context.Context) ([]RoomProfile, error)
	// ClaimOwner overwrites the SID of the room with the given id.
	// A missing room is not an error.
	ClaimOwner(ctx context.Context, id, sid string) error
}

// Backend names accepted by StoreConfig
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RedisConfig holds Redis connection settings for the redis store
type RedisConfig struct {
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// DialTimeout bounds the connection check done by NewRedisStore
	DialTimeout time.Duration
	// Logger receives store warnings; nil uses slog.Default
	Logger *slog.Logger
}

// StoreConfig selects and configures a Store backend
type StoreConfig struct {
	Backend string
	Redis   RedisConfig
}

// NewStore creates the store selected by cfg. An empty backend selects memory.
func NewStore(cfg StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown room store backend %q", cfg.Backend)
	}
}
