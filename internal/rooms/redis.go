package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/roomchat/internal/utils"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis so several relay instances can share one
// room list. Profiles live in a hash keyed by room id; a list keeps creation order.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// maxTxRetries bounds how often a WATCH transaction is retried after another
// client changed a watched key.
const maxTxRetries = 10

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	var client *redis.Client

	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) profilesKey() string {
	return s.keyPrefix + "rooms"
}

func (s *RedisStore) orderKey() string {
	return s.keyPrefix + "rooms:order"
}

// watch runs fn as an optimistic transaction on keys, retrying when the
// transaction was aborted by a concurrent write.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	return retryTx(ctx, maxTxRetries, func() error {
		return s.client.Watch(ctx, fn, keys...)
	})
}

func retryTx(ctx context.Context, attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = run()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// Upsert saves a room and appends its id to the order list when it is new
func (s *RedisStore) Upsert(ctx context.Context, room RoomProfile) (bool, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return false, fmt.Errorf("failed to marshal room: %w", err)
	}

	var created bool
	err = s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, s.profilesKey(), room.ID).Result()
		if err != nil {
			return err
		}
		created = !exists

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.profilesKey(), room.ID, data)
			if created {
				pipe.RPush(ctx, s.orderKey(), room.ID)
			}
			return nil
		})
		return err
	}, s.profilesKey())
	if err != nil {
		return false, fmt.Errorf("failed to save room: %w", err)
	}

	return created, nil
}

// Get retrieves a room by id
func (s *RedisStore) Get(ctx context.Context, id string) (RoomProfile, error) {
	data, err := s.client.HGet(ctx, s.profilesKey(), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RoomProfile{}, ErrNotFound
		}
		return RoomProfile{}, fmt.Errorf("failed to get room: %w", err)
	}

	var room RoomProfile
	if err := json.Unmarshal(data, &room); err != nil {
		return RoomProfile{}, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return room, nil
}

// List returns every room in creation order
func (s *RedisStore) List(ctx context.Context) ([]RoomProfile, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	if len(ids) == 0 {
		return []RoomProfile{}, nil
	}

	// Use HMGET to retrieve all profiles in a single roundtrip
	values, err := s.client.HMGet(ctx, s.profilesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room data: %w", err)
	}

	rooms := make([]RoomProfile, 0, len(values))
	for i, v := range values {
		strData, ok := v.(string)
		if !ok {
			s.logger.Warn("Room listed in order but missing from profiles", "room", utils.SanitizeLogString(ids[i]))
			continue
		}

		var room RoomProfile
		if err := json.Unmarshal([]byte(strData), &room); err != nil {
			s.logger.Warn("Skipping undecodable room", "room", utils.SanitizeLogString(ids[i]), "error", err)
			continue
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

// ClaimOwner sets the SID of a stored room
func (s *RedisStore) ClaimOwner(ctx context.Context, id, sid string) error {
	err := s.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, s.profilesKey(), id).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var room RoomProfile
		if err := json.Unmarshal(data, &room); err != nil {
			return err
		}
		room.SID = sid

		updated, err := json.Marshal(room)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.profilesKey(), id, updated)
			return nil
		})
		return err
	}, s.profilesKey())
	if err != nil {
		return fmt.Errorf("failed to claim room %s: %w", id, err)
	}
	return nil
}
