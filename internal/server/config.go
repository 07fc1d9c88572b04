// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package server

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	ChatPath        string
	RosterPath      string
	RoomStore       rooms.StoreConfig
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

const (
	defaultPort       = ":1234"
	defaultChatPath   = "/socket.io"
	defaultRosterPath = "/room"
)

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"https://admin.socket.io",
			"http://chatbot-dev.hunet.ai",
			"http://localhost:3000",
			"http://localhost:8080",
			"http://localhost:1234",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		ChatPath:   defaultChatPath,
		RosterPath: defaultRosterPath,
		RoomStore: rooms.StoreConfig{
			Backend: rooms.BackendMemory,
			Redis: rooms.RedisConfig{
				Host:      "localhost",
				Port:      "6379",
				KeyPrefix: "roomchat:",
			},
		},
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
	}
}

func normalizePath(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	cfg.ChatPath = normalizePath(cfg.ChatPath, defaultChatPath)
	cfg.RosterPath = normalizePath(cfg.RosterPath, defaultRosterPath)
	if cfg.ChatPath == cfg.RosterPath {
		slog.Warn("Chat and roster paths collide; using defaults", "path", cfg.ChatPath)
		cfg.ChatPath, cfg.RosterPath = defaultChatPath, defaultRosterPath
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables and an optional
// .env file in the working directory. Unset or invalid values fall back to defaults.
func NewConfigFromEnv() *Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("Error reading .env file, using environment and defaults", "error", err)
		}
	}

	return loadConfig(v)
}

func loadConfig(v *viper.Viper) *Config {
	cfg := defaultConfig()

	v.SetDefault("SERVER_PORT", cfg.Port)
	v.SetDefault("CHAT_PATH", cfg.ChatPath)
	v.SetDefault("ROSTER_PATH", cfg.RosterPath)
	v.SetDefault("ROOM_STORE", cfg.RoomStore.Backend)
	v.SetDefault("REDIS_HOST", cfg.RoomStore.Redis.Host)
	v.SetDefault("REDIS_PORT", cfg.RoomStore.Redis.Port)
	v.SetDefault("REDIS_KEY_PREFIX", cfg.RoomStore.Redis.KeyPrefix)
	v.AutomaticEnv()

	cfg.Port = v.GetString("SERVER_PORT")
	cfg.ChatPath = v.GetString("CHAT_PATH")
	cfg.RosterPath = v.GetString("ROSTER_PATH")

	if origins := v.GetString("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := v.GetString("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := v.GetString("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := v.GetString("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if timeout := v.GetString("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	if level := v.GetString("LOG_LEVEL"); level != "" {
		cfg.LogLevel = parseLogLevel(level, cfg.LogLevel)
	}

	cfg.RoomStore = rooms.StoreConfig{
		Backend: v.GetString("ROOM_STORE"),
		Redis: rooms.RedisConfig{
			URI:       v.GetString("REDIS_URI"),
			Host:      v.GetString("REDIS_HOST"),
			Port:      v.GetString("REDIS_PORT"),
			Username:  v.GetString("REDIS_USERNAME"),
			Password:  v.GetString("REDIS_PASSWORD"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
	}
	if db := v.GetString("REDIS_DB"); db != "" {
		if parsed, err := strconv.Atoi(db); err == nil && parsed >= 0 {
			cfg.RoomStore.Redis.DB = parsed
		}
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseLogLevel(value string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return defaultValue
	}
	return level
}
