package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()
	server.SetConfig(config)
	cfg := server.CurrentConfig()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	logger.Info("Starting room chat server...",
		"port", cfg.Port,
		"chat_path", cfg.ChatPath,
		"roster_path", cfg.RosterPath,
		"store", cfg.RoomStore.Backend)

	cfg.RoomStore.Redis.Logger = logger
	store, err := rooms.NewStore(cfg.RoomStore)
	if err != nil {
		logger.Error("Failed to create room store", "error", err)
		os.Exit(1)
	}

	chatHub := server.NewHub("chat", logger)
	relay := chat.NewRelay(chatHub, rooms.NewDirectory(store), logger)
	chatHub.SetHandler(relay)

	rosterHub := server.NewHub("roster", logger)

	server.StartHubs(chatHub, rosterHub)

	handler := server.SetupRoutes(cfg, server.Routes{
		Chat:   chatHub,
		Roster: rosterHub,
		Rooms:  relay,
		Logger: logger,
	})
	httpServer := server.CreateServer(cfg.Port, handler)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer)
			},
			"chat-hub": func(context.Context) error {
				return chatHub.Shutdown(cfg.ShutdownTimeout)
			},
			"roster-hub": func(context.Context) error {
				return rosterHub.Shutdown(cfg.ShutdownTimeout)
			},
		},
	)

	exitCode := <-wait

	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("Error closing room store", "error", err)
		}
	}

	logger.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}
