// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import (
	"log/slog"
	"net/http"
)

// Routes groups what the HTTP layer serves. A nil Logger uses slog.Default.
type Routes struct {
	Chat   *Hub
	Roster *Hub
	Rooms  RosterSource
	Logger *slog.Logger
}

// SetupRoutes configures the application routes on the paths of cfg and wraps
// them in the CORS policy.
func SetupRoutes(cfg Config, routes Routes) http.Handler {
	logger := routes.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", healthOrNotFound)
	mux.HandleFunc("/welcome", WelcomeHandler)
	if routes.Rooms != nil {
		mux.Handle("/rooms", RoomsHandler(routes.Rooms, logger))
		mux.Handle("/rooms/{id}", RoomHandler(routes.Rooms, logger))
	}
	if routes.Chat != nil {
		mux.Handle(cfg.ChatPath, routes.Chat)
	}
	if routes.Roster != nil {
		mux.Handle(cfg.RosterPath, routes.Roster)
	}
	return CORSMiddleware(mux)
}

func healthOrNotFound(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	HealthHandler(w, r)
}
