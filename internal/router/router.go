package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ANU-2524/JustCoding-sub000/internal/hub"
	"github.com/ANU-2524/JustCoding-sub000/internal/middleware"
)

func New(wsHub *hub.Hub, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Join rate limiter (30 connects/min per IP)
	joinLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Relay channel
	r.Group(func(r chi.Router) {
		r.Use(joinLimiter.Middleware)
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
