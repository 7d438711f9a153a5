// internal/server/server.go

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v4/pgxpool"

	"maarga/internal/adapter/storage"
	"maarga/internal/config"
	"maarga/internal/server/handlers"
	"maarga/internal/service/engine"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	db *pgxpool.Pool,
	e *engine.Engine,
	store *storage.Store,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	var history handlers.LocationHistory
	if store != nil {
		history = store.Locations
	}
	roomHandler := handlers.NewRoomHandler(e)
	locationHandler := handlers.NewLocationHandler(e, history)
	emergencyHandler := handlers.NewEmergencyHandler(e)

	// Routes
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Throttle(cfg.RateLimit))

		// Health check
		r.Get("/health", healthHandler(db))

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Rooms API
			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", roomHandler.CreateRoom)
				r.Post("/{code}/join", roomHandler.JoinRoom)
				r.Post("/{code}/leave", roomHandler.LeaveRoom)
				r.Get("/{code}/members", roomHandler.GetMembers)
				r.Post("/{code}/notify", roomHandler.PostNotification)
			})

			// Location API
			r.Route("/location", func(r chi.Router) {
				r.Post("/", locationHandler.SubmitLocation)
				r.Get("/{code}", locationHandler.GetLatestLocations)
				r.Get("/{code}/history/{participantID}", locationHandler.GetHistory)
			})

			// Emergency API
			r.Route("/emergency", func(r chi.Router) {
				r.Post("/", emergencyHandler.RaiseEmergency)
				r.Post("/{id}/resolve", emergencyHandler.ResolveEmergency)
			})
		})
	})

	// WebSocket endpoint for real-time communications
	router.Get("/ws/rooms/{code}", handlers.RoomWebSocketHandler(e))

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// healthHandler reports process liveness and, when a pool is configured,
// database reachability.
func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "database": "disabled"}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				status["status"] = "degraded"
				status["database"] = "unreachable"
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(status)
				return
			}
			status["database"] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
