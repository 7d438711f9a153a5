// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"maarga/internal/adapter/storage"
	"maarga/internal/config"
	"maarga/internal/server"
	"maarga/internal/service/engine"
	"maarga/internal/service/hub"
	"maarga/internal/service/registry"
	"maarga/internal/service/session"
	"maarga/internal/service/stats"
	"maarga/internal/service/violation"
)

func main() {
	// Load environment from .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies. The engine works without either backing
	// service: storage mirroring and NATS mirroring are both optional.
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		log.Printf("Database unavailable, history and mirroring disabled: %v", err)
		db = nil
	} else {
		defer db.Close()
	}

	natsConn, err := initNATS(cfg.NATS)
	if err != nil {
		log.Printf("NATS unavailable, event mirroring disabled: %v", err)
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	// Initialize storage adapters
	var store *storage.Store
	if db != nil {
		store = storage.New(db)
	}

	// Initialize services
	roomRegistry := registry.New(registry.Config{
		DefaultMaxMembers: cfg.Tracking.MaxRoomSize,
		CodeLength:        cfg.Tracking.RoomCodeLength,
	})

	detector := violation.New(violation.Config{
		RadiusMeters: cfg.Tracking.GeofenceRadius,
		Threshold:    cfg.Tracking.ViolationThreshold,
	})

	eventHub := hub.New(natsConn)
	sessions := session.NewManager(eventHub)
	tripTracker := stats.NewTracker()

	var engineStore engine.Store
	if store != nil {
		engineStore = store
	}

	proximityEngine := engine.New(
		roomRegistry,
		detector,
		eventHub,
		sessions,
		tripTracker,
		engineStore,
		engine.Config{
			SampleMinInterval: cfg.Tracking.SampleMinInterval,
			StorageTimeout:    cfg.Tracking.StorageTimeout,
			WriteQueueSize:    1024,
		},
	)

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, db, proximityEngine, store)

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	log.Println("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	log.Println("Shutting down services...")

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop the engine, draining pending mirror writes
	if err := proximityEngine.Stop(shutdownCtx); err != nil {
		log.Printf("Engine shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
