package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Tracking    TrackingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
	RateLimit       int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// TrackingConfig holds proximity tracking configuration
type TrackingConfig struct {
	// GeofenceRadius is the allowed distance from the leader, in meters.
	GeofenceRadius float64

	// ViolationThreshold is the continuous out-of-range duration before a
	// violation is raised.
	ViolationThreshold time.Duration

	// SampleMinInterval is the minimum spacing between accepted location
	// samples per participant.
	SampleMinInterval time.Duration

	// MaxRoomSize is the default member cap for new rooms.
	MaxRoomSize int

	// RoomCodeLength is the length of generated room codes.
	RoomCodeLength int

	// StorageTimeout bounds each asynchronous mirror write.
	StorageTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
			RateLimit:       getEnvAsInt("SERVER_RATE_LIMIT", 100),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "maarga"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Tracking: TrackingConfig{
			GeofenceRadius:     getEnvAsFloat("TRACKING_GEOFENCE_RADIUS", 500.0),
			ViolationThreshold: getEnvAsDuration("TRACKING_VIOLATION_THRESHOLD", 30*time.Second),
			SampleMinInterval:  getEnvAsDuration("TRACKING_SAMPLE_MIN_INTERVAL", 2*time.Second),
			MaxRoomSize:        getEnvAsInt("TRACKING_MAX_ROOM_SIZE", 10),
			RoomCodeLength:     getEnvAsInt("TRACKING_ROOM_CODE_LENGTH", 6),
			StorageTimeout:     getEnvAsDuration("TRACKING_STORAGE_TIMEOUT", 5*time.Second),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Tracking.GeofenceRadius <= 0 {
		return fmt.Errorf("geofence radius must be positive")
	}
	if config.Tracking.ViolationThreshold <= 0 {
		return fmt.Errorf("violation threshold must be positive")
	}
	if config.Tracking.MaxRoomSize < 2 {
		return fmt.Errorf("max room size must allow at least a leader and one member")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
