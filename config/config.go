package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the daemon configuration.
type Config struct {
	SocketPath string // UNIX socket the control server listens on

	LogPath       string // rotated daemon log; empty disables the file sink
	LogLevel      string
	LogMaxSize    int // megabytes per log file before rotation
	LogMaxBackups int
	LogMaxAge     int // days

	LibraryDB    string // external SQLite music library (read-only)
	PlaylistPath string // M3U file to seed the queue from at startup

	DefaultVolume    float64       // initial volume, 0.0-1.0
	HistoryLimit     int           // bounded previous-track history
	PositionInterval time.Duration // interval between position events to subscribers
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// DefaultSocketPath returns the per-process socket path in the temp dir.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("playd_%d.sock", os.Getpid()))
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables already in the environment.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		SocketPath: getEnv("PLAYD_SOCKET", DefaultSocketPath()),

		LogPath:       getEnv("PLAYD_LOG_PATH", ""),
		LogLevel:      getEnv("PLAYD_LOG_LEVEL", "info"),
		LogMaxSize:    getEnvInt("PLAYD_LOG_MAX_SIZE", 10),
		LogMaxBackups: getEnvInt("PLAYD_LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("PLAYD_LOG_MAX_AGE", 14),

		LibraryDB:    getEnv("PLAYD_LIBRARY_DB", ""),
		PlaylistPath: getEnv("PLAYD_PLAYLIST", ""),

		DefaultVolume:    getEnvFloat("PLAYD_VOLUME", 1.0),
		HistoryLimit:     getEnvInt("PLAYD_HISTORY_LIMIT", 100),
		PositionInterval: time.Duration(getEnvInt("PLAYD_POSITION_INTERVAL_MS", 500)) * time.Millisecond,
	}
}
