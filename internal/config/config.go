// Package config loads client configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every externally configurable knob of the client.
type Config struct {
	// APIBaseURL is the base URL for REST calls, e.g. http://localhost:8080/api.
	APIBaseURL string
	// SocketURL is the realtime channel endpoint, e.g. ws://localhost:8080/ws.
	SocketURL string

	DialTimeout       time.Duration
	ReconnectAttempts int
	BackoffMin        time.Duration
	BackoffMax        time.Duration

	HistoryPageSize int
}

// Load reads .env if present (never overriding real environment variables)
// and builds a Config with defaults suitable for local development.
func Load() (*Config, error) {
	// godotenv returns an error when .env is missing; that is the normal
	// case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:        getenv("OVERWORK_API_URL", "http://localhost:8080/api"),
		SocketURL:         getenv("OVERWORK_SOCKET_URL", "ws://localhost:8080/ws"),
		DialTimeout:       getdur("OVERWORK_DIAL_TIMEOUT", 10*time.Second),
		ReconnectAttempts: getint("OVERWORK_RECONNECT_ATTEMPTS", 5),
		BackoffMin:        getdur("OVERWORK_BACKOFF_MIN", 500*time.Millisecond),
		BackoffMax:        getdur("OVERWORK_BACKOFF_MAX", 8*time.Second),
		HistoryPageSize:   getint("OVERWORK_HISTORY_PAGE_SIZE", 50),
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getdur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
