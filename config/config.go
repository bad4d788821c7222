package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the orchestration layer needs to reach the
// OCR backend and tune the watchdog. Loaded once at startup and passed
// down explicitly; no package-level state.
type Config struct {
	// BackendURL is the base URL of the OCR backend, e.g. http://localhost:5001.
	BackendURL string
	// StreamPath is the push log channel endpoint on the backend.
	StreamPath string

	// UploadTimeout bounds total job wall-clock time, covering the byte
	// transfer and the wait for the terminal response.
	UploadTimeout time.Duration

	// WatchdogTick is the watchdog inspection interval.
	WatchdogTick time.Duration
	// SilenceThreshold is how long the real stream may stay quiet during
	// a busy phase before a synthetic status line is emitted.
	SilenceThreshold time.Duration

	// PatternFile optionally overrides the built-in phase pattern table
	// with a YAML file.
	PatternFile string

	// ListenAddr is the local web shell bind address.
	ListenAddr string

	LogLevel string
	LogPath  string
}

// Load reads .env (if present) and the environment, falling back to
// defaults that match the stock backend.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, falling back to environment variables")
	}

	return &Config{
		BackendURL:       getEnv("OCR_BACKEND_URL", "http://localhost:5001"),
		StreamPath:       getEnv("OCR_STREAM_PATH", "/logs/stream"),
		UploadTimeout:    getDuration("OCR_UPLOAD_TIMEOUT", 180*time.Second),
		WatchdogTick:     getDuration("OCR_WATCHDOG_TICK", time.Second),
		SilenceThreshold: getDuration("OCR_SILENCE_THRESHOLD", 3*time.Second),
		PatternFile:      getEnv("OCR_PATTERN_FILE", ""),
		ListenAddr:       getEnv("SCANUI_LISTEN_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPath:          getEnv("LOG_PATH", "logs/scan.log"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are treated as seconds, matching the backend's
	// second-based tuning knobs.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("Warning: can't parse %s=%q, using default %s", key, v, fallback)
	return fallback
}
