// Package config reads server and client settings from the environment, optionally seeded
// from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned when COINDLE_SECRET is not set for the server.
var ErrMissingSecret = errors.New("config: COINDLE_SECRET is required")

// StoreConfig selects the stats backend.
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
}

// ServerConfig holds coindle-server configuration
type ServerConfig struct {
	Addr            string
	Secret          string
	Store           StoreConfig
	AllowedOrigins  []string
	GraceDays       int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// ClientConfig holds configuration for the terminal client
type ClientConfig struct {
	APIURL string
	// Secret may be empty; the client then falls back to the OS keyring.
	Secret  string
	DataDir string
	Timeout time.Duration
}

// LoadEnvFile loads variables from the given .env files (".env" when none are given).
// Missing files are ignored and variables already set in the environment win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// LoadServer loads server configuration from environment variables
func LoadServer() (*ServerConfig, error) {
	cfg := &ServerConfig{
		Addr:   getEnv("COINDLE_ADDR", ":8080"),
		Secret: os.Getenv("COINDLE_SECRET"),
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("COINDLE_STORE", "sqlite")),
			SQLitePath:  getEnv("COINDLE_SQLITE_PATH", "coindle.db"),
			PostgresDSN: os.Getenv("COINDLE_POSTGRES_DSN"),
			RedisURL:    getEnv("COINDLE_REDIS_URL", "redis://localhost:6379/0"),
		},
		AllowedOrigins:  getEnvList("COINDLE_CORS_ORIGINS"),
		GraceDays:       getEnvInt("COINDLE_SUBMIT_GRACE", 1),
		RequestTimeout:  getEnvDuration("COINDLE_REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("COINDLE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSecret
	}
	switch cfg.Store.Driver {
	case "memory", "sqlite", "redis":
	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			return nil, fmt.Errorf("config: COINDLE_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("config: unknown COINDLE_STORE %q", cfg.Store.Driver)
	}
	if cfg.GraceDays < 0 {
		return nil, fmt.Errorf("config: COINDLE_SUBMIT_GRACE must be >= 0, got %d", cfg.GraceDays)
	}
	return cfg, nil
}

// LoadClient loads terminal client configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	dataDir := os.Getenv("COINDLE_DATA_DIR")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: locate user config dir: %w", err)
		}
		dataDir = filepath.Join(base, "coindle")
	}

	return &ClientConfig{
		APIURL:  getEnv("COINDLE_API_URL", "http://localhost:8080"),
		Secret:  os.Getenv("COINDLE_SECRET"),
		DataDir: dataDir,
		Timeout: getEnvDuration("COINDLE_TIMEOUT", 10*time.Second),
	}, nil
}

// RecordPath is the SQLite file holding the local play record.
func (c *ClientConfig) RecordPath() string {
	return filepath.Join(c.DataDir, "coindle.db")
}

// SecretFallbackPath is the file used when no OS keyring is available.
func (c *ClientConfig) SecretFallbackPath() string {
	return filepath.Join(c.DataDir, "secrets.json")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or plain seconds ("15").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
