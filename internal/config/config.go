// Package config loads process configuration from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix
const Prefix = "TABHOST"

const (
	EngineMemory = "memory"
	EngineDocker = "docker"
)

// Config holds all process configuration. The sections are embedded so
// every variable sits directly under the prefix, e.g. TABHOST_ADDR.
type Config struct {
	ServerConfig
	StorageConfig
	EngineConfig
	LogConfig
	RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	EventBuffer     int           `envconfig:"EVENT_BUFFER" default:"64"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DataDir          string        `envconfig:"DATA_DIR" default:"./storage"`
	SessionDebounce  time.Duration `envconfig:"SESSION_DEBOUNCE" default:"500ms"`
	SettingsDebounce time.Duration `envconfig:"SETTINGS_DEBOUNCE" default:"1s"`
}

// EngineConfig selects and tunes the browsing engine
type EngineConfig struct {
	Kind           string        `envconfig:"ENGINE" default:"memory"`
	ChromeImage    string        `envconfig:"CHROME_IMAGE" default:"browserless/chrome:latest"`
	MaxLaunches    int64         `envconfig:"MAX_LAUNCHES" default:"4"`
	ReadyTimeout   time.Duration `envconfig:"READY_TIMEOUT" default:"10s"`
	HibernateAfter time.Duration `envconfig:"HIBERNATE_AFTER" default:"30m"`
	LoopQueue      int           `envconfig:"LOOP_QUEUE" default:"1024"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds command API rate limiting
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load reads .env files when present and then the environment. It reports
// whether a .env file was found.
func Load(envFiles ...string) (*Config, bool, error) {
	found := godotenv.Load(envFiles...) == nil

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, found, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return &cfg, found, nil
}

// Validate rejects settings the process cannot run with
func (c *Config) Validate() error {
	switch c.Kind {
	case EngineMemory, EngineDocker:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Kind, EngineMemory, EngineDocker)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.LoopQueue <= 0 {
		return fmt.Errorf("loop queue must be positive, got %d", c.LoopQueue)
	}
	return nil
}

// SessionPath is the canonical session document
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// SettingsPath is the settings document
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}
