// Package config reads deployment settings for both binaries from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted in RESPAWN_BACKEND.
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

// Cache drivers accepted in RESPAWN_CACHE_DRIVER.
const (
	CacheBolt   = "bolt"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

// Parser names accepted in RESPAWN_PARSER.
const (
	ParserStrict = "strict"
	ParserOpenAI = "openai"
	ParserChain  = "chain"
)

type Config struct {
	Backend  string
	Database DatabaseConfig
	NATS     NATSConfig
	Cache    CacheConfig
	Drift    DriftConfig
	Gateway  GatewayConfig
	OpenAI   OpenAIConfig
	// Parser selects how kill reports are read.
	Parser string
	// CatalogPath is an optional YAML file replacing the built-in catalog.
	CatalogPath string
	// Timezone is the IANA zone used to read and render wall-clock times.
	Timezone string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// NotifyChannel is the LISTEN channel for room changes.
	NotifyChannel string
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type NATSConfig struct {
	URL      string
	Bucket   string
	Replicas int
}

type CacheConfig struct {
	Driver string
	Path   string
}

type DriftConfig struct {
	Interval  time.Duration
	Tolerance time.Duration
}

type GatewayConfig struct {
	Port string
	// AccessDeniedHint is shown to users when the backend refuses access.
	AccessDeniedHint string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// FromEnv reads the configuration with defaults for a local setup.
func FromEnv() Config {
	return Config{
		Backend: strings.ToLower(getEnv("RESPAWN_BACKEND", BackendMemory)),
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			Database:      getEnv("DB_NAME", "respawn"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			NotifyChannel: getEnv("DB_NOTIFY_CHANNEL", "room_timers_changed"),
		},
		NATS: NATSConfig{
			URL:      getEnv("NATS_URL", "nats://localhost:4222"),
			Bucket:   getEnv("NATS_BUCKET", "RESPAWN_TIMERS"),
			Replicas: getEnvAsInt("NATS_REPLICAS", 1),
		},
		Cache: CacheConfig{
			Driver: strings.ToLower(getEnv("RESPAWN_CACHE_DRIVER", CacheBolt)),
			Path:   getEnv("RESPAWN_CACHE_PATH", "respawn-cache.db"),
		},
		Drift: DriftConfig{
			Interval:  getEnvAsDuration("RESPAWN_DRIFT_INTERVAL", 5*time.Second),
			Tolerance: getEnvAsDuration("RESPAWN_DRIFT_TOLERANCE", 30*time.Minute),
		},
		Gateway: GatewayConfig{
			Port:             getEnv("PORT", "8080"),
			AccessDeniedHint: getEnv("RESPAWN_ACCESS_DENIED_HINT", "Access to the timer store was denied. Ask the operator to grant this deployment read/write access to the room."),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Parser:      strings.ToLower(getEnv("RESPAWN_PARSER", ParserStrict)),
		CatalogPath: getEnv("RESPAWN_CATALOG", ""),
		Timezone:    getEnv("RESPAWN_TIMEZONE", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects unknown backend, cache and parser names.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendNATS, BackendPostgres:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Cache.Driver {
	case CacheBolt, CacheSQLite, CacheNone:
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	switch c.Parser {
	case ParserStrict:
	case ParserOpenAI, ParserChain:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("parser %q requires OPENAI_API_KEY", c.Parser)
		}
	default:
		return fmt.Errorf("unknown parser %q", c.Parser)
	}
	if c.Drift.Interval <= 0 || c.Drift.Tolerance < 0 {
		return fmt.Errorf("invalid drift settings: interval %s, tolerance %s", c.Drift.Interval, c.Drift.Tolerance)
	}
	return nil
}

// Location resolves Timezone, defaulting to the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level parses LogLevel, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
