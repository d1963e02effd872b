package storage

import (
	"fmt"
	"time"
)

// Supported SQL drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Token and session backends
const (
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config for the persistence layer
type Config struct {
	// SQL database holding users (and tokens when TokenBackend is "sql")
	Driver          string // "postgres" or "sqlite"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration

	// Where one-time tokens and sessions live
	TokenBackend   string // "sql", "redis" or "memory"
	SessionBackend string // "redis" or "memory"

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Size of the in-process session LRU
	SessionCacheSize int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:           DriverSQLite,
		DSN:              "file:ssobridge.db?_busy_timeout=5000",
		MaxOpenConns:     20,
		MaxIdleConns:     2,
		ConnMaxLifetime:  30 * time.Minute,
		ConnMaxIdleTime:  5 * time.Minute,
		ConnectTimeout:   10 * time.Second,
		TokenBackend:     BackendSQL,
		SessionBackend:   BackendMemory,
		RedisURL:         "redis://localhost:6379/0",
		RedisDB:          -1,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		SessionCacheSize: 10000,
	}
}

// NeedsRedis reports whether any backend is configured on redis
func (c Config) NeedsRedis() bool {
	return c.TokenBackend == BackendRedis || c.SessionBackend == BackendRedis
}

// Validate checks the backend selection
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid storage driver: %q (must be postgres or sqlite)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	switch c.TokenBackend {
	case BackendSQL, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid token backend: %q (must be sql, redis or memory)", c.TokenBackend)
	}
	switch c.SessionBackend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid session backend: %q (must be redis or memory)", c.SessionBackend)
	}

	if c.NeedsRedis() && c.RedisURL == "" {
		return fmt.Errorf("redis URL is required for the redis backend")
	}
	return nil
}
