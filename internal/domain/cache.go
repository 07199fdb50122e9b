package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require organizationID for strict multi-org isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, organizationID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, organizationID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, organizationID string, key string) error

	// GetScore retrieves a cached scoring result.
	GetScore(ctx context.Context, organizationID string, key string) (*RiskScoringResult, error)

	// SetScore caches a scoring result.
	SetScore(ctx context.Context, organizationID string, key string, result *RiskScoringResult, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for velocity-style windows (e.g., observed transactions per address).
	IncrementCounter(ctx context.Context, organizationID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
