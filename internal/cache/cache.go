package cache

import (
	"context"
	"fmt"
	"time"

	"dnac-sync/internal/config"
)

// Supported backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Cache is a shared key/value store with per-entry expiry. Values are stored
// JSON encoded, so readers always get their own copy.
type Cache interface {
	// Get decodes the entry stored under key into dest. It reports false when
	// the key is missing or expired.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// HealthChecker is implemented by backends that live outside the process
type HealthChecker interface {
	Health(ctx context.Context) error
}

// New creates the cache backend selected in the configuration
func New(cfg *config.Config) (Cache, error) {
	switch cfg.CacheBackend {
	case "", BackendMemory:
		return NewMemory(time.Minute), nil
	case BackendRedis:
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
}
