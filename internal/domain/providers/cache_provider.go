package providers

import (
	"context"
	"errors"
	"strconv"
)

// ErrCacheMiss is returned by Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes values from cache
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes every key matching a glob pattern
	DeletePattern(ctx context.Context, pattern string) error
}

// Cache keys shared by the cached repositories and the invalidation listener
const (
	InsuranceListCachePattern = "insurances:*"
	VehicleCachePattern       = "vehicles:*"
)

// InsuranceCacheKey returns the cache key of one policy
func InsuranceCacheKey(id int64) string {
	return "insurance:" + strconv.FormatInt(id, 10)
}
