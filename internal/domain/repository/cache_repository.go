package repository

import (
	"context"
	"encoding/json"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
)

// CacheRepository defines the interface for the analysis cache. An entry past
// its expiry behaves as absent; Get returns (nil, nil) for both a missing and
// an expired key.
type CacheRepository interface {
	// Get retrieves a live cache entry, or nil when absent or expired
	Get(ctx context.Context, key string) (*entity.AnalysisCacheEntry, error)

	// Put upserts a cache entry, overwriting any prior value
	Put(ctx context.Context, key, cacheType string, result json.RawMessage, ttl time.Duration) error

	// SweepExpired deletes all expired entries and returns how many were removed
	SweepExpired(ctx context.Context) (int64, error)
}
