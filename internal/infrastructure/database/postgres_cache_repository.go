package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PostgresCacheRepository implements CacheRepository interface
type PostgresCacheRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresCacheRepository creates a new Postgres analysis cache repository
func NewPostgresCacheRepository(client *PostgresClient, logger *logger.Logger) repository.CacheRepository {
	return &PostgresCacheRepository{
		client: client,
		logger: logger.WithComponent("postgres-cache-repo"),
	}
}

// Get retrieves a live cache entry. Expired entries are filtered in the query
// itself, so an expired key behaves exactly like a missing one.
func (r *PostgresCacheRepository) Get(ctx context.Context, key string) (*entity.AnalysisCacheEntry, error) {
	query := `
		SELECT cache_key, cache_type, result, created_at, expires_at
		FROM analysis_cache
		WHERE cache_key = $1 AND expires_at > now()
	`

	entry := &entity.AnalysisCacheEntry{}
	err := r.client.Pool().QueryRow(ctx, query, key).Scan(
		&entry.CacheKey,
		&entry.CacheType,
		&entry.Result,
		&entry.CreatedAt,
		&entry.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return entry, nil
}

// Put upserts a cache entry, overwriting any prior value
func (r *PostgresCacheRepository) Put(ctx context.Context, key, cacheType string, result json.RawMessage, ttl time.Duration) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO analysis_cache (cache_key, cache_type, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key) DO UPDATE SET
			cache_type = EXCLUDED.cache_type,
			result     = EXCLUDED.result,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.client.Pool().Exec(ctx, query, key, cacheType, result, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	return nil
}

// SweepExpired deletes all expired entries. Safe to call concurrently; live
// entries are untouched.
func (r *PostgresCacheRepository) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := r.client.Pool().Exec(ctx, `DELETE FROM analysis_cache WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}

	removed := tag.RowsAffected()
	if removed > 0 {
		r.logger.Debug("Swept expired cache entries", zap.Int64("removed", removed))
	}

	return removed, nil
}
