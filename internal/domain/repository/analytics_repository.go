package repository

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// PatternRepository defines the interface for append-only detected patterns
type PatternRepository interface {
	// AppendPattern records a detected pattern
	AppendPattern(ctx context.Context, pattern *entity.DetectedPattern) error

	// GetPatternsByWallet retrieves patterns for a wallet, highest confidence first
	GetPatternsByWallet(ctx context.Context, address string) ([]*entity.DetectedPattern, error)

	// GetTopPatterns retrieves patterns of a type ranked by confidence
	GetTopPatterns(ctx context.Context, patternType string, limit int) ([]*entity.DetectedPattern, error)
}

// RPCLogRepository defines the interface for the append-only upstream call audit
type RPCLogRepository interface {
	// Append records one upstream call
	Append(ctx context.Context, log *entity.RPCCallLog) error
}

// StatsRepository defines the interface for the materialized wallet stats view
type StatsRepository interface {
	// Refresh recomputes the materialized view from the underlying tables. It
	// is idempotent and safe to run concurrently with ongoing writes.
	Refresh(ctx context.Context) error

	// GetWalletStats retrieves the rollup for a wallet
	GetWalletStats(ctx context.Context, address string) (*entity.WalletStats, error)
}
