package service

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// AnalyticsService defines the cache-through read path for derived analysis
type AnalyticsService interface {
	// GetWalletAnalysis returns the analysis document for a wallet, from cache
	// when a live entry exists, recomputed and re-cached otherwise
	GetWalletAnalysis(ctx context.Context, address string) (*entity.WalletAnalysis, error)

	// RefreshStats recomputes the materialized wallet stats view
	RefreshStats(ctx context.Context) error
}
