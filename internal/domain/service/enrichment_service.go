package service

import (
	"context"
	"errors"

	"solana-wallet-indexer/internal/domain/entity"
)

// ErrPriceUnavailable is returned by a price oracle when it has no quote for
// a mint. The pipeline maps it to the zero-price sentinel and still marks the
// row enriched.
var ErrPriceUnavailable = errors.New("price unavailable")

// PriceOracle fetches the current USD price for a token mint
type PriceOracle interface {
	// GetPrice returns the USD price for a mint, or ErrPriceUnavailable when
	// the oracle has no quote
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// EnrichmentSummary reports the outcome of one pipeline run. A run with
// skipped rows is still a successful run; skipped rows are retried by the
// next run.
type EnrichmentSummary struct {
	Processed int64 `json:"processed"`
	Enriched  int64 `json:"enriched"`
	Skipped   int64 `json:"skipped"`
	Remaining int64 `json:"remaining"`
}

// EnrichmentService defines the interface for the price enrichment pipeline
type EnrichmentService interface {
	// Run backfills valuation onto all unpriced swap rows. Re-running after
	// completion is a no-op.
	Run(ctx context.Context) (*EnrichmentSummary, error)

	// EnrichSwap enriches a single swap row
	EnrichSwap(ctx context.Context, swap *entity.TokenTransfer) error
}
