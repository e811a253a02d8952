package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// EnrichmentApplicationService implements the price enrichment pipeline. It
// backfills USD valuation and PnL onto swap rows that have none, one row at a
// time: each row is independently fetched, computed and written back, so a
// failing row is skipped and retried on the next run while the rest of the
// batch proceeds. No lock is held across the oracle fetch; the only write is
// a single-row update.
type EnrichmentApplicationService struct {
	transfers repository.TransactionRepository
	oracle    service.PriceOracle
	logger    *logger.Logger

	batchSize   int
	workerCount int
	maxBatches  int
}

// NewEnrichmentApplicationService creates a new enrichment pipeline
func NewEnrichmentApplicationService(
	transfers repository.TransactionRepository,
	oracle service.PriceOracle,
	cfg *config.EnrichmentConfig,
	logger *logger.Logger,
) service.EnrichmentService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	return &EnrichmentApplicationService{
		transfers:   transfers,
		oracle:      oracle,
		logger:      logger.WithComponent("enrichment-pipeline"),
		batchSize:   batchSize,
		workerCount: workerCount,
		maxBatches:  cfg.MaxBatches,
	}
}

// Run backfills valuation onto unpriced swap rows until none remain (or the
// configured batch bound is hit). Because enriched rows are no longer
// selected, re-running a completed pipeline is a no-op. Cancelling the
// context stops between rows; no row is left half-enriched.
func (s *EnrichmentApplicationService) Run(ctx context.Context) (*service.EnrichmentSummary, error) {
	summary := &service.EnrichmentSummary{}

	// Skipped rows stay unpriced and get re-selected on every later batch.
	// Each row is attempted and counted at most once per run; a batch with
	// no fresh rows means only already-skipped rows remain.
	seen := make(map[string]struct{})

	for batch := 0; s.maxBatches <= 0 || batch < s.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, summary), err
		}

		swaps, err := s.transfers.ListUnpricedSwaps(ctx, s.batchSize)
		if err != nil {
			return s.finish(ctx, summary), fmt.Errorf("failed to list unpriced swaps: %w", err)
		}

		fresh := swaps[:0:0]
		for _, swap := range swaps {
			key := fmt.Sprintf("%s[%d]", swap.Signature, swap.TransferIndex)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fresh = append(fresh, swap)
		}
		if len(fresh) == 0 {
			break
		}

		enriched, skipped, err := s.runBatch(ctx, fresh)
		summary.Processed += int64(len(fresh))
		summary.Enriched += enriched
		summary.Skipped += skipped
		if err != nil {
			return s.finish(ctx, summary), err
		}

		s.logger.Info("Enrichment batch completed",
			zap.Int("batch", batch),
			zap.Int64("enriched", enriched),
			zap.Int64("skipped", skipped))
	}

	return s.finish(ctx, summary), nil
}

// runBatch enriches the rows of one batch with a bounded worker pool. The
// oracle's own token bucket gates the aggregate call rate, so adding workers
// never exceeds the rate limit.
func (s *EnrichmentApplicationService) runBatch(ctx context.Context, swaps []*entity.TokenTransfer) (int64, int64, error) {
	var enriched, skipped atomic.Int64

	jobs := make(chan *entity.TokenTransfer)
	var wg sync.WaitGroup

	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for swap := range jobs {
				if ctx.Err() != nil {
					return
				}
				if err := s.EnrichSwap(ctx, swap); err != nil {
					skipped.Add(1)
					s.logger.Warn("Skipping swap row",
						zap.String("signature", swap.Signature),
						zap.Int("transfer_index", swap.TransferIndex),
						zap.Error(err))
				} else {
					enriched.Add(1)
				}
			}
		}()
	}

feed:
	for _, swap := range swaps {
		select {
		case jobs <- swap:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return enriched.Load(), skipped.Load(), ctx.Err()
}

// EnrichSwap enriches a single swap row. A missing price is not an error: it
// becomes the zero-price sentinel and the row still counts as enriched, so it
// is never re-selected. Only the final write can fail the row.
func (s *EnrichmentApplicationService) EnrichSwap(ctx context.Context, swap *entity.TokenTransfer) error {
	if !swap.IsSwap {
		return fmt.Errorf("not a swap row: %s[%d]", swap.Signature, swap.TransferIndex)
	}

	priceIn := s.fetchPrice(ctx, swap.TokenInMint)
	priceOut := s.fetchPrice(ctx, swap.TokenOutMint)

	valueIn := swap.AmountIn * priceIn
	valueOut := swap.AmountOut * priceOut

	valuation := &entity.SwapValuation{
		Signature:     swap.Signature,
		TransferIndex: swap.TransferIndex,
		PriceUSDIn:    priceIn,
		PriceUSDOut:   priceOut,
		ValueUSDIn:    valueIn,
		ValueUSDOut:   valueOut,
		PnlUSD:        valueOut - valueIn,
	}

	return s.transfers.UpdateSwapValuation(ctx, valuation)
}

// fetchPrice resolves a mint's USD price, substituting the zero-price
// sentinel for any oracle failure. One attempt per row per run; failures are
// not retried here.
func (s *EnrichmentApplicationService) fetchPrice(ctx context.Context, mint string) float64 {
	if mint == "" {
		return 0
	}

	price, err := s.oracle.GetPrice(ctx, mint)
	if err != nil {
		if errors.Is(err, service.ErrPriceUnavailable) {
			s.logger.Debug("No price for mint, using zero sentinel", zap.String("mint", mint))
		} else {
			s.logger.Warn("Price fetch failed, using zero sentinel",
				zap.String("mint", mint),
				zap.Error(err))
		}
		return 0
	}
	return price
}

// finish completes the summary with the count of rows still unpriced
func (s *EnrichmentApplicationService) finish(ctx context.Context, summary *service.EnrichmentSummary) *service.EnrichmentSummary {
	remaining, err := s.transfers.CountUnpricedSwaps(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("Failed to count remaining unpriced swaps", zap.Error(err))
		return summary
	}
	summary.Remaining = remaining
	return summary
}
