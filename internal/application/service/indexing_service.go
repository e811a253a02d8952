package service

import (
	"context"
	"fmt"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// IndexingApplicationService implements IndexingService interface
type IndexingApplicationService struct {
	walletRepo       repository.WalletRepository
	transactionRepo  repository.TransactionRepository
	tokenRepo        repository.TokenRepository
	relationshipRepo repository.RelationshipRepository
	logger           *logger.Logger
}

// NewIndexingApplicationService creates a new indexing application service
func NewIndexingApplicationService(
	walletRepo repository.WalletRepository,
	transactionRepo repository.TransactionRepository,
	tokenRepo repository.TokenRepository,
	relationshipRepo repository.RelationshipRepository,
	logger *logger.Logger,
) service.IndexingService {
	return &IndexingApplicationService{
		walletRepo:       walletRepo,
		transactionRepo:  transactionRepo,
		tokenRepo:        tokenRepo,
		relationshipRepo: relationshipRepo,
		logger:           logger.WithComponent("indexing-service"),
	}
}

// ProcessEvent persists one transaction event and aggregates its
// wallet-to-wallet relationships
func (s *IndexingApplicationService) ProcessEvent(ctx context.Context, event *entity.TransactionEvent) error {
	if event == nil || event.Transaction == nil {
		return fmt.Errorf("event has no transaction")
	}

	tx := event.Transaction
	s.logger.Debug("Processing transaction event", zap.String("signature", tx.Signature))

	eventTime := time.Now().UTC()
	if tx.BlockTime != nil {
		eventTime = *tx.BlockTime
	}

	// Observe wallets before anything references them
	if err := s.upsertWallets(ctx, event, eventTime); err != nil {
		return fmt.Errorf("failed to upsert wallets: %w", err)
	}

	// The transaction and its transfers are one atomic unit
	if err := s.transactionRepo.InsertTransaction(ctx, tx, event.SolTransfers, event.TokenTransfers); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Record newly observed mints
	if err := s.upsertTokens(ctx, event, eventTime); err != nil {
		s.logger.Error("Failed to upsert tokens",
			zap.String("signature", tx.Signature),
			zap.Error(err))
		// Token metadata is enrichable later; don't fail the event for it
	}

	// Aggregate wallet-to-wallet edges
	if err := s.aggregateRelationships(ctx, event, eventTime); err != nil {
		return fmt.Errorf("failed to aggregate relationships: %w", err)
	}

	s.logger.Debug("Successfully processed transaction event", zap.String("signature", tx.Signature))
	return nil
}

// ProcessEventBatch processes multiple transaction events. A failing event is
// logged and skipped; one bad event never poisons the batch.
func (s *IndexingApplicationService) ProcessEventBatch(ctx context.Context, events []*entity.TransactionEvent) error {
	s.logger.Info("Processing transaction event batch", zap.Int("count", len(events)))

	var failed int
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ProcessEvent(ctx, event); err != nil {
			failed++
			signature := "unknown"
			if event != nil && event.Transaction != nil {
				signature = event.Transaction.Signature
			}
			s.logger.Error("Failed to process event",
				zap.String("signature", signature),
				zap.Error(err))
		}
	}

	if failed > 0 {
		s.logger.Warn("Batch completed with failures",
			zap.Int("total", len(events)),
			zap.Int("failed", failed))
	}
	return nil
}

// upsertWallets observes every address that appears in the event's transfers
func (s *IndexingApplicationService) upsertWallets(ctx context.Context, event *entity.TransactionEvent, eventTime time.Time) error {
	addresses := make(map[string]struct{})
	for _, t := range event.SolTransfers {
		addresses[t.FromAddress] = struct{}{}
		addresses[t.ToAddress] = struct{}{}
	}
	for _, t := range event.TokenTransfers {
		addresses[t.FromAddress] = struct{}{}
		addresses[t.ToAddress] = struct{}{}
	}

	for address := range addresses {
		wallet := &entity.Wallet{
			Address:     address,
			FirstSeen:   eventTime,
			LastUpdated: eventTime,
		}
		// Balances is best-effort upstream data; an event without an entry
		// for this address must not reset a balance already on record
		if balance, ok := event.Balances[address]; ok {
			wallet.Balance = &balance
		}
		if err := s.walletRepo.UpsertWallet(ctx, wallet); err != nil {
			return err
		}
	}
	return nil
}

// upsertTokens records every mint observed in the event's token transfers
func (s *IndexingApplicationService) upsertTokens(ctx context.Context, event *entity.TransactionEvent, eventTime time.Time) error {
	mints := make(map[string]*entity.Token)
	for _, t := range event.TokenTransfers {
		if _, ok := mints[t.Mint]; !ok {
			mints[t.Mint] = &entity.Token{
				Mint:        t.Mint,
				Decimals:    t.Decimals,
				FirstSeen:   eventTime,
				LastUpdated: eventTime,
			}
		}
	}

	for _, token := range mints {
		if err := s.tokenRepo.UpsertToken(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

// aggregateRelationships folds the event's transfers into per-pair deltas and
// applies them to the graph. Each ordered (from, to) pair contributes exactly
// one transaction count per parent transaction, no matter how many transfers
// the transaction carried; lamports accumulate from SOL transfers only.
func (s *IndexingApplicationService) aggregateRelationships(ctx context.Context, event *entity.TransactionEvent, eventTime time.Time) error {
	type pair struct{ from, to string }
	deltas := make(map[pair]*entity.RelationshipDelta)

	get := func(from, to string) *entity.RelationshipDelta {
		p := pair{from, to}
		d, ok := deltas[p]
		if !ok {
			d = &entity.RelationshipDelta{Transactions: 1, Timestamp: eventTime}
			deltas[p] = d
		}
		return d
	}

	for _, t := range event.SolTransfers {
		if t.FromAddress == t.ToAddress {
			continue
		}
		get(t.FromAddress, t.ToAddress).Lamports += t.Lamports
	}
	for _, t := range event.TokenTransfers {
		if t.FromAddress == t.ToAddress {
			continue
		}
		get(t.FromAddress, t.ToAddress)
	}

	for p, delta := range deltas {
		if _, err := s.relationshipRepo.UpsertRelationship(ctx, p.from, p.to, delta); err != nil {
			return err
		}
	}
	return nil
}
