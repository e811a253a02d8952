package service

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// IndexingService defines the interface for indexing operations
type IndexingService interface {
	// ProcessEvent persists one transaction event and aggregates its
	// wallet-to-wallet relationships
	ProcessEvent(ctx context.Context, event *entity.TransactionEvent) error

	// ProcessEventBatch processes multiple transaction events in batch
	ProcessEventBatch(ctx context.Context, events []*entity.TransactionEvent) error
}
