package repository

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// RelationshipRepository defines the interface for the directed
// wallet-to-wallet edge graph. UpsertRelationship must be atomic per edge:
// concurrent deltas for the same (from, to) pair may never lose updates.
type RelationshipRepository interface {
	// UpsertRelationship applies an additive delta to the edge and returns the
	// edge after the update, with its strength recomputed
	UpsertRelationship(ctx context.Context, from, to string, delta *entity.RelationshipDelta) (*entity.WalletRelationship, error)

	// GetRelationship retrieves the edge for an ordered pair
	GetRelationship(ctx context.Context, from, to string) (*entity.WalletRelationship, error)

	// GetTopRelationships retrieves a wallet's outgoing edges ranked by strength
	GetTopRelationships(ctx context.Context, address string, limit int) ([]*entity.WalletRelationship, error)
}
