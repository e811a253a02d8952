package repository

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// TokenRepository defines the interface for token mint metadata operations
type TokenRepository interface {
	// UpsertToken creates or updates token mint metadata
	UpsertToken(ctx context.Context, token *entity.Token) error

	// GetToken retrieves a token by mint
	GetToken(ctx context.Context, mint string) (*entity.Token, error)
}
