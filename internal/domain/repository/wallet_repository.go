package repository

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// WalletRepository defines the interface for wallet data operations
type WalletRepository interface {
	// UpsertWallet creates a wallet on first observation or updates balance
	// and timestamps on subsequent ones
	UpsertWallet(ctx context.Context, wallet *entity.Wallet) error

	// GetWallet retrieves a wallet by address
	GetWallet(ctx context.Context, address string) (*entity.Wallet, error)

	// GetTopWalletsByBalance retrieves wallets ranked by balance
	GetTopWalletsByBalance(ctx context.Context, limit int) ([]*entity.Wallet, error)

	// GetTopWalletsByRisk retrieves wallets ranked by risk score
	GetTopWalletsByRisk(ctx context.Context, limit int) ([]*entity.Wallet, error)
}
