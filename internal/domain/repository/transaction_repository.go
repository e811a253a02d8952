package repository

import (
	"context"

	"solana-wallet-indexer/internal/domain/entity"
)

// TransactionRepository defines the interface for transaction and transfer
// data operations. A transaction and its transfers are always written as one
// atomic unit; there are no orphan transfers.
type TransactionRepository interface {
	// InsertTransaction inserts a transaction together with all of its SOL and
	// token transfers, atomically
	InsertTransaction(ctx context.Context, tx *entity.Transaction, solTransfers []*entity.SolTransfer, tokenTransfers []*entity.TokenTransfer) error

	// GetTransaction retrieves a transaction by signature
	GetTransaction(ctx context.Context, signature string) (*entity.Transaction, error)

	// DeleteTransaction deletes a transaction; its transfers are removed with it
	DeleteTransaction(ctx context.Context, signature string) error

	// GetRecentTransactions retrieves transactions in block-time descending order
	GetRecentTransactions(ctx context.Context, limit int) ([]*entity.Transaction, error)

	// GetTransactionsByAddress retrieves transactions whose account set contains
	// the given address, in block-time descending order
	GetTransactionsByAddress(ctx context.Context, address string, limit int) ([]*entity.Transaction, error)

	// GetTransfers retrieves the transfers of a transaction
	GetTransfers(ctx context.Context, signature string) ([]*entity.SolTransfer, []*entity.TokenTransfer, error)

	// ListUnpricedSwaps retrieves swap rows still missing valuation, most
	// recent first
	ListUnpricedSwaps(ctx context.Context, limit int) ([]*entity.TokenTransfer, error)

	// CountUnpricedSwaps counts swap rows still missing valuation
	CountUnpricedSwaps(ctx context.Context) (int64, error)

	// UpdateSwapValuation writes valuation fields back to a single swap row
	UpdateSwapValuation(ctx context.Context, valuation *entity.SwapValuation) error
}
