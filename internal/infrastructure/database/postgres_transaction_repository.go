package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PostgresTransactionRepository implements TransactionRepository interface
type PostgresTransactionRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresTransactionRepository creates a new Postgres transaction repository
func NewPostgresTransactionRepository(client *PostgresClient, logger *logger.Logger) repository.TransactionRepository {
	return &PostgresTransactionRepository{
		client: client,
		logger: logger.WithComponent("postgres-transaction-repo"),
	}
}

// InsertTransaction inserts a transaction and all of its transfers in one SQL
// transaction. A failing transfer rolls the whole unit back, so a transfer
// can never exist without its parent.
func (r *PostgresTransactionRepository) InsertTransaction(
	ctx context.Context,
	tx *entity.Transaction,
	solTransfers []*entity.SolTransfer,
	tokenTransfers []*entity.TokenTransfer,
) error {
	dbTx, err := r.client.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	txQuery := `
		INSERT INTO transactions (signature, slot, block_time, fee, status, error, accounts, programs, raw)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (signature) DO UPDATE SET
			status = EXCLUDED.status,
			error  = EXCLUDED.error
	`
	if _, err := dbTx.Exec(ctx, txQuery,
		tx.Signature,
		int64(tx.Slot),
		tx.BlockTime,
		int64(tx.Fee),
		tx.Status,
		tx.Error,
		tx.Accounts,
		tx.Programs,
		tx.Raw,
	); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	solQuery := `
		INSERT INTO sol_transfers (signature, transfer_index, from_address, to_address, lamports, block_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signature, transfer_index) DO NOTHING
	`
	for _, t := range solTransfers {
		if _, err := dbTx.Exec(ctx, solQuery,
			t.Signature, t.TransferIndex, t.FromAddress, t.ToAddress, t.Lamports, t.BlockTime,
		); err != nil {
			return fmt.Errorf("failed to insert sol transfer: %w", err)
		}
	}

	tokenQuery := `
		INSERT INTO token_transfers (
			signature, transfer_index, from_address, to_address, mint, amount, decimals,
			authority, block_time, is_swap, token_in_mint, token_out_mint, amount_in, amount_out
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13, $14)
		ON CONFLICT (signature, transfer_index) DO NOTHING
	`
	for _, t := range tokenTransfers {
		if _, err := dbTx.Exec(ctx, tokenQuery,
			t.Signature, t.TransferIndex, t.FromAddress, t.ToAddress, t.Mint, t.Amount, t.Decimals,
			t.Authority, t.BlockTime, t.IsSwap, t.TokenInMint, t.TokenOutMint, t.AmountIn, t.AmountOut,
		); err != nil {
			return fmt.Errorf("failed to insert token transfer: %w", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction insert: %w", err)
	}

	return nil
}

// GetTransaction retrieves a transaction by signature
func (r *PostgresTransactionRepository) GetTransaction(ctx context.Context, signature string) (*entity.Transaction, error) {
	query := `
		SELECT signature, slot, block_time, fee, status, COALESCE(error, ''), accounts, programs, raw
		FROM transactions
		WHERE signature = $1
	`

	tx, err := scanTransaction(r.client.Pool().QueryRow(ctx, query, signature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction not found: %s", signature)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

// DeleteTransaction deletes a transaction; the FK cascade removes its transfers
func (r *PostgresTransactionRepository) DeleteTransaction(ctx context.Context, signature string) error {
	tag, err := r.client.Pool().Exec(ctx, `DELETE FROM transactions WHERE signature = $1`, signature)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", signature)
	}
	return nil
}

// GetRecentTransactions retrieves transactions in block-time descending order
func (r *PostgresTransactionRepository) GetRecentTransactions(ctx context.Context, limit int) ([]*entity.Transaction, error) {
	query := `
		SELECT signature, slot, block_time, fee, status, COALESCE(error, ''), accounts, programs, raw
		FROM transactions
		ORDER BY block_time DESC NULLS LAST
		LIMIT $1
	`
	return r.queryTransactions(ctx, query, limit)
}

// GetTransactionsByAddress retrieves transactions whose account set contains
// the given address. Served by the GIN index on accounts.
func (r *PostgresTransactionRepository) GetTransactionsByAddress(ctx context.Context, address string, limit int) ([]*entity.Transaction, error) {
	query := `
		SELECT signature, slot, block_time, fee, status, COALESCE(error, ''), accounts, programs, raw
		FROM transactions
		WHERE accounts @> ARRAY[$1]::TEXT[]
		ORDER BY block_time DESC NULLS LAST
		LIMIT $2
	`
	return r.queryTransactions(ctx, query, address, limit)
}

// GetTransfers retrieves the transfers of a transaction
func (r *PostgresTransactionRepository) GetTransfers(ctx context.Context, signature string) ([]*entity.SolTransfer, []*entity.TokenTransfer, error) {
	solRows, err := r.client.Pool().Query(ctx, `
		SELECT signature, transfer_index, from_address, to_address, lamports, COALESCE(block_time, 'epoch'::TIMESTAMPTZ)
		FROM sol_transfers
		WHERE signature = $1
		ORDER BY transfer_index
	`, signature)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query sol transfers: %w", err)
	}
	defer solRows.Close()

	var solTransfers []*entity.SolTransfer
	for solRows.Next() {
		t := &entity.SolTransfer{}
		if err := solRows.Scan(&t.Signature, &t.TransferIndex, &t.FromAddress, &t.ToAddress, &t.Lamports, &t.BlockTime); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sol transfer: %w", err)
		}
		solTransfers = append(solTransfers, t)
	}
	if err := solRows.Err(); err != nil {
		return nil, nil, err
	}

	tokenRows, err := r.client.Pool().Query(ctx, swapSelectColumns+`
		FROM token_transfers
		WHERE signature = $1
		ORDER BY transfer_index
	`, signature)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query token transfers: %w", err)
	}
	defer tokenRows.Close()

	var tokenTransfers []*entity.TokenTransfer
	for tokenRows.Next() {
		t, err := scanTokenTransfer(tokenRows)
		if err != nil {
			return nil, nil, err
		}
		tokenTransfers = append(tokenTransfers, t)
	}

	return solTransfers, tokenTransfers, tokenRows.Err()
}

const swapSelectColumns = `
		SELECT signature, transfer_index, from_address, to_address, mint, amount, decimals,
			COALESCE(authority, ''), COALESCE(block_time, 'epoch'::TIMESTAMPTZ), is_swap,
			COALESCE(token_in_mint, ''), COALESCE(token_out_mint, ''),
			COALESCE(amount_in, 0), COALESCE(amount_out, 0),
			price_usd_in, price_usd_out, value_usd_in, value_usd_out, pnl_usd
`

// ListUnpricedSwaps retrieves swap rows missing valuation, most recent first.
// Only rows with price_usd_in unset qualify, which is what makes pipeline
// re-runs no-ops.
func (r *PostgresTransactionRepository) ListUnpricedSwaps(ctx context.Context, limit int) ([]*entity.TokenTransfer, error) {
	rows, err := r.client.Pool().Query(ctx, swapSelectColumns+`
		FROM token_transfers
		WHERE is_swap AND price_usd_in IS NULL
		ORDER BY block_time DESC NULLS LAST
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpriced swaps: %w", err)
	}
	defer rows.Close()

	var swaps []*entity.TokenTransfer
	for rows.Next() {
		t, err := scanTokenTransfer(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, t)
	}

	return swaps, rows.Err()
}

// CountUnpricedSwaps counts swap rows still missing valuation
func (r *PostgresTransactionRepository) CountUnpricedSwaps(ctx context.Context) (int64, error) {
	var count int64
	err := r.client.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM token_transfers WHERE is_swap AND price_usd_in IS NULL`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unpriced swaps: %w", err)
	}
	return count, nil
}

// UpdateSwapValuation writes the five valuation fields back to one swap row.
// The update is row-scoped; nothing else is locked.
func (r *PostgresTransactionRepository) UpdateSwapValuation(ctx context.Context, v *entity.SwapValuation) error {
	tag, err := r.client.Pool().Exec(ctx, `
		UPDATE token_transfers
		SET price_usd_in = $3, price_usd_out = $4, value_usd_in = $5, value_usd_out = $6, pnl_usd = $7
		WHERE signature = $1 AND transfer_index = $2
	`, v.Signature, v.TransferIndex, v.PriceUSDIn, v.PriceUSDOut, v.ValueUSDIn, v.ValueUSDOut, v.PnlUSD)
	if err != nil {
		return fmt.Errorf("failed to update swap valuation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("swap row not found: %s[%d]", v.Signature, v.TransferIndex)
	}

	r.logger.Debug("Updated swap valuation",
		zap.String("signature", v.Signature),
		zap.Int("transfer_index", v.TransferIndex),
		zap.Float64("pnl_usd", v.PnlUSD))

	return nil
}

func (r *PostgresTransactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*entity.Transaction, error) {
	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*entity.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(row pgx.Row) (*entity.Transaction, error) {
	tx := &entity.Transaction{}
	var slot, fee int64
	var blockTime *time.Time
	if err := row.Scan(
		&tx.Signature, &slot, &blockTime, &fee, &tx.Status, &tx.Error, &tx.Accounts, &tx.Programs, &tx.Raw,
	); err != nil {
		return nil, err
	}
	tx.Slot = uint64(slot)
	tx.Fee = uint64(fee)
	tx.BlockTime = blockTime
	return tx, nil
}

func scanTokenTransfer(row pgx.Row) (*entity.TokenTransfer, error) {
	t := &entity.TokenTransfer{}
	if err := row.Scan(
		&t.Signature, &t.TransferIndex, &t.FromAddress, &t.ToAddress, &t.Mint, &t.Amount, &t.Decimals,
		&t.Authority, &t.BlockTime, &t.IsSwap,
		&t.TokenInMint, &t.TokenOutMint, &t.AmountIn, &t.AmountOut,
		&t.PriceUSDIn, &t.PriceUSDOut, &t.ValueUSDIn, &t.ValueUSDOut, &t.PnlUSD,
	); err != nil {
		return nil, fmt.Errorf("failed to scan token transfer: %w", err)
	}
	return t, nil
}
