package database

import (
	"context"
	"errors"
	"fmt"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5"
)

// PostgresWalletRepository implements WalletRepository interface
type PostgresWalletRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresWalletRepository creates a new Postgres wallet repository
func NewPostgresWalletRepository(client *PostgresClient, logger *logger.Logger) repository.WalletRepository {
	return &PostgresWalletRepository{
		client: client,
		logger: logger.WithComponent("postgres-wallet-repo"),
	}
}

// UpsertWallet creates a wallet on first observation or updates it on
// subsequent ones. Risk score and classification flags are owned by the
// scoring layer and are preserved across upserts; metadata documents merge.
// A nil balance means the observation carried no balance data and leaves the
// stored balance untouched.
func (r *PostgresWalletRepository) UpsertWallet(ctx context.Context, wallet *entity.Wallet) error {
	metadata := wallet.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	query := `
		INSERT INTO wallets (address, balance, owner, risk_score, is_exchange, is_mixer, first_seen, last_updated, metadata)
		VALUES ($1, COALESCE($2, 0), NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO UPDATE SET
			balance      = COALESCE($2, wallets.balance),
			last_updated = GREATEST(wallets.last_updated, EXCLUDED.last_updated),
			metadata     = wallets.metadata || EXCLUDED.metadata
	`

	_, err := r.client.Pool().Exec(ctx, query,
		wallet.Address,
		wallet.Balance,
		wallet.Owner,
		wallet.RiskScore,
		wallet.IsExchange,
		wallet.IsMixer,
		wallet.FirstSeen,
		wallet.LastUpdated,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}

	return nil
}

// GetWallet retrieves a wallet by address
func (r *PostgresWalletRepository) GetWallet(ctx context.Context, address string) (*entity.Wallet, error) {
	query := `
		SELECT address, balance, COALESCE(owner, ''), risk_score, is_exchange, is_mixer, first_seen, last_updated, metadata
		FROM wallets
		WHERE address = $1
	`

	wallet := &entity.Wallet{}
	err := r.client.Pool().QueryRow(ctx, query, address).Scan(
		&wallet.Address,
		&wallet.Balance,
		&wallet.Owner,
		&wallet.RiskScore,
		&wallet.IsExchange,
		&wallet.IsMixer,
		&wallet.FirstSeen,
		&wallet.LastUpdated,
		&wallet.Metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet not found: %s", address)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return wallet, nil
}

// GetTopWalletsByBalance retrieves wallets ranked by balance
func (r *PostgresWalletRepository) GetTopWalletsByBalance(ctx context.Context, limit int) ([]*entity.Wallet, error) {
	query := `
		SELECT address, balance, COALESCE(owner, ''), risk_score, is_exchange, is_mixer, first_seen, last_updated, metadata
		FROM wallets
		ORDER BY balance DESC
		LIMIT $1
	`
	return r.queryWallets(ctx, query, limit)
}

// GetTopWalletsByRisk retrieves wallets ranked by risk score
func (r *PostgresWalletRepository) GetTopWalletsByRisk(ctx context.Context, limit int) ([]*entity.Wallet, error) {
	query := `
		SELECT address, balance, COALESCE(owner, ''), risk_score, is_exchange, is_mixer, first_seen, last_updated, metadata
		FROM wallets
		WHERE risk_score IS NOT NULL
		ORDER BY risk_score DESC
		LIMIT $1
	`
	return r.queryWallets(ctx, query, limit)
}

func (r *PostgresWalletRepository) queryWallets(ctx context.Context, query string, args ...interface{}) ([]*entity.Wallet, error) {
	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*entity.Wallet
	for rows.Next() {
		wallet := &entity.Wallet{}
		if err := rows.Scan(
			&wallet.Address,
			&wallet.Balance,
			&wallet.Owner,
			&wallet.RiskScore,
			&wallet.IsExchange,
			&wallet.IsMixer,
			&wallet.FirstSeen,
			&wallet.LastUpdated,
			&wallet.Metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}

	return wallets, rows.Err()
}
