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

// PostgresTokenRepository implements TokenRepository interface
type PostgresTokenRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresTokenRepository creates a new Postgres token repository
func NewPostgresTokenRepository(client *PostgresClient, logger *logger.Logger) repository.TokenRepository {
	return &PostgresTokenRepository{
		client: client,
		logger: logger.WithComponent("postgres-token-repo"),
	}
}

// UpsertToken creates or updates token mint metadata. Suspicious/NFT flags are
// sticky: once set they survive later upserts from sources that do not know
// about them.
func (r *PostgresTokenRepository) UpsertToken(ctx context.Context, token *entity.Token) error {
	query := `
		INSERT INTO tokens (mint, symbol, name, decimals, supply, is_suspicious, is_nft, liquidity_usd, holder_count, first_seen, last_updated)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (mint) DO UPDATE SET
			symbol        = COALESCE(EXCLUDED.symbol, tokens.symbol),
			name          = COALESCE(EXCLUDED.name, tokens.name),
			decimals      = EXCLUDED.decimals,
			supply        = EXCLUDED.supply,
			is_suspicious = tokens.is_suspicious OR EXCLUDED.is_suspicious,
			is_nft        = tokens.is_nft OR EXCLUDED.is_nft,
			liquidity_usd = EXCLUDED.liquidity_usd,
			holder_count  = EXCLUDED.holder_count,
			last_updated  = GREATEST(tokens.last_updated, EXCLUDED.last_updated)
	`

	_, err := r.client.Pool().Exec(ctx, query,
		token.Mint,
		token.Symbol,
		token.Name,
		token.Decimals,
		token.Supply,
		token.IsSuspicious,
		token.IsNFT,
		token.LiquidityUSD,
		token.HolderCount,
		token.FirstSeen,
		token.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}

	return nil
}

// GetToken retrieves a token by mint
func (r *PostgresTokenRepository) GetToken(ctx context.Context, mint string) (*entity.Token, error) {
	query := `
		SELECT mint, COALESCE(symbol, ''), COALESCE(name, ''), decimals, supply, is_suspicious, is_nft, liquidity_usd, holder_count, first_seen, last_updated
		FROM tokens
		WHERE mint = $1
	`

	token := &entity.Token{}
	err := r.client.Pool().QueryRow(ctx, query, mint).Scan(
		&token.Mint,
		&token.Symbol,
		&token.Name,
		&token.Decimals,
		&token.Supply,
		&token.IsSuspicious,
		&token.IsNFT,
		&token.LiquidityUSD,
		&token.HolderCount,
		&token.FirstSeen,
		&token.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("token not found: %s", mint)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}
