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

// PostgresPatternRepository implements PatternRepository interface
type PostgresPatternRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresPatternRepository creates a new Postgres pattern repository
func NewPostgresPatternRepository(client *PostgresClient, logger *logger.Logger) repository.PatternRepository {
	return &PostgresPatternRepository{
		client: client,
		logger: logger.WithComponent("postgres-pattern-repo"),
	}
}

// AppendPattern records a detected pattern
func (r *PostgresPatternRepository) AppendPattern(ctx context.Context, pattern *entity.DetectedPattern) error {
	if pattern.Confidence < 0 || pattern.Confidence > 1 {
		return fmt.Errorf("pattern confidence out of range: %f", pattern.Confidence)
	}

	query := `
		INSERT INTO detected_patterns (wallet_address, pattern_type, confidence, details, detected_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.client.Pool().QueryRow(ctx, query,
		pattern.WalletAddress,
		pattern.PatternType,
		pattern.Confidence,
		pattern.Details,
		pattern.DetectedAt,
	).Scan(&pattern.ID)
	if err != nil {
		return fmt.Errorf("failed to append pattern: %w", err)
	}

	return nil
}

// GetPatternsByWallet retrieves patterns for a wallet, highest confidence first
func (r *PostgresPatternRepository) GetPatternsByWallet(ctx context.Context, address string) ([]*entity.DetectedPattern, error) {
	query := `
		SELECT id, wallet_address, pattern_type, confidence, details, detected_at
		FROM detected_patterns
		WHERE wallet_address = $1
		ORDER BY confidence DESC, detected_at DESC
	`
	return r.queryPatterns(ctx, query, address)
}

// GetTopPatterns retrieves patterns of a type ranked by confidence
func (r *PostgresPatternRepository) GetTopPatterns(ctx context.Context, patternType string, limit int) ([]*entity.DetectedPattern, error) {
	query := `
		SELECT id, wallet_address, pattern_type, confidence, details, detected_at
		FROM detected_patterns
		WHERE pattern_type = $1
		ORDER BY confidence DESC
		LIMIT $2
	`
	return r.queryPatterns(ctx, query, patternType, limit)
}

func (r *PostgresPatternRepository) queryPatterns(ctx context.Context, query string, args ...interface{}) ([]*entity.DetectedPattern, error) {
	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*entity.DetectedPattern
	for rows.Next() {
		p := &entity.DetectedPattern{}
		if err := rows.Scan(&p.ID, &p.WalletAddress, &p.PatternType, &p.Confidence, &p.Details, &p.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}

	return patterns, rows.Err()
}

// PostgresRPCLogRepository implements RPCLogRepository interface
type PostgresRPCLogRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresRPCLogRepository creates a new Postgres RPC call log repository
func NewPostgresRPCLogRepository(client *PostgresClient, logger *logger.Logger) repository.RPCLogRepository {
	return &PostgresRPCLogRepository{
		client: client,
		logger: logger.WithComponent("postgres-rpclog-repo"),
	}
}

// Append records one upstream call
func (r *PostgresRPCLogRepository) Append(ctx context.Context, log *entity.RPCCallLog) error {
	query := `
		INSERT INTO rpc_call_log (method, params, success, duration_ms, error, called_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`
	_, err := r.client.Pool().Exec(ctx, query,
		log.Method, log.Params, log.Success, log.DurationMS, log.Error, log.CalledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append rpc log: %w", err)
	}
	return nil
}

// PostgresStatsRepository implements StatsRepository interface
type PostgresStatsRepository struct {
	client *PostgresClient
	logger *logger.Logger
}

// NewPostgresStatsRepository creates a new Postgres wallet stats repository
func NewPostgresStatsRepository(client *PostgresClient, logger *logger.Logger) repository.StatsRepository {
	return &PostgresStatsRepository{
		client: client,
		logger: logger.WithComponent("postgres-stats-repo"),
	}
}

// Refresh recomputes the wallet_stats materialized view. CONCURRENTLY keeps
// readers unblocked and reads a consistent snapshot of the source tables.
func (r *PostgresStatsRepository) Refresh(ctx context.Context) error {
	if _, err := r.client.Pool().Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY wallet_stats`); err != nil {
		return fmt.Errorf("failed to refresh wallet stats: %w", err)
	}
	r.logger.Info("Refreshed wallet stats view")
	return nil
}

// GetWalletStats retrieves the rollup for a wallet. A wallet with no transfers
// yet gets zeroed stats.
func (r *PostgresStatsRepository) GetWalletStats(ctx context.Context, address string) (*entity.WalletStats, error) {
	query := `
		SELECT address, sol_transfers_sent, sol_transfers_received, token_transfers_sent, token_transfers_received,
			lamports_sent, lamports_received, unique_counterparties, unique_tokens
		FROM wallet_stats
		WHERE address = $1
	`

	stats := &entity.WalletStats{}
	err := r.client.Pool().QueryRow(ctx, query, address).Scan(
		&stats.Address,
		&stats.SolTransfersSent,
		&stats.SolTransfersReceived,
		&stats.TokenTransfersSent,
		&stats.TokenTransfersReceived,
		&stats.LamportsSent,
		&stats.LamportsReceived,
		&stats.UniqueCounterparties,
		&stats.UniqueTokens,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.WalletStats{Address: address}, nil
		}
		return nil, fmt.Errorf("failed to get wallet stats: %w", err)
	}

	return stats, nil
}
