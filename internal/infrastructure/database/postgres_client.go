package database

import (
	"context"
	"fmt"

	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresClient handles the schema store connection pool
type PostgresClient struct {
	pool   *pgxpool.Pool
	config *config.PostgresConfig
	logger *logger.Logger
}

// NewPostgresClient creates a new Postgres client
func NewPostgresClient(cfg *config.PostgresConfig, logger *logger.Logger) *PostgresClient {
	return &PostgresClient{
		config: cfg,
		logger: logger.WithComponent("postgres-client"),
	}
}

// Connect opens the pool and sets up the schema
func (c *PostgresClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to Postgres")

	poolCfg, err := pgxpool.ParseConfig(c.config.URI)
	if err != nil {
		return fmt.Errorf("failed to parse Postgres URI: %w", err)
	}
	if c.config.MaxConns > 0 {
		poolCfg.MaxConns = c.config.MaxConns
	}
	poolCfg.ConnConfig.ConnectTimeout = c.config.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create Postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping Postgres: %w", err)
	}

	c.pool = pool
	c.logger.Info("Successfully connected to Postgres")

	if err := c.setupSchema(ctx); err != nil {
		return fmt.Errorf("failed to setup schema: %w", err)
	}

	return nil
}

// Close closes the connection pool
func (c *PostgresClient) Close() {
	if c.pool != nil {
		c.logger.Info("Closing Postgres pool")
		c.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (c *PostgresClient) Pool() *pgxpool.Pool {
	return c.pool
}

// IsConnected checks connectivity
func (c *PostgresClient) IsConnected(ctx context.Context) bool {
	if c.pool == nil {
		return false
	}
	return c.pool.Ping(ctx) == nil
}

// setupSchema creates tables, constraints, indexes and the materialized view
func (c *PostgresClient) setupSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			address      TEXT PRIMARY KEY,
			balance      BIGINT NOT NULL DEFAULT 0,
			owner        TEXT,
			risk_score   DOUBLE PRECISION,
			is_exchange  BOOLEAN NOT NULL DEFAULT FALSE,
			is_mixer     BOOLEAN NOT NULL DEFAULT FALSE,
			first_seen   TIMESTAMPTZ NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			metadata     JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallets_balance ON wallets (balance DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_wallets_risk_score ON wallets (risk_score DESC NULLS LAST)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			signature  TEXT PRIMARY KEY,
			slot       BIGINT NOT NULL,
			block_time TIMESTAMPTZ,
			fee        BIGINT NOT NULL DEFAULT 0,
			status     TEXT NOT NULL,
			error      TEXT,
			accounts   TEXT[] NOT NULL DEFAULT '{}',
			programs   TEXT[] NOT NULL DEFAULT '{}',
			raw        JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_block_time ON transactions (block_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_slot ON transactions (slot DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_accounts ON transactions USING GIN (accounts)`,

		`CREATE TABLE IF NOT EXISTS sol_transfers (
			signature      TEXT NOT NULL REFERENCES transactions(signature) ON DELETE CASCADE,
			transfer_index INT NOT NULL,
			from_address   TEXT NOT NULL,
			to_address     TEXT NOT NULL,
			lamports       BIGINT NOT NULL,
			block_time     TIMESTAMPTZ,
			PRIMARY KEY (signature, transfer_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sol_transfers_from ON sol_transfers (from_address)`,
		`CREATE INDEX IF NOT EXISTS idx_sol_transfers_to ON sol_transfers (to_address)`,
		`CREATE INDEX IF NOT EXISTS idx_sol_transfers_block_time ON sol_transfers (block_time DESC)`,

		`CREATE TABLE IF NOT EXISTS token_transfers (
			signature      TEXT NOT NULL REFERENCES transactions(signature) ON DELETE CASCADE,
			transfer_index INT NOT NULL,
			from_address   TEXT NOT NULL,
			to_address     TEXT NOT NULL,
			mint           TEXT NOT NULL,
			amount         DOUBLE PRECISION NOT NULL,
			decimals       INT NOT NULL DEFAULT 0,
			authority      TEXT,
			block_time     TIMESTAMPTZ,
			is_swap        BOOLEAN NOT NULL DEFAULT FALSE,
			token_in_mint  TEXT,
			token_out_mint TEXT,
			amount_in      DOUBLE PRECISION,
			amount_out     DOUBLE PRECISION,
			price_usd_in   DOUBLE PRECISION,
			price_usd_out  DOUBLE PRECISION,
			value_usd_in   DOUBLE PRECISION,
			value_usd_out  DOUBLE PRECISION,
			pnl_usd        DOUBLE PRECISION,
			PRIMARY KEY (signature, transfer_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_transfers_from ON token_transfers (from_address)`,
		`CREATE INDEX IF NOT EXISTS idx_token_transfers_to ON token_transfers (to_address)`,
		`CREATE INDEX IF NOT EXISTS idx_token_transfers_mint ON token_transfers (mint)`,
		`CREATE INDEX IF NOT EXISTS idx_token_transfers_unpriced ON token_transfers (block_time DESC)
			WHERE is_swap AND price_usd_in IS NULL`,

		`CREATE TABLE IF NOT EXISTS tokens (
			mint          TEXT PRIMARY KEY,
			symbol        TEXT,
			name          TEXT,
			decimals      INT NOT NULL DEFAULT 0,
			supply        DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_suspicious BOOLEAN NOT NULL DEFAULT FALSE,
			is_nft        BOOLEAN NOT NULL DEFAULT FALSE,
			liquidity_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			holder_count  BIGINT NOT NULL DEFAULT 0,
			first_seen    TIMESTAMPTZ NOT NULL,
			last_updated  TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS analysis_cache (
			cache_key  TEXT PRIMARY KEY,
			cache_type TEXT NOT NULL,
			result     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_cache_expires ON analysis_cache (expires_at)`,

		`CREATE TABLE IF NOT EXISTS detected_patterns (
			id             BIGSERIAL PRIMARY KEY,
			wallet_address TEXT NOT NULL,
			pattern_type   TEXT NOT NULL,
			confidence     DOUBLE PRECISION NOT NULL,
			details        JSONB,
			detected_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_wallet ON detected_patterns (wallet_address)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_type_confidence ON detected_patterns (pattern_type, confidence DESC)`,

		`CREATE TABLE IF NOT EXISTS rpc_call_log (
			id          BIGSERIAL PRIMARY KEY,
			method      TEXT NOT NULL,
			params      JSONB,
			success     BOOLEAN NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error       TEXT,
			called_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rpc_call_log_called_at ON rpc_call_log (called_at DESC)`,

		`CREATE MATERIALIZED VIEW IF NOT EXISTS wallet_stats AS
			WITH flows AS (
				SELECT from_address AS address, to_address AS counterparty,
					NULL::TEXT AS mint, lamports, TRUE AS outgoing, TRUE AS native
				FROM sol_transfers
				UNION ALL
				SELECT to_address, from_address, NULL, lamports, FALSE, TRUE
				FROM sol_transfers
				UNION ALL
				SELECT from_address, to_address, mint, 0, TRUE, FALSE
				FROM token_transfers
				UNION ALL
				SELECT to_address, from_address, mint, 0, FALSE, FALSE
				FROM token_transfers
			)
			SELECT
				address,
				COUNT(*) FILTER (WHERE native AND outgoing)                          AS sol_transfers_sent,
				COUNT(*) FILTER (WHERE native AND NOT outgoing)                      AS sol_transfers_received,
				COUNT(*) FILTER (WHERE NOT native AND outgoing)                      AS token_transfers_sent,
				COUNT(*) FILTER (WHERE NOT native AND NOT outgoing)                  AS token_transfers_received,
				COALESCE(SUM(lamports) FILTER (WHERE native AND outgoing), 0)        AS lamports_sent,
				COALESCE(SUM(lamports) FILTER (WHERE native AND NOT outgoing), 0)    AS lamports_received,
				COUNT(DISTINCT counterparty)                                         AS unique_counterparties,
				COUNT(DISTINCT mint)                                                 AS unique_tokens
			FROM flows
			GROUP BY address`,
		// REFRESH ... CONCURRENTLY requires a unique index on the view
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_stats_address ON wallet_stats (address)`,
	}

	for _, stmt := range statements {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			c.logger.Error("Failed to execute schema statement", zap.Error(err))
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	c.logger.Info("Schema setup completed")
	return nil
}
