package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	app_service "solana-wallet-indexer/internal/application/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/database"
	"solana-wallet-indexer/internal/infrastructure/logger"
	"solana-wallet-indexer/internal/infrastructure/oracle"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The enricher is a batch job: it backfills USD valuation onto swap rows the
// indexer has written, then exits. It runs from cron or by hand; concurrent
// runs are safe because every write is a single-row update on rows selected
// by the same predicate.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgresClient := database.NewPostgresClient(&cfg.Postgres, log)
	if err := postgresClient.Connect(ctx); err != nil {
		log.Error("Failed to connect to Postgres", zap.Error(err))
		os.Exit(1)
	}
	defer postgresClient.Close()

	transactionRepo := database.NewPostgresTransactionRepository(postgresClient, log)
	rpcLogRepo := database.NewPostgresRPCLogRepository(postgresClient, log)
	priceOracle := oracle.NewPriceClient(&cfg.Oracle, rpcLogRepo, log)

	pipeline := app_service.NewEnrichmentApplicationService(transactionRepo, priceOracle, &cfg.Enrichment, log)

	log.Info("Starting price enrichment run",
		zap.Int("batch_size", cfg.Enrichment.BatchSize),
		zap.Int("worker_count", cfg.Enrichment.WorkerCount),
		zap.String("oracle", cfg.Oracle.BaseURL))

	summary, err := pipeline.Run(ctx)
	if err != nil {
		log.Error("Enrichment run failed",
			zap.Int64("processed", summary.Processed),
			zap.Int64("enriched", summary.Enriched),
			zap.Int64("skipped", summary.Skipped),
			zap.Error(err))
		os.Exit(1)
	}

	// Skipped rows are not a failure; the next run retries them
	log.Info("Enrichment run completed",
		zap.Int64("processed", summary.Processed),
		zap.Int64("enriched", summary.Enriched),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("remaining", summary.Remaining))
}
