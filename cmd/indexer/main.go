package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	app_service "solana-wallet-indexer/internal/application/service"
	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	domain_service "solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/database"
	"solana-wallet-indexer/internal/infrastructure/logger"
	"solana-wallet-indexer/internal/infrastructure/messaging"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Load .env if present; real deployments use environment variables
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Create FX application
	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Postgres),
		fx.Supply(&cfg.Neo4J),
		fx.Supply(&cfg.Cache),
		fx.Provide(func() *zap.Logger { return log.Logger }),

		// Infrastructure providers
		fx.Provide(
			database.NewPostgresClient,
			database.NewPostgresWalletRepository,
			database.NewPostgresTransactionRepository,
			database.NewPostgresTokenRepository,
			database.NewPostgresCacheRepository,
			database.NewPostgresPatternRepository,
			database.NewPostgresRPCLogRepository,
			database.NewPostgresStatsRepository,
			database.NewNeo4JClient,
			func(client *database.Neo4JClient, log *logger.Logger) repository.RelationshipRepository {
				return database.NewNeo4JRelationshipRepository(client, domain_service.DefaultRelationshipScore, log)
			},
			messaging.NewNATSConsumer,
		),

		// Application providers
		fx.Provide(
			app_service.NewIndexingApplicationService,
			app_service.NewAnalyticsApplicationService,
		),

		// Lifecycle hooks
		fx.Invoke(startIndexer),
		fx.Invoke(startCacheSweeper),
		fx.Invoke(startStatsRefresher),
		fx.Invoke(startHealthServer),

		// Configure logging
		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	// Stop the application
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

// startIndexer connects the stores and starts consuming transaction events
func startIndexer(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	indexingService domain_service.IndexingService,
	log *zap.Logger,
	cfg *config.Config,
	postgresClient *database.PostgresClient,
	neo4jClient *database.Neo4JClient,
) {
	processCtx, cancel := context.WithCancel(context.Background())

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting indexing service...")

			// Connect to the schema store first; everything writes through it
			log.Info("Connecting to Postgres schema store")
			if err := postgresClient.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to Postgres: %w", err)
			}

			// Connect to the relationship graph
			log.Info("Connecting to Neo4J relationship graph")
			if err := neo4jClient.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to Neo4J: %w", err)
			}

			log.Info("NATS Configuration",
				zap.String("url", cfg.NATS.URL),
				zap.String("stream_name", cfg.NATS.StreamName),
				zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
				zap.Bool("enabled", cfg.NATS.Enabled),
			)

			// Connect to NATS
			if err := consumer.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			// Start message processing
			go processMessages(processCtx, consumer, indexingService, log, cfg)

			log.Info("Indexing service started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping indexing service...")
			cancel()
			if err := consumer.Disconnect(); err != nil {
				log.Error("Failed to disconnect from NATS", zap.Error(err))
			}
			if err := neo4jClient.Close(ctx); err != nil {
				log.Error("Failed to close Neo4J connection", zap.Error(err))
			}
			postgresClient.Close()
			return nil
		},
	})
}

// startCacheSweeper periodically deletes expired analysis cache entries
func startCacheSweeper(
	lifecycle fx.Lifecycle,
	cacheRepo repository.CacheRepository,
	cfg *config.Config,
	logger *logger.Logger,
) {
	log := logger.WithComponent("cache-sweeper")
	sweepCtx, cancel := context.WithCancel(context.Background())

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			interval := cfg.Cache.SweepInterval
			if interval <= 0 {
				interval = 10 * time.Minute
			}

			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-sweepCtx.Done():
						return
					case <-ticker.C:
						removed, err := cacheRepo.SweepExpired(sweepCtx)
						if err != nil {
							log.Error("Cache sweep failed", zap.Error(err))
							continue
						}
						if removed > 0 {
							log.Info("Swept expired cache entries", zap.Int64("removed", removed))
						}
					}
				}
			}()

			log.Info("Cache sweeper started", zap.Duration("interval", interval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

// startStatsRefresher periodically recomputes the materialized wallet stats
func startStatsRefresher(
	lifecycle fx.Lifecycle,
	analyticsService domain_service.AnalyticsService,
	cfg *config.Config,
	logger *logger.Logger,
) {
	log := logger.WithComponent("stats-refresher")
	refreshCtx, cancel := context.WithCancel(context.Background())

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			interval := cfg.App.StatsInterval
			if interval <= 0 {
				interval = 5 * time.Minute
			}

			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-refreshCtx.Done():
						return
					case <-ticker.C:
						start := time.Now()
						if err := analyticsService.RefreshStats(refreshCtx); err != nil {
							log.Error("Stats refresh failed", zap.Error(err))
							continue
						}
						log.Info("Refreshed wallet stats", zap.Duration("took", time.Since(start)))
					}
				}
			}()

			log.Info("Stats refresher started", zap.Duration("interval", interval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

// startHealthServer starts the health check server
func startHealthServer(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	logger *logger.Logger,
	postgresClient *database.PostgresClient,
	consumer *messaging.NATSConsumer,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting health server...", zap.Int("port", cfg.App.HTTPPort))

			// Create health check server
			mux := http.NewServeMux()
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				if !postgresClient.IsConnected(r.Context()) {
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte(`{"status":"degraded","postgres":"down"}`))
					return
				}
				if cfg.NATS.Enabled && !consumer.IsConnected() {
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte(`{"status":"degraded","nats":"down"}`))
					return
				}
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status":"ok"}`))
			})

			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.App.HTTPPort),
				Handler: mux,
			}

			// Start server in background
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Health server error", zap.Error(err))
				}
			}()

			logger.Info("Health server started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping health server...")
			return nil
		},
	})
}

// processMessages batches transaction events from NATS and feeds them to a
// worker pool
func processMessages(
	ctx context.Context,
	consumer *messaging.NATSConsumer,
	indexingService domain_service.IndexingService,
	logger *zap.Logger,
	cfg *config.Config,
) {
	msgChan := consumer.GetMessageChannel()
	batch := make([]*entity.TransactionEvent, 0, cfg.App.BatchSize)
	ticker := time.NewTicker(5 * time.Second) // Flush batch every 5 seconds
	defer ticker.Stop()

	// Worker pool for parallel batch processing
	jobChan := make(chan []*entity.TransactionEvent, cfg.App.WorkerPoolSize)
	var wg sync.WaitGroup

	for i := 0; i < cfg.App.WorkerPoolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			logger.Info("Starting batch processing worker", zap.Int("worker_id", workerID))

			for job := range jobChan {
				if err := indexingService.ProcessEventBatch(ctx, job); err != nil {
					logger.Error("Failed to process event batch",
						zap.Error(err),
						zap.Int("worker_id", workerID),
						zap.Int("batch_size", len(job)))
				} else {
					logger.Info("Successfully processed batch",
						zap.Int("worker_id", workerID),
						zap.Int("batch_size", len(job)))
				}
			}
		}(i)
	}

	// Hand the current batch to a worker; the slice is cloned because the
	// loop keeps appending to the backing array
	flush := func() {
		if len(batch) == 0 {
			return
		}
		job := make([]*entity.TransactionEvent, len(batch))
		copy(job, batch)
		jobChan <- job
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(jobChan)
			wg.Wait()
			return

		case event := <-msgChan:
			if event == nil {
				// Channel closed, clean up
				flush()
				close(jobChan)
				wg.Wait()
				return
			}

			batch = append(batch, event)
			if len(batch) >= cfg.App.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}
