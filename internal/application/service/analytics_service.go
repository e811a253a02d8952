package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

const walletAnalysisCacheType = "wallet_analysis"

// AnalyticsApplicationService implements AnalyticsService interface: the
// cache-through read path over the schema store and the relationship graph.
type AnalyticsApplicationService struct {
	walletRepo       repository.WalletRepository
	statsRepo        repository.StatsRepository
	relationshipRepo repository.RelationshipRepository
	patternRepo      repository.PatternRepository
	cacheRepo        repository.CacheRepository
	ttl              time.Duration
	logger           *logger.Logger
}

// NewAnalyticsApplicationService creates a new analytics application service
func NewAnalyticsApplicationService(
	walletRepo repository.WalletRepository,
	statsRepo repository.StatsRepository,
	relationshipRepo repository.RelationshipRepository,
	patternRepo repository.PatternRepository,
	cacheRepo repository.CacheRepository,
	cfg *config.CacheConfig,
	logger *logger.Logger,
) service.AnalyticsService {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AnalyticsApplicationService{
		walletRepo:       walletRepo,
		statsRepo:        statsRepo,
		relationshipRepo: relationshipRepo,
		patternRepo:      patternRepo,
		cacheRepo:        cacheRepo,
		ttl:              ttl,
		logger:           logger.WithComponent("analytics-service"),
	}
}

// GetWalletAnalysis returns the analysis document for a wallet. A live cache
// entry short-circuits the computation; an expired or missing one triggers a
// recompute and re-cache. The cache never holds anything that cannot be
// rebuilt here.
func (s *AnalyticsApplicationService) GetWalletAnalysis(ctx context.Context, address string) (*entity.WalletAnalysis, error) {
	key := walletAnalysisCacheType + ":" + address

	entry, err := s.cacheRepo.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed, recomputing", zap.Error(err))
	} else if entry != nil && !entry.Expired(time.Now()) {
		analysis := &entity.WalletAnalysis{}
		if err := json.Unmarshal(entry.Result, analysis); err == nil {
			s.logger.Debug("Served wallet analysis from cache", zap.String("address", address))
			return analysis, nil
		}
		s.logger.Warn("Malformed cache entry, recomputing", zap.String("cache_key", key))
	}

	analysis, err := s.computeWalletAnalysis(ctx, address)
	if err != nil {
		return nil, err
	}

	if result, err := json.Marshal(analysis); err == nil {
		if err := s.cacheRepo.Put(ctx, key, walletAnalysisCacheType, result, s.ttl); err != nil {
			s.logger.Warn("Failed to cache wallet analysis", zap.Error(err))
		}
	}

	return analysis, nil
}

// RefreshStats recomputes the materialized wallet stats view
func (s *AnalyticsApplicationService) RefreshStats(ctx context.Context) error {
	if err := s.statsRepo.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh stats: %w", err)
	}
	return nil
}

func (s *AnalyticsApplicationService) computeWalletAnalysis(ctx context.Context, address string) (*entity.WalletAnalysis, error) {
	analysis := &entity.WalletAnalysis{
		Address:     address,
		GeneratedAt: time.Now().UTC(),
	}

	// The wallet row may not exist yet for an address only seen as a
	// counterparty; analysis still works from stats and edges.
	if wallet, err := s.walletRepo.GetWallet(ctx, address); err == nil {
		analysis.Wallet = wallet
	}

	stats, err := s.statsRepo.GetWalletStats(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet stats: %w", err)
	}
	analysis.Stats = stats

	relationships, err := s.relationshipRepo.GetTopRelationships(ctx, address, 10)
	if err != nil {
		s.logger.Warn("Failed to get top relationships", zap.String("address", address), zap.Error(err))
	} else {
		analysis.TopRelationships = relationships
	}

	patterns, err := s.patternRepo.GetPatternsByWallet(ctx, address)
	if err != nil {
		s.logger.Warn("Failed to get patterns", zap.String("address", address), zap.Error(err))
	} else {
		analysis.Patterns = patterns
	}

	return analysis, nil
}
