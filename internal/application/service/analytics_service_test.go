package service

import (
	"context"
	"testing"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/database"
	"solana-wallet-indexer/internal/infrastructure/logger"
)

func newAnalyticsService(store *database.MemoryStore, ttl time.Duration) service.AnalyticsService {
	return NewAnalyticsApplicationService(store, store, store, store, store,
		&config.CacheConfig{DefaultTTL: ttl}, logger.NewNop())
}

func seedWalletActivity(t *testing.T, store *database.MemoryStore) {
	t.Helper()

	blockTime := time.Now().UTC()
	event := &entity.Transaction{
		Signature: "sig-1",
		Slot:      100,
		BlockTime: &blockTime,
		Status:    entity.TxStatusSuccess,
	}
	sol := []*entity.SolTransfer{{
		Signature:   "sig-1",
		FromAddress: "WalletA",
		ToAddress:   "WalletB",
		Lamports:    2_000_000_000,
		BlockTime:   blockTime,
	}}
	if err := store.InsertTransaction(context.Background(), event, sol, nil); err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	balance := int64(5_000_000_000)
	if err := store.UpsertWallet(context.Background(), &entity.Wallet{
		Address:     "WalletA",
		Balance:     &balance,
		FirstSeen:   blockTime,
		LastUpdated: blockTime,
	}); err != nil {
		t.Fatalf("failed to seed wallet: %v", err)
	}
	if _, err := store.UpsertRelationship(context.Background(), "WalletA", "WalletB", &entity.RelationshipDelta{
		Lamports:     2_000_000_000,
		Transactions: 1,
		Timestamp:    blockTime,
	}); err != nil {
		t.Fatalf("failed to seed relationship: %v", err)
	}
}

func TestGetWalletAnalysisComputesAndCaches(t *testing.T) {
	store := database.NewMemoryStore(nil)
	seedWalletActivity(t, store)
	svc := newAnalyticsService(store, time.Hour)

	if err := svc.RefreshStats(context.Background()); err != nil {
		t.Fatalf("failed to refresh stats: %v", err)
	}

	analysis, err := svc.GetWalletAnalysis(context.Background(), "WalletA")
	if err != nil {
		t.Fatalf("failed to get analysis: %v", err)
	}
	if analysis.Wallet == nil || analysis.Wallet.Balance == nil || *analysis.Wallet.Balance != 5_000_000_000 {
		t.Errorf("expected wallet with balance, got %+v", analysis.Wallet)
	}
	if analysis.Stats == nil || analysis.Stats.LamportsSent != 2_000_000_000 {
		t.Errorf("expected stats with lamports_sent, got %+v", analysis.Stats)
	}
	if len(analysis.TopRelationships) != 1 || analysis.TopRelationships[0].ToAddress != "WalletB" {
		t.Errorf("expected one relationship to WalletB, got %+v", analysis.TopRelationships)
	}

	// A live cache entry must short-circuit recomputation: new activity is
	// invisible until the entry expires.
	if err := store.AppendPattern(context.Background(), &entity.DetectedPattern{
		WalletAddress: "WalletA",
		PatternType:   "wash_trading",
		Confidence:    0.9,
		DetectedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to append pattern: %v", err)
	}

	cached, err := svc.GetWalletAnalysis(context.Background(), "WalletA")
	if err != nil {
		t.Fatalf("failed to get cached analysis: %v", err)
	}
	if len(cached.Patterns) != 0 {
		t.Errorf("expected cached analysis without the new pattern, got %d patterns", len(cached.Patterns))
	}
	if !cached.GeneratedAt.Equal(analysis.GeneratedAt) {
		t.Errorf("expected cached analysis to keep its original generated_at")
	}
}

func TestGetWalletAnalysisExpiredEntryRecomputes(t *testing.T) {
	store := database.NewMemoryStore(nil)
	seedWalletActivity(t, store)
	svc := newAnalyticsService(store, 10*time.Millisecond)

	if _, err := svc.GetWalletAnalysis(context.Background(), "WalletA"); err != nil {
		t.Fatalf("failed to get analysis: %v", err)
	}

	if err := store.AppendPattern(context.Background(), &entity.DetectedPattern{
		WalletAddress: "WalletA",
		PatternType:   "wash_trading",
		Confidence:    0.9,
		DetectedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to append pattern: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	analysis, err := svc.GetWalletAnalysis(context.Background(), "WalletA")
	if err != nil {
		t.Fatalf("failed to get analysis after expiry: %v", err)
	}
	if len(analysis.Patterns) != 1 {
		t.Errorf("expected recomputed analysis to include the new pattern, got %d", len(analysis.Patterns))
	}
}

func TestGetWalletAnalysisUnknownWallet(t *testing.T) {
	store := database.NewMemoryStore(nil)
	svc := newAnalyticsService(store, time.Hour)

	// An address never seen still yields an analysis document with empty stats.
	analysis, err := svc.GetWalletAnalysis(context.Background(), "NeverSeen")
	if err != nil {
		t.Fatalf("failed to get analysis: %v", err)
	}
	if analysis.Wallet != nil {
		t.Errorf("expected no wallet row, got %+v", analysis.Wallet)
	}
	if analysis.Stats == nil || analysis.Stats.Address != "NeverSeen" {
		t.Errorf("expected zeroed stats for the address, got %+v", analysis.Stats)
	}
}

func TestRefreshStatsFoldsTransfers(t *testing.T) {
	store := database.NewMemoryStore(nil)
	seedWalletActivity(t, store)
	svc := newAnalyticsService(store, time.Hour)

	if err := svc.RefreshStats(context.Background()); err != nil {
		t.Fatalf("failed to refresh stats: %v", err)
	}

	stats, err := store.GetWalletStats(context.Background(), "WalletB")
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.SolTransfersReceived != 1 || stats.LamportsReceived != 2_000_000_000 {
		t.Errorf("unexpected receiver stats: %+v", stats)
	}
	if stats.UniqueCounterparties != 1 {
		t.Errorf("expected 1 unique counterparty, got %d", stats.UniqueCounterparties)
	}
}
