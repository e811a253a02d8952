package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
)

func insertTestTransaction(t *testing.T, store *MemoryStore, signature string) {
	t.Helper()

	blockTime := time.Now().UTC()
	tx := &entity.Transaction{
		Signature: signature,
		Slot:      100,
		BlockTime: &blockTime,
		Status:    entity.TxStatusSuccess,
	}
	sol := []*entity.SolTransfer{{
		Signature:   signature,
		FromAddress: "WalletA",
		ToAddress:   "WalletB",
		Lamports:    100,
		BlockTime:   blockTime,
	}}
	tok := []*entity.TokenTransfer{{
		Signature:   signature,
		FromAddress: "WalletA",
		ToAddress:   "WalletB",
		Mint:        "MintX",
		Amount:      1,
		BlockTime:   blockTime,
	}}
	if err := store.InsertTransaction(context.Background(), tx, sol, tok); err != nil {
		t.Fatalf("failed to insert transaction: %v", err)
	}
}

func TestUpsertWalletNilBalancePreservesKnown(t *testing.T) {
	store := NewMemoryStore(nil)
	now := time.Now().UTC()

	balance := int64(123)
	if err := store.UpsertWallet(context.Background(), &entity.Wallet{
		Address: "WalletA", Balance: &balance, FirstSeen: now, LastUpdated: now,
	}); err != nil {
		t.Fatalf("failed to upsert wallet: %v", err)
	}

	if err := store.UpsertWallet(context.Background(), &entity.Wallet{
		Address: "WalletA", FirstSeen: now, LastUpdated: now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("failed to upsert wallet without balance: %v", err)
	}

	wallet, err := store.GetWallet(context.Background(), "WalletA")
	if err != nil {
		t.Fatalf("failed to get wallet: %v", err)
	}
	if wallet.Balance == nil || *wallet.Balance != 123 {
		t.Errorf("expected balance 123 to survive a balance-less upsert, got %v", wallet.Balance)
	}
	if !wallet.LastUpdated.After(now) {
		t.Error("expected last_updated to advance")
	}
}

func TestDeleteTransactionCascades(t *testing.T) {
	store := NewMemoryStore(nil)
	insertTestTransaction(t, store, "sig-1")

	if err := store.DeleteTransaction(context.Background(), "sig-1"); err != nil {
		t.Fatalf("failed to delete transaction: %v", err)
	}

	if _, err := store.GetTransaction(context.Background(), "sig-1"); err == nil {
		t.Error("expected transaction to be gone")
	}
	sol, tok, err := store.GetTransfers(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("failed to get transfers: %v", err)
	}
	if len(sol) != 0 || len(tok) != 0 {
		t.Errorf("expected transfers to cascade, got %d sol and %d token rows", len(sol), len(tok))
	}
}

func TestInsertTransactionRejectsForeignTransfers(t *testing.T) {
	store := NewMemoryStore(nil)

	tx := &entity.Transaction{Signature: "sig-1", Status: entity.TxStatusSuccess}
	sol := []*entity.SolTransfer{{Signature: "sig-other", FromAddress: "A", ToAddress: "B"}}

	if err := store.InsertTransaction(context.Background(), tx, sol, nil); err == nil {
		t.Fatal("expected error for transfer referencing another transaction")
	}
	if _, err := store.GetTransaction(context.Background(), "sig-1"); err == nil {
		t.Error("expected nothing to be persisted on rejection")
	}
}

func TestInsertTransactionDuplicateCorrectsStatus(t *testing.T) {
	store := NewMemoryStore(nil)
	insertTestTransaction(t, store, "sig-1")

	dup := &entity.Transaction{
		Signature: "sig-1",
		Status:    entity.TxStatusFailure,
		Error:     "slippage exceeded",
	}
	if err := store.InsertTransaction(context.Background(), dup, nil, nil); err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}

	tx, err := store.GetTransaction(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("failed to get transaction: %v", err)
	}
	if tx.Status != entity.TxStatusFailure || tx.Error != "slippage exceeded" {
		t.Errorf("expected status correction, got %s/%s", tx.Status, tx.Error)
	}

	// The original transfers survive the duplicate insert
	sol, _, _ := store.GetTransfers(context.Background(), "sig-1")
	if len(sol) != 1 {
		t.Errorf("expected original transfers to survive, got %d", len(sol))
	}
}

func TestCacheExpiredEntryReadsAsMiss(t *testing.T) {
	store := NewMemoryStore(nil)
	result, _ := json.Marshal(map[string]string{"verdict": "clean"})

	if err := store.Put(context.Background(), "analysis:WalletA", "wallet_analysis", result, 10*time.Millisecond); err != nil {
		t.Fatalf("failed to put cache entry: %v", err)
	}

	entry, err := store.Get(context.Background(), "analysis:WalletA")
	if err != nil {
		t.Fatalf("failed to get cache entry: %v", err)
	}
	if entry == nil {
		t.Fatal("expected live entry before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	entry, err = store.Get(context.Background(), "analysis:WalletA")
	if err != nil {
		t.Fatalf("failed to get cache entry: %v", err)
	}
	if entry != nil {
		t.Error("expected expired entry to read as miss")
	}
}

func TestCachePutOverwrites(t *testing.T) {
	store := NewMemoryStore(nil)

	store.Put(context.Background(), "key", "wallet_analysis", json.RawMessage(`{"v":1}`), time.Hour)
	store.Put(context.Background(), "key", "wallet_analysis", json.RawMessage(`{"v":2}`), time.Hour)

	entry, err := store.Get(context.Background(), "key")
	if err != nil {
		t.Fatalf("failed to get cache entry: %v", err)
	}
	if entry == nil || string(entry.Result) != `{"v":2}` {
		t.Errorf("expected overwritten entry, got %+v", entry)
	}
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	store := NewMemoryStore(nil)

	store.Put(context.Background(), "stale", "wallet_analysis", json.RawMessage(`{}`), -time.Minute)
	store.Put(context.Background(), "live", "wallet_analysis", json.RawMessage(`{}`), time.Hour)

	removed, err := store.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}

	entry, _ := store.Get(context.Background(), "live")
	if entry == nil {
		t.Error("expected live entry to survive the sweep")
	}
}

func TestUpsertRelationshipMonotoneTotals(t *testing.T) {
	store := NewMemoryStore(nil)
	base := time.Now().UTC().Add(-time.Hour)

	first, err := store.UpsertRelationship(context.Background(), "WalletA", "WalletB", &entity.RelationshipDelta{
		Lamports: 100, Transactions: 1, Timestamp: base,
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	second, err := store.UpsertRelationship(context.Background(), "WalletA", "WalletB", &entity.RelationshipDelta{
		Lamports: 50, Transactions: 1, Timestamp: base.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if second.TotalSol != 150 || second.TotalTransactions != 2 {
		t.Errorf("expected additive totals 150/2, got %d/%d", second.TotalSol, second.TotalTransactions)
	}
	if !second.FirstInteraction.Equal(base) {
		t.Errorf("expected first_interaction to stay at the earliest timestamp")
	}
	if !second.LastInteraction.After(first.LastInteraction) {
		t.Errorf("expected last_interaction to advance")
	}
	if second.Strength < 0 || second.Strength > 1 {
		t.Errorf("expected strength in [0, 1], got %f", second.Strength)
	}
}

func TestUnpricedSwapSelection(t *testing.T) {
	store := NewMemoryStore(nil)
	blockTime := time.Now().UTC()

	tx := &entity.Transaction{Signature: "sig-1", BlockTime: &blockTime, Status: entity.TxStatusSuccess}
	transfers := []*entity.TokenTransfer{
		{Signature: "sig-1", TransferIndex: 0, Mint: "MintX", BlockTime: blockTime, IsSwap: true, TokenInMint: "MintX", TokenOutMint: "MintY", AmountIn: 1, AmountOut: 2},
		{Signature: "sig-1", TransferIndex: 1, Mint: "MintX", BlockTime: blockTime}, // plain transfer, never selected
	}
	if err := store.InsertTransaction(context.Background(), tx, nil, transfers); err != nil {
		t.Fatalf("failed to insert transaction: %v", err)
	}

	swaps, err := store.ListUnpricedSwaps(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to list unpriced swaps: %v", err)
	}
	if len(swaps) != 1 || swaps[0].TransferIndex != 0 {
		t.Fatalf("expected only the swap row, got %+v", swaps)
	}

	if err := store.UpdateSwapValuation(context.Background(), &entity.SwapValuation{
		Signature: "sig-1", TransferIndex: 0, PriceUSDIn: 1, PriceUSDOut: 2, ValueUSDIn: 1, ValueUSDOut: 4, PnlUSD: 3,
	}); err != nil {
		t.Fatalf("failed to update valuation: %v", err)
	}

	count, err := store.CountUnpricedSwaps(context.Background())
	if err != nil {
		t.Fatalf("failed to count unpriced swaps: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unpriced swaps after valuation, got %d", count)
	}
}

func TestAppendPatternValidatesConfidence(t *testing.T) {
	store := NewMemoryStore(nil)

	err := store.AppendPattern(context.Background(), &entity.DetectedPattern{
		WalletAddress: "WalletA",
		PatternType:   "wash_trading",
		Confidence:    1.5,
	})
	if err == nil {
		t.Fatal("expected error for out-of-range confidence")
	}
}
