package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/database"
	"solana-wallet-indexer/internal/infrastructure/logger"
)

type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (o *fakeOracle) GetPrice(ctx context.Context, mint string) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	price, ok := o.prices[mint]
	if !ok {
		return 0, service.ErrPriceUnavailable
	}
	return price, nil
}

func insertSwap(t *testing.T, store *database.MemoryStore, signature, mintIn, mintOut string, amountIn, amountOut float64) {
	t.Helper()

	blockTime := time.Now().UTC()
	tx := &entity.Transaction{
		Signature: signature,
		Slot:      100,
		BlockTime: &blockTime,
		Status:    entity.TxStatusSuccess,
	}
	swap := &entity.TokenTransfer{
		Signature:     signature,
		TransferIndex: 0,
		FromAddress:   "WalletA",
		ToAddress:     "WalletB",
		Mint:          mintOut,
		Amount:        amountOut,
		BlockTime:     blockTime,
		IsSwap:        true,
		TokenInMint:   mintIn,
		TokenOutMint:  mintOut,
		AmountIn:      amountIn,
		AmountOut:     amountOut,
	}
	if err := store.InsertTransaction(context.Background(), tx, nil, []*entity.TokenTransfer{swap}); err != nil {
		t.Fatalf("failed to insert swap transaction: %v", err)
	}
}

func newEnrichmentService(transfers repository.TransactionRepository, oracle service.PriceOracle, maxBatches int) service.EnrichmentService {
	return NewEnrichmentApplicationService(transfers, oracle, &config.EnrichmentConfig{
		BatchSize:   10,
		WorkerCount: 1,
		MaxBatches:  maxBatches,
	}, logger.NewNop())
}

func TestRunEnrichesSwap(t *testing.T) {
	store := database.NewMemoryStore(nil)
	insertSwap(t, store, "sig-1", "MintIn", "MintOut", 10, 5)

	oracle := &fakeOracle{prices: map[string]float64{"MintIn": 2.0, "MintOut": 3.0}}
	pipeline := newEnrichmentService(store, oracle, 0)

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Processed != 1 || summary.Enriched != 1 || summary.Skipped != 0 || summary.Remaining != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	_, tokenTransfers, err := store.GetTransfers(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("failed to get transfers: %v", err)
	}
	row := tokenTransfers[0]
	if !row.Enriched() {
		t.Fatal("expected row to be enriched")
	}
	if *row.ValueUSDIn != 20 {
		t.Errorf("expected value_usd_in 20, got %f", *row.ValueUSDIn)
	}
	if *row.ValueUSDOut != 15 {
		t.Errorf("expected value_usd_out 15, got %f", *row.ValueUSDOut)
	}
	if *row.PnlUSD != -5 {
		t.Errorf("expected pnl_usd -5, got %f", *row.PnlUSD)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := database.NewMemoryStore(nil)
	insertSwap(t, store, "sig-1", "MintIn", "MintOut", 10, 5)

	oracle := &fakeOracle{prices: map[string]float64{"MintIn": 2.0, "MintOut": 3.0}}
	pipeline := newEnrichmentService(store, oracle, 0)

	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	callsAfterFirst := oracle.calls

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Processed != 0 || summary.Enriched != 0 {
		t.Fatalf("expected second run to be a no-op, got %+v", summary)
	}
	if oracle.calls != callsAfterFirst {
		t.Errorf("expected no oracle calls on second run, got %d extra", oracle.calls-callsAfterFirst)
	}
}

func TestRunZeroPriceSentinel(t *testing.T) {
	store := database.NewMemoryStore(nil)
	insertSwap(t, store, "sig-1", "UnknownIn", "UnknownOut", 10, 5)

	oracle := &fakeOracle{prices: map[string]float64{}}
	pipeline := newEnrichmentService(store, oracle, 0)

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Enriched != 1 || summary.Remaining != 0 {
		t.Fatalf("expected sentinel row to count as enriched, got %+v", summary)
	}

	_, tokenTransfers, _ := store.GetTransfers(context.Background(), "sig-1")
	row := tokenTransfers[0]
	if !row.Enriched() {
		t.Fatal("expected sentinel row to be enriched")
	}
	if *row.PriceUSDIn != 0 || *row.PriceUSDOut != 0 || *row.ValueUSDIn != 0 || *row.ValueUSDOut != 0 || *row.PnlUSD != 0 {
		t.Errorf("expected all-zero valuation, got %+v", row)
	}

	// Sentinel rows must never be re-selected
	remaining, err := store.CountUnpricedSwaps(context.Background())
	if err != nil {
		t.Fatalf("failed to count unpriced swaps: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected 0 unpriced swaps after sentinel write, got %d", remaining)
	}
}

type failingTransfers struct {
	*database.MemoryStore
	failSignature string
}

func (f *failingTransfers) UpdateSwapValuation(ctx context.Context, valuation *entity.SwapValuation) error {
	if valuation.Signature == f.failSignature {
		return fmt.Errorf("write refused: %s", valuation.Signature)
	}
	return f.MemoryStore.UpdateSwapValuation(ctx, valuation)
}

func TestRunSkipsFailingRow(t *testing.T) {
	store := database.NewMemoryStore(nil)
	insertSwap(t, store, "sig-good", "MintIn", "MintOut", 10, 5)
	insertSwap(t, store, "sig-bad", "MintIn", "MintOut", 1, 1)

	oracle := &fakeOracle{prices: map[string]float64{"MintIn": 2.0, "MintOut": 3.0}}
	pipeline := newEnrichmentService(&failingTransfers{MemoryStore: store, failSignature: "sig-bad"}, oracle, 1)

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Processed != 2 || summary.Enriched != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Remaining != 1 {
		t.Errorf("expected failing row to remain unpriced, got remaining %d", summary.Remaining)
	}

	_, tokenTransfers, _ := store.GetTransfers(context.Background(), "sig-good")
	if !tokenTransfers[0].Enriched() {
		t.Error("expected the good row to be enriched despite the failing one")
	}
}

func TestRunStopsWhenNoProgress(t *testing.T) {
	store := database.NewMemoryStore(nil)
	insertSwap(t, store, "sig-bad", "MintIn", "MintOut", 1, 1)

	oracle := &fakeOracle{prices: map[string]float64{"MintIn": 2.0, "MintOut": 3.0}}
	// Unbounded batches: each row is attempted once per run, so the run must
	// still terminate instead of re-selecting the failing row forever.
	pipeline := newEnrichmentService(&failingTransfers{MemoryStore: store, failSignature: "sig-bad"}, oracle, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := pipeline.Run(context.Background()); err != nil {
			t.Errorf("run failed: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate on a zero-progress batch")
	}
}

func TestRunCountsFailingRowOnce(t *testing.T) {
	store := database.NewMemoryStore(nil)
	insertSwap(t, store, "sig-good", "MintIn", "MintOut", 10, 5)
	insertSwap(t, store, "sig-bad", "MintIn", "MintOut", 1, 1)

	oracle := &fakeOracle{prices: map[string]float64{"MintIn": 2.0, "MintOut": 3.0}}
	pipeline := newEnrichmentService(&failingTransfers{MemoryStore: store, failSignature: "sig-bad"}, oracle, 0)

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// The failing row is re-selected on every later batch but must be
	// attempted and counted only once per run
	if summary.Processed != 2 || summary.Enriched != 1 || summary.Skipped != 1 {
		t.Fatalf("expected each row counted once, got %+v", summary)
	}
	if summary.Remaining != 1 {
		t.Errorf("expected the failing row to remain unpriced, got remaining %d", summary.Remaining)
	}
	if oracle.calls != 4 {
		t.Errorf("expected one price fetch per mint per row, got %d calls", oracle.calls)
	}
}

func TestEnrichSwapRejectsNonSwapRow(t *testing.T) {
	store := database.NewMemoryStore(nil)
	oracle := &fakeOracle{prices: map[string]float64{}}
	pipeline := newEnrichmentService(store, oracle, 0)

	err := pipeline.EnrichSwap(context.Background(), &entity.TokenTransfer{
		Signature:     "sig-1",
		TransferIndex: 0,
		IsSwap:        false,
	})
	if err == nil {
		t.Fatal("expected error for non-swap row")
	}
	if oracle.calls != 0 {
		t.Errorf("expected no oracle calls for a rejected row, got %d", oracle.calls)
	}
}
