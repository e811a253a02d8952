package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/database"
	"solana-wallet-indexer/internal/infrastructure/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (service.PriceOracle, *database.MemoryStore) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := database.NewMemoryStore(nil)
	client := NewPriceClient(&config.OracleConfig{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
	}, store, logger.NewNop())

	return client, store
}

func TestGetPrice(t *testing.T) {
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price/MintAAA" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"price_usd": 1.25}`))
	})

	price, err := client.GetPrice(context.Background(), "MintAAA")
	if err != nil {
		t.Fatalf("failed to get price: %v", err)
	}
	if price != 1.25 {
		t.Errorf("expected price 1.25, got %f", price)
	}

	logs := store.RPCLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 rpc log entry, got %d", len(logs))
	}
	if !logs[0].Success || logs[0].Method != "oracle.getPrice" {
		t.Errorf("unexpected rpc log entry: %+v", logs[0])
	}
}

func TestGetPriceNotFound(t *testing.T) {
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetPrice(context.Background(), "UnknownMint")
	if !errors.Is(err, service.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}

	logs := store.RPCLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 rpc log entry, got %d", len(logs))
	}
	if logs[0].Success {
		t.Error("expected failed call to be logged as unsuccessful")
	}
}

func TestGetPriceServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetPrice(context.Background(), "MintAAA")
	if !errors.Is(err, service.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestGetPriceMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := client.GetPrice(context.Background(), "MintAAA")
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
}
