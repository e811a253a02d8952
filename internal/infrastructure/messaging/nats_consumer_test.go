package messaging

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
)

func newTestConsumer(t *testing.T, pending int) *NATSConsumer {
	t.Helper()
	return NewNATSConsumer(&config.NATSConfig{
		MaxPendingMessages: pending,
	}, logger.NewNop())
}

func eventPayload(t *testing.T, signature string) []byte {
	t.Helper()
	data, err := json.Marshal(&entity.TransactionEvent{
		Transaction: &entity.Transaction{
			Signature: signature,
			Status:    entity.TxStatusSuccess,
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return data
}

func TestHandleMessageDeliversEvent(t *testing.T) {
	consumer := newTestConsumer(t, 10)

	consumer.handleMessage(&nats.Msg{Data: eventPayload(t, "sig-1")})

	select {
	case event := <-consumer.GetMessageChannel():
		if event.Transaction.Signature != "sig-1" {
			t.Errorf("unexpected signature: %s", event.Transaction.Signature)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event on the message channel")
	}
}

func TestHandleMessageDropsInvalidPayloads(t *testing.T) {
	consumer := newTestConsumer(t, 10)

	consumer.handleMessage(&nats.Msg{Data: []byte(`not json`)})
	consumer.handleMessage(&nats.Msg{Data: []byte(`{"transaction":null}`)})
	consumer.handleMessage(&nats.Msg{Data: []byte(`{"transaction":{"signature":""}}`)})

	select {
	case event := <-consumer.GetMessageChannel():
		t.Fatalf("expected no events, got %+v", event)
	default:
	}
}

func TestDisconnectWaitsForInflightDeliveries(t *testing.T) {
	consumer := newTestConsumer(t, 1024)
	payload := eventPayload(t, "sig-1")

	// Drain so deliveries never block on a full channel
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range consumer.GetMessageChannel() {
		}
	}()

	// Hammer handleMessage while Disconnect runs; the channel close must
	// wait out every in-flight send
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				consumer.handleMessage(&nats.Msg{Data: payload})
			}
		}()
	}

	if err := consumer.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	wg.Wait()

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("expected message channel to be closed after disconnect")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	consumer := newTestConsumer(t, 10)

	if err := consumer.Disconnect(); err != nil {
		t.Fatalf("first disconnect failed: %v", err)
	}
	if err := consumer.Disconnect(); err != nil {
		t.Fatalf("second disconnect failed: %v", err)
	}
	if consumer.IsConnected() {
		t.Error("expected consumer to report disconnected")
	}
}
