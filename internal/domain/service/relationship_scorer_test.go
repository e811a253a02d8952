package service

import (
	"testing"
	"time"
)

func TestDefaultRelationshipScoreBounds(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		txs  int64
		sol  int64
		last time.Time
	}{
		{"zero edge", 0, 0, now},
		{"single transfer", 1, 1, now},
		{"huge whale", 1_000_000, 500_000_000 * LamportsPerSol, now},
		{"ancient edge", 10, 5 * LamportsPerSol, now.AddDate(-3, 0, 0)},
		{"future timestamp", 10, 5 * LamportsPerSol, now.Add(time.Hour)},
		{"negative volume", 10, -42, now},
	}

	for _, tc := range cases {
		score := DefaultRelationshipScore(tc.txs, tc.sol, tc.last, now)
		if score < 0 || score > 1 {
			t.Errorf("%s: score %f out of [0,1]", tc.name, score)
		}
	}
}

func TestDefaultRelationshipScoreMonotone(t *testing.T) {
	now := time.Now()

	low := DefaultRelationshipScore(1, LamportsPerSol, now, now)
	moreTxs := DefaultRelationshipScore(100, LamportsPerSol, now, now)
	moreSol := DefaultRelationshipScore(1, 1000*LamportsPerSol, now, now)
	stale := DefaultRelationshipScore(1, LamportsPerSol, now.AddDate(0, -6, 0), now)

	if moreTxs <= low {
		t.Errorf("expected more transactions to raise the score: %f <= %f", moreTxs, low)
	}
	if moreSol <= low {
		t.Errorf("expected more volume to raise the score: %f <= %f", moreSol, low)
	}
	if stale >= low {
		t.Errorf("expected staleness to lower the score: %f >= %f", stale, low)
	}
}

func TestDefaultRelationshipScoreZeroTransactions(t *testing.T) {
	if got := DefaultRelationshipScore(0, 10*LamportsPerSol, time.Now(), time.Now()); got != 0 {
		t.Errorf("expected 0 for an edge with no transactions, got %f", got)
	}
}
