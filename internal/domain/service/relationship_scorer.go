package service

import (
	"math"
	"time"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// ScoreFunc computes the relationship strength of an edge from its totals.
// The result must lie in [0, 1] and be monotone in transaction count, volume
// and recency. Strength is recomputed from the totals on every update, never
// accumulated.
type ScoreFunc func(totalTransactions, totalSol int64, lastInteraction, now time.Time) float64

// DefaultRelationshipScore blends log-scaled transaction count, log-scaled
// SOL volume and an exponential recency decay with a 30-day half-life scale.
func DefaultRelationshipScore(totalTransactions, totalSol int64, lastInteraction, now time.Time) float64 {
	if totalTransactions <= 0 {
		return 0
	}

	// ~10k transactions saturate the count component.
	txScore := clamp01(math.Log10(1+float64(totalTransactions)) / 4)

	// ~1M SOL saturates the volume component.
	sol := float64(totalSol) / LamportsPerSol
	if sol < 0 {
		sol = 0
	}
	solScore := clamp01(math.Log10(1+sol) / 6)

	age := now.Sub(lastInteraction)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-age.Hours() / (30 * 24))

	return clamp01(0.5*txScore + 0.3*solScore + 0.2*recency)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
