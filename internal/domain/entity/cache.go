package entity

import (
	"encoding/json"
	"time"
)

// AnalysisCacheEntry holds a derived analysis result with an explicit expiry.
// The cache is never authoritative: every entry must be recomputable from the
// schema store, so losing entries only costs recomputation.
type AnalysisCacheEntry struct {
	CacheKey  string          `json:"cache_key"`
	CacheType string          `json:"cache_type"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry must be treated as a miss at the given
// instant. An entry expiring exactly now is already expired.
func (e *AnalysisCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
