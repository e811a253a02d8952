package entity

import (
	"encoding/json"
	"time"
)

// DetectedPattern is an append-only record emitted by the pattern-detection
// layer. Multiple patterns may coexist per wallet.
type DetectedPattern struct {
	ID            int64           `json:"id,omitempty"`
	WalletAddress string          `json:"wallet_address"`
	PatternType   string          `json:"pattern_type"`
	Confidence    float64         `json:"confidence"`
	Details       json.RawMessage `json:"details,omitempty"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// RPCCallLog is an append-only audit row for upstream calls (blockchain RPC,
// price oracle).
type RPCCallLog struct {
	ID         int64           `json:"id,omitempty"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Success    bool            `json:"success"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
	CalledAt   time.Time       `json:"called_at"`
}
