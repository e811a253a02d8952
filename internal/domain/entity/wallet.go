package entity

import (
	"time"
)

// Wallet represents a Solana wallet observed on-chain. Wallets are created on
// first observation and mutated on every subsequent one; they are never
// hard-deleted. Balance is nil when the observation carried no balance data;
// a nil balance never overwrites a known one.
type Wallet struct {
	Address     string                 `json:"address"`
	Balance     *int64                 `json:"balance,omitempty"`
	Owner       string                 `json:"owner,omitempty"`
	RiskScore   *float64               `json:"risk_score,omitempty"`
	IsExchange  bool                   `json:"is_exchange"`
	IsMixer     bool                   `json:"is_mixer"`
	FirstSeen   time.Time              `json:"first_seen"`
	LastUpdated time.Time              `json:"last_updated"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// WalletStats is the materialized per-wallet rollup. It is recomputed from
// transfers on refresh and is never independently authoritative.
type WalletStats struct {
	Address                string `json:"address"`
	SolTransfersSent       int64  `json:"sol_transfers_sent"`
	SolTransfersReceived   int64  `json:"sol_transfers_received"`
	TokenTransfersSent     int64  `json:"token_transfers_sent"`
	TokenTransfersReceived int64  `json:"token_transfers_received"`
	LamportsSent           int64  `json:"lamports_sent"`
	LamportsReceived       int64  `json:"lamports_received"`
	UniqueCounterparties   int64  `json:"unique_counterparties"`
	UniqueTokens           int64  `json:"unique_tokens"`
}

// WalletAnalysis is the derived analysis document served to API consumers,
// cached with a TTL and always recomputable from the stores.
type WalletAnalysis struct {
	Address          string                `json:"address"`
	Wallet           *Wallet               `json:"wallet,omitempty"`
	Stats            *WalletStats          `json:"stats,omitempty"`
	TopRelationships []*WalletRelationship `json:"top_relationships,omitempty"`
	Patterns         []*DetectedPattern    `json:"patterns,omitempty"`
	GeneratedAt      time.Time             `json:"generated_at"`
}
