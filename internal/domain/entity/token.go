package entity

import (
	"time"
)

// Token represents SPL token mint metadata, upserted as new mints are observed.
type Token struct {
	Mint         string    `json:"mint"`
	Symbol       string    `json:"symbol,omitempty"`
	Name         string    `json:"name,omitempty"`
	Decimals     int       `json:"decimals"`
	Supply       float64   `json:"supply"`
	IsSuspicious bool      `json:"is_suspicious"`
	IsNFT        bool      `json:"is_nft"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	HolderCount  int64     `json:"holder_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastUpdated  time.Time `json:"last_updated"`
}
