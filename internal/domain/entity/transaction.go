package entity

import (
	"time"
)

// Transaction status values.
const (
	TxStatusSuccess = "success"
	TxStatusFailure = "failure"
)

// Transaction represents a raw Solana transaction. Rows are immutable once
// inserted except for late-arriving status/error correction.
type Transaction struct {
	Signature string                 `json:"signature"`
	Slot      uint64                 `json:"slot"`
	BlockTime *time.Time             `json:"block_time,omitempty"`
	Fee       uint64                 `json:"fee"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Accounts  []string               `json:"accounts"`
	Programs  []string               `json:"programs"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
}

// SolTransfer is a native SOL movement inside a transaction. Deleting the
// parent transaction cascades to its transfers.
type SolTransfer struct {
	Signature     string    `json:"signature"`
	TransferIndex int       `json:"transfer_index"`
	FromAddress   string    `json:"from_address"`
	ToAddress     string    `json:"to_address"`
	Lamports      int64     `json:"lamports"`
	BlockTime     time.Time `json:"block_time"`
}

// TokenTransfer is an SPL token movement inside a transaction. When the
// transfer is one leg of a swap, the swap decomposition fields are set and the
// valuation fields are backfilled later by the price enrichment pipeline; they
// are always nil at insert time.
type TokenTransfer struct {
	Signature     string    `json:"signature"`
	TransferIndex int       `json:"transfer_index"`
	FromAddress   string    `json:"from_address"`
	ToAddress     string    `json:"to_address"`
	Mint          string    `json:"mint"`
	Amount        float64   `json:"amount"`
	Decimals      int       `json:"decimals"`
	Authority     string    `json:"authority,omitempty"`
	BlockTime     time.Time `json:"block_time"`

	IsSwap       bool    `json:"is_swap"`
	TokenInMint  string  `json:"token_in_mint,omitempty"`
	TokenOutMint string  `json:"token_out_mint,omitempty"`
	AmountIn     float64 `json:"amount_in,omitempty"`
	AmountOut    float64 `json:"amount_out,omitempty"`

	PriceUSDIn  *float64 `json:"price_usd_in,omitempty"`
	PriceUSDOut *float64 `json:"price_usd_out,omitempty"`
	ValueUSDIn  *float64 `json:"value_usd_in,omitempty"`
	ValueUSDOut *float64 `json:"value_usd_out,omitempty"`
	PnlUSD      *float64 `json:"pnl_usd,omitempty"`
}

// Enriched reports whether the valuation fields have been backfilled.
func (t *TokenTransfer) Enriched() bool {
	return t.PriceUSDIn != nil
}

// SwapValuation is the set of valuation fields written back to a single swap
// row by the enrichment pipeline.
type SwapValuation struct {
	Signature     string  `json:"signature"`
	TransferIndex int     `json:"transfer_index"`
	PriceUSDIn    float64 `json:"price_usd_in"`
	PriceUSDOut   float64 `json:"price_usd_out"`
	ValueUSDIn    float64 `json:"value_usd_in"`
	ValueUSDOut   float64 `json:"value_usd_out"`
	PnlUSD        float64 `json:"pnl_usd"`
}

// TransactionEvent is the ingestion message published by the upstream RPC
// fetcher: a transaction already decomposed into its transfers, plus the
// post-transaction balances of the involved accounts when known.
type TransactionEvent struct {
	Transaction    *Transaction     `json:"transaction"`
	SolTransfers   []*SolTransfer   `json:"sol_transfers,omitempty"`
	TokenTransfers []*TokenTransfer `json:"token_transfers,omitempty"`
	Balances       map[string]int64 `json:"balances,omitempty"`
}
