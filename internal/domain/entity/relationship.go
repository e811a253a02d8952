package entity

import (
	"time"
)

// WalletRelationship is a directed wallet-to-wallet edge. There is at most one
// edge per ordered (from, to) pair; totals and counts only ever increase.
type WalletRelationship struct {
	FromAddress       string    `json:"from_address"`
	ToAddress         string    `json:"to_address"`
	TotalSol          int64     `json:"total_sol"`
	TotalTransactions int64     `json:"total_transactions"`
	FirstInteraction  time.Time `json:"first_interaction"`
	LastInteraction   time.Time `json:"last_interaction"`
	Strength          float64   `json:"relationship_strength"`
}

// RelationshipDelta is the additive contribution of one parent transaction to
// an edge: the lamports moved by its SOL transfers and a transaction count of
// one, regardless of how many transfers the transaction contained.
type RelationshipDelta struct {
	Lamports     int64     `json:"lamports"`
	Transactions int64     `json:"transactions"`
	Timestamp    time.Time `json:"timestamp"`
}
