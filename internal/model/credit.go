package model

import "time"

// LedgerEntry is one change to an account's credit balance.
type LedgerEntry struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger reasons.
const (
	ReasonFreeTier = "free_tier"
	ReasonSearch   = "search"
	ReasonRefund   = "refund"
	ReasonPurchase = "purchase"
	ReasonManual   = "manual"
)
