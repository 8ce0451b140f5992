package ledger

import (
	"time"
)

// Direction is the sign of a summary from the wallet's point of view.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	// DirectionNone marks informational summaries (account creation) that move no value
	// between parties.
	DirectionNone Direction = "none"
)

// TokenBalance is one entry of a pre or post token-balance snapshot.
type TokenBalance struct {
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
	Amount string `json:"amount"` // raw integer amount in the mint's smallest unit
}

// RawRecord is the node-reported description of one transaction, normalized into
// our own shape. It is immutable once fetched; the signature is its identity.
type RawRecord struct {
	Signature         string         `json:"signature"`
	Slot              uint64         `json:"slot"`
	BlockTime         *int64         `json:"block_time"` // unix seconds, nil when the node has none
	Fee               uint64         `json:"fee"`
	Err               *string        `json:"err,omitempty"`
	Instructions      Instructions   `json:"instructions"`
	PreTokenBalances  []TokenBalance `json:"pre_token_balances"`
	PostTokenBalances []TokenBalance `json:"post_token_balances"`
	PreBalances       []uint64       `json:"pre_balances"`
	PostBalances      []uint64       `json:"post_balances"`
	SwapDetected      bool           `json:"swap_detected"`
}

// HasTokenBalances reports whether the record carries any token snapshot.
func (r *RawRecord) HasTokenBalances() bool {
	return len(r.PreTokenBalances) > 0 || len(r.PostTokenBalances) > 0
}

// ReceiptItem is one line of a merchant receipt.
type ReceiptItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Receipt is a structured merchant receipt correlated with a payment.
type Receipt struct {
	Shop  string        `json:"shop"`
	Items []ReceiptItem `json:"items"`
}

// Summary is the canonical, presentation-ready form of a transaction for one wallet.
type Summary struct {
	ID           string    `json:"id"`
	Date         int64     `json:"date"` // unix millis
	Status       bool      `json:"status"`
	NetworkFee   uint64    `json:"network_fee"`
	Direction    Direction `json:"direction"`
	Amount       uint64    `json:"amount"`
	Currency     string    `json:"currency"` // mint address, or NativeMint
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	CounterParty string    `json:"counter_party,omitempty"`
	Memo         *string   `json:"memo,omitempty"`
	Receipt      *Receipt  `json:"receipt,omitempty"`
}

// Time returns the summary date as a UTC time.
func (s Summary) Time() time.Time {
	return time.UnixMilli(s.Date).UTC()
}

// IsoDate returns the UTC calendar day of the summary, e.g. "2022-12-19".
func (s Summary) IsoDate() string {
	return s.Time().Format(time.DateOnly)
}

// DayBucket groups the summaries of one UTC calendar day.
type DayBucket struct {
	IsoDate              string    `json:"iso_date"`
	TotalSpending        uint64    `json:"total_spending"`
	TotalSpendingDisplay string    `json:"total_spending_display,omitempty"` // "" when nothing was sent
	Transactions         []Summary `json:"transactions"`
}
