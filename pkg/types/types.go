// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — sides, book levels,
// tickers and snapshots. It has no dependencies on internal packages, so it
// can be imported by any layer without creating cycles.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: buy or sell.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderState is the lifecycle state of an Order.
type OrderState string

const (
	StateDraft     OrderState = "draft"
	StateOpen      OrderState = "open"
	StateFilled    OrderState = "filled"
	StateCancelled OrderState = "cancelled"
)

// ————————————————————————————————————————————————————————————————————————
// Book / ticker
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single resting level in the order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Ticker is the most recent traded-price quote for the product.
type Ticker struct {
	Price decimal.Decimal
	Time  time.Time
}

// BookSnapshot is a point-in-time view of the order book for one product.
// Bids are sorted highest-first, asks lowest-first.
type BookSnapshot struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	Ticker    *Ticker // nil if no ticker has arrived yet
	Timestamp time.Time
}

// HighestBid returns the best (highest) bid, or false if the book has no bids.
func (b BookSnapshot) HighestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// LowestAsk returns the best (lowest) ask, or false if the book has no asks.
func (b BookSnapshot) LowestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// ————————————————————————————————————————————————————————————————————————
// Exchange-facing records
// ————————————————————————————————————————————————————————————————————————

// OpenOrderInfo is one row from the exchange's open-orders listing.
type OpenOrderInfo struct {
	ID    string
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// FillInfo is one row from the exchange's fills listing.
type FillInfo struct {
	OrderID string
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal
	Fee     decimal.Decimal
}

// Round2 rounds a decimal to 2 places, the currency resolution every posted
// price must satisfy.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
