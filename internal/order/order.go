// Package order implements the single live order and its price-adjustment
// algorithms.
//
// Every adjustment method is pure: it reads an explicit Context (book view
// snapshot, config, peer prices) instead of holding a back-pointer to the
// engine. That keeps the pricing logic unit-testable without a live engine
// or exchange connection — the same "context injection" the rest of this
// repo uses instead of a singleton handle.
package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotmaker/pkg/types"
)

var (
	hundredth = decimal.NewFromFloat(0.01)
)

// Order is a single resting or historical limit order.
type Order struct {
	ID        string // exchange-assigned, empty until posted
	ClientRef string // client-generated idempotency token, set at construction

	Side  types.Side
	Price decimal.Decimal
	Size  decimal.Decimal
	State types.OrderState

	Opposite *Order // paired trade on the other side of a round trip, if any

	locked bool

	CreatedAt time.Time
}

// New constructs a Draft order with a fresh client reference.
func New(side types.Side, price, size decimal.Decimal) *Order {
	return &Order{
		ClientRef: uuid.NewString(),
		Side:      side,
		Price:     types.Round2(price),
		Size:      size,
		State:     types.StateDraft,
		CreatedAt: time.Now(),
	}
}

// Locked reports whether the order is currently locked for an in-flight
// cancel/replace. Returns the flag directly — no recursive self-reference.
func (o *Order) Locked() bool { return o.locked }

// Lock marks the order locked for a pending mutation.
func (o *Order) Lock() { o.locked = true }

// Unlock clears the lock.
func (o *Order) Unlock() { o.locked = false }

// RegisterOpposite links o to other. A cross-side other becomes o's
// opposite directly; a same-side other is a replacement, and o inherits
// the older order's opposite rather than being linked to it.
//
// Call this exactly once per order, right after construction.
func (o *Order) RegisterOpposite(other *Order) error {
	if other == nil {
		return nil
	}
	if other.Side == o.Side {
		if other.Opposite == nil {
			return &types.ConfigError{
				Field: "opposite",
				Err:   fmt.Errorf("order %s has no prior opposite to inherit for a same-side replacement", other.ID),
			}
		}
		// Same-side replacement: inherit the prior opposite, don't link to
		// other directly.
		o.Opposite = other.Opposite
		return nil
	}
	if other.Opposite != nil && other.Opposite.Side == o.Side {
		return &types.InvariantError{
			Context: "register_opposite",
			Err:     fmt.Errorf("order %s already has an opposite of side %s", other.ID, o.Side),
		}
	}
	o.Opposite = other
	return nil
}

// StopAmount is the price at which an open sell is abandoned at a loss,
// derived from its paired buy. Only meaningful for sells with an opposite
// and a positive stop percentage; the second return value is false
// otherwise.
func (o *Order) StopAmount(stopPct decimal.Decimal) (decimal.Decimal, bool) {
	if o.Side != types.Sell || o.Opposite == nil || !stopPct.IsPositive() {
		return decimal.Zero, false
	}
	one := decimal.NewFromInt(1)
	return types.Round2(o.Opposite.Price.Mul(one.Sub(stopPct))), true
}

// GetPnL returns the realized profit of closing o's opposite pair at price,
// or false if o has no opposite (PnL is undefined for an unpaired order).
func (o *Order) GetPnL(price decimal.Decimal) (decimal.Decimal, bool) {
	if o.Opposite == nil {
		return decimal.Zero, false
	}
	var pnl decimal.Decimal
	if o.Side == types.Sell {
		pnl = o.Size.Mul(price).Sub(o.Opposite.Size.Mul(o.Opposite.Price))
	} else {
		pnl = o.Opposite.Size.Mul(o.Opposite.Price).Sub(o.Size.Mul(price))
	}
	return types.Round2(pnl), true
}
