// Package shift implements the periodic reprice pass over every tracked
// order: stop-loss trigger for sells, peer-aware reprice for both sides,
// cancel + replace via the orchestration wired in internal/control.
//
// Canceller/Placer are defined locally, not imported from internal/control,
// so this package stays unit-testable against fakes without pulling in the
// exchange/registry/fillhandler wiring — the same context-injection shape
// used throughout internal/order.
package shift

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

// Canceller is the cancel-with-fallback capability the Shift Engine needs.
type Canceller interface {
	Cancel(ctx context.Context, orderID string) (*order.Order, error)
}

// Placer is the subset of placement.Placer.Place the Shift Engine needs.
type Placer interface {
	Place(ctx context.Context, params PlaceParams, ctxView order.Context) (*order.Order, error)
}

// PlaceParams mirrors placement.Params. Declared locally to avoid importing
// internal/placement; internal/control's wiring adapts between the two.
type PlaceParams struct {
	Price        decimal.Decimal
	Size         decimal.Decimal
	Side         types.Side
	Opposite     *order.Order
	AdjustVsOpen bool
	AdjustVsWall bool
	CheckSize    bool
	CheckTicker  bool
	Aggressive   bool
}

// Engine runs the periodic reprice pass.
type Engine struct {
	Registry   *registry.Registry
	Canceller  Canceller
	Placer     Placer
	MaxSpread  decimal.Decimal
	MinSpread  decimal.Decimal
	StopPct    decimal.Decimal
	Aggressive bool
	Logger     *slog.Logger

	lastTicker decimal.Decimal
}

func (e *Engine) spread() decimal.Decimal {
	if e.Aggressive {
		return e.MinSpread
	}
	return e.MaxSpread
}

// ShiftOrders runs one reprice pass. snap supplies the current book/ticker
// state; excludeIDs are orders seeded this tick that must not be
// immediately reshifted.
func (e *Engine) ShiftOrders(ctx context.Context, snap types.BookSnapshot, excludeIDs map[string]bool) {
	if e.Registry.Empty() {
		return
	}

	var ticker decimal.Decimal
	if snap.Ticker != nil {
		ticker = snap.Ticker.Price
	}
	if ticker.IsZero() || ticker.Equal(e.lastTicker) {
		return
	}
	e.lastTicker = ticker

	spread := e.spread()
	ids := e.Registry.IDs()

	for _, id := range ids {
		if excludeIDs[id] {
			continue
		}
		o, ok := e.Registry.Get(id)
		if !ok {
			continue
		}
		if err := e.shiftOne(ctx, o, snap, ticker, spread); err != nil {
			e.Logger.Warn("shift skipped order", "order_id", id, "error", err)
		}
	}
}

func (e *Engine) shiftOne(ctx context.Context, o *order.Order, snap types.BookSnapshot, ticker, spread decimal.Decimal) error {
	ctxView := e.contextFor(o, snap)

	if o.Side == types.Sell {
		if stopAmount, ok := o.StopAmount(e.StopPct); ok && stopAmount.GreaterThanOrEqual(ticker) {
			replacePrice := types.Round2(ticker.Add(spread.Div(decimal.NewFromInt(2))))
			return e.cancelAndReplace(ctx, o, ctxView, PlaceParams{
				Price:        replacePrice,
				Size:         o.Size,
				Side:         types.Sell,
				Opposite:     o,
				AdjustVsOpen: false,
				CheckSize:    false,
				CheckTicker:  false,
				Aggressive:   e.Aggressive,
			})
		}
	}

	minProfit := spread
	minPrice := o.PriceAdjustedToSpread(ctxView, true, decimal.NewFromFloat(0.8), minProfit)
	maxPrice := o.PriceAdjustedToSpread(ctxView, false, decimal.NewFromFloat(0.8), minProfit)
	maxDiff := maxPrice.Sub(o.Price)
	checkPrice := o.PriceAdjustedToOtherPrices(ctxView, e.Aggressive, spread.Div(decimal.NewFromInt(2)), decimal.NewFromFloat(0.01))

	// A same-side replacement inherits the old order's pairing. An unpaired
	// order (a freshly seeded buy, or an adopted order with no known
	// round-trip) is replaced unpaired — by the time the replacement is
	// constructed the cancel has already gone out, so a rejected pairing
	// here would lose the order outright.
	var prev *order.Order
	if o.Opposite != nil {
		prev = o
	}

	if o.Side == types.Buy {
		if maxDiff.GreaterThan(spread) && checkPrice.GreaterThan(o.Price) {
			return e.cancelAndReplace(ctx, o, ctxView, PlaceParams{
				Price:        checkPrice,
				Size:         o.Size,
				Side:         types.Buy,
				Opposite:     prev,
				AdjustVsOpen: false,
				CheckSize:    false,
				CheckTicker:  true,
				Aggressive:   e.Aggressive,
			})
		}
		return nil
	}

	// Sell branch, non-stopped.
	if o.Price.GreaterThan(minPrice) && o.Price.GreaterThan(checkPrice) {
		return e.cancelAndReplace(ctx, o, ctxView, PlaceParams{
			Price:        checkPrice,
			Size:         o.Size,
			Side:         types.Sell,
			Opposite:     prev,
			AdjustVsOpen: false,
			CheckSize:    false,
			CheckTicker:  true,
			Aggressive:   e.Aggressive,
		})
	}
	return nil
}

func (e *Engine) cancelAndReplace(ctx context.Context, o *order.Order, ctxView order.Context, params PlaceParams) error {
	if o.Locked() {
		return &types.LockError{OrderID: o.ID}
	}
	o.Lock()
	defer o.Unlock()

	if _, err := e.Canceller.Cancel(ctx, o.ID); err != nil {
		return err
	}
	_, err := e.Placer.Place(ctx, params, ctxView)
	return err
}

func (e *Engine) contextFor(o *order.Order, snap types.BookSnapshot) order.Context {
	ctxView := order.Context{
		MinSpread: e.MinSpread,
		MaxSpread: e.MaxSpread,
	}
	if hb, ok := snap.HighestBid(); ok {
		ctxView.HighestBid = hb
		ctxView.HasBid = true
	}
	if la, ok := snap.LowestAsk(); ok {
		ctxView.LowestAsk = la
		ctxView.HasAsk = true
	}
	if snap.Ticker != nil {
		ctxView.Ticker = snap.Ticker.Price
		ctxView.HasTicker = true
	}
	if o.Side == types.Buy {
		ctxView.PeerPrices = pricesOf(e.Registry.BuyOrders())
		ctxView.SameSideBook = snap.Bids
	} else {
		ctxView.PeerPrices = pricesOf(e.Registry.SellOrders())
		ctxView.SameSideBook = snap.Asks
	}
	return ctxView
}

func pricesOf(orders []*order.Order) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(orders))
	for i, o := range orders {
		prices[i] = o.Price
	}
	return prices
}
