// Package fillhandler implements the fill-replace routine: on a detected
// fill, it records the terminal order, logs PnL if paired, and chains a
// new opposite-side order unless the relevant open-count cap is reached.
package fillhandler

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/placement"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

// Handler places the opposite-side follow-up order whenever a tracked
// order fills.
type Handler struct {
	Registry   *registry.Registry
	Placer     *placement.Placer
	MaxSpread  decimal.Decimal
	MinSpread  decimal.Decimal
	Aggressive bool
	Logger     *slog.Logger

	// ContextFn supplies the current book/ticker state for the replacement
	// order's price adjustments. Without it the replacement still goes out,
	// but the ticker no-cross check has nothing to compare against.
	ContextFn func(side types.Side) order.Context
}

func (h *Handler) spread() decimal.Decimal {
	if h.Aggressive {
		return h.MinSpread
	}
	return h.MaxSpread
}

// HandleFill removes orderID from the registry, records it as a fill, and
// — if replace is true and the relevant cap allows it — places the
// opposite-side follow-up order.
func (h *Handler) HandleFill(ctx context.Context, orderID string, replace bool) (*order.Order, error) {
	filled, ok := h.Registry.Get(orderID)
	if !ok {
		// Already reconciled away by a concurrent path (e.g. a cancel that
		// raced this fill); nothing left to do.
		return nil, nil
	}
	h.Registry.Remove(orderID)

	filled.State = types.StateFilled
	h.Registry.AddFill(filled)

	if filled.Opposite != nil {
		if pnl, ok := filled.GetPnL(filled.Price); ok {
			h.Logger.Info("fill realized pnl", "order_id", orderID, "pnl", pnl)
		}
	}

	if !replace {
		return filled, nil
	}

	spread := h.spread()

	var newSide types.Side
	var newPrice decimal.Decimal

	if filled.Side == types.Buy {
		// Sells are always allowed to follow a filled buy — no cap check.
		newSide = types.Sell
		newPrice = types.Round2(filled.Price.Add(spread))
	} else {
		newSide = types.Buy
		newPrice = types.Round2(filled.Price.Sub(spread))
		if len(h.Registry.BuyOrders()) > h.Placer.MaxOpenBuys || len(h.Registry.SellOrders()) > h.Placer.MaxOpenSells {
			h.Logger.Info("skipping replacement, open-order cap reached", "order_id", orderID)
			return filled, nil
		}
	}

	ctxView := order.Context{MinSpread: h.MinSpread, MaxSpread: h.MaxSpread}
	if h.ContextFn != nil {
		ctxView = h.ContextFn(newSide)
	}

	if _, err := h.Placer.Place(ctx, placement.Params{
		Price:        newPrice,
		Size:         filled.Size,
		Side:         newSide,
		Opposite:     filled,
		AdjustVsOpen: true,
		CheckSize:    true,
		CheckTicker:  true,
		Aggressive:   h.Aggressive,
	}, ctxView); err != nil {
		return nil, err
	}

	return filled, nil
}
