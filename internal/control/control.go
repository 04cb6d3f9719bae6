// Package control wires the Registry, Exchange client and Fill Handler
// together into the cancel-with-fallback orchestration, and exposes it as
// the small Canceller/Placer surfaces that internal/shift and the main
// loop depend on.
package control

import (
	"context"
	"errors"

	"spotmaker/internal/fillhandler"
	"spotmaker/internal/order"
	"spotmaker/internal/placement"
	"spotmaker/internal/registry"
	"spotmaker/internal/shift"
	"spotmaker/pkg/types"
)

// Exchange is the cancel capability Control needs.
type Exchange interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// Control implements cancel-with-fallback and adapts placement.Placer to
// shift.Placer so the Shift Engine never imports internal/placement
// directly.
type Control struct {
	Registry *registry.Registry
	Exchange Exchange
	Handler  *fillhandler.Handler
	Placer   *placement.Placer
}

// Cancel removes orderID from the registry and submits the cancel to the
// exchange. A "done" response means the order already filled — it is
// re-inserted and handed to the Fill Handler with replace=true instead of
// being lost. A "not found" response is treated as an already-successful
// cancel (idempotent). Any other exchange error is re-raised and the order
// is left out of the registry (the caller's view: it's gone either way).
func (c *Control) Cancel(ctx context.Context, orderID string) (*order.Order, error) {
	o, tracked := c.Registry.Get(orderID)
	c.Registry.Remove(orderID)

	err := c.Exchange.CancelOrder(ctx, orderID)
	if err == nil {
		if tracked {
			o.State = types.StateCancelled
		}
		return o, nil
	}

	var exchErr *types.ExchangeError
	if errors.As(err, &exchErr) {
		if exchErr.IsDone() {
			if tracked {
				c.Registry.Add(o)
			}
			return c.Handler.HandleFill(ctx, orderID, true)
		}
		if exchErr.IsNotFound() {
			if tracked {
				o.State = types.StateCancelled
			}
			return o, nil
		}
	}
	return nil, err
}

// Place adapts a shift.PlaceParams call onto the underlying
// placement.Placer, passing through unchanged the order.Context the Shift
// Engine already assembled.
func (c *Control) Place(ctx context.Context, params shift.PlaceParams, ctxView order.Context) (*order.Order, error) {
	return c.Placer.Place(ctx, placement.Params{
		Price:        params.Price,
		Size:         params.Size,
		Side:         params.Side,
		Opposite:     params.Opposite,
		AdjustVsOpen: params.AdjustVsOpen,
		AdjustVsWall: params.AdjustVsWall,
		CheckSize:    params.CheckSize,
		CheckTicker:  params.CheckTicker,
		Aggressive:   params.Aggressive,
	}, ctxView)
}
