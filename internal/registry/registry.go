// Package registry is the authoritative in-memory map of live orders.
//
// Registry reconciles its view against the exchange's open-orders listing:
// anything locally tracked that the exchange no longer reports is treated
// as filled and handed to the fill handler; anything the exchange reports
// that isn't locally tracked is optionally adopted, per
// manage_existing_orders.
package registry

import (
	"context"
	"errors"
	"sync"

	"spotmaker/internal/order"
	"spotmaker/pkg/types"
)

// FillHandler is the minimal surface Registry needs to dispatch a detected
// fill. Defined locally (not imported from internal/fillhandler) so
// Registry stays testable against a fake without pulling in placement,
// exchange, or control wiring.
type FillHandler interface {
	HandleFill(ctx context.Context, orderID string, replace bool) (*order.Order, error)
}

// OpenOrderLister is the exchange capability Registry needs for Refresh.
type OpenOrderLister interface {
	GetOpenOrders(ctx context.Context) ([]types.OpenOrderInfo, error)
}

// Registry holds all orders the engine currently believes are open.
type Registry struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	fills  map[string]*order.Order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		orders: make(map[string]*order.Order),
		fills:  make(map[string]*order.Order),
	}
}

// Add inserts o into the registry, keyed by its exchange ID.
func (r *Registry) Add(o *order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

// Remove deletes the order with id from the registry, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
}

// Get returns the tracked order with id, if any.
func (r *Registry) Get(id string) (*order.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	return o, ok
}

// AddFill records a terminal fill, keyed by the original order id.
func (r *Registry) AddFill(o *order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills[o.ID] = o
}

// Fill returns a recorded fill by original order id.
func (r *Registry) Fill(id string) (*order.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.fills[id]
	return o, ok
}

// FillCount returns how many fills are recorded.
func (r *Registry) FillCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fills)
}

// AllFills returns a snapshot slice of every recorded fill, for callers
// (e.g. checkpointing) that need to enumerate the fills table rather than
// look up a single id.
func (r *Registry) AllFills() []*order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*order.Order, 0, len(r.fills))
	for _, o := range r.fills {
		out = append(out, o)
	}
	return out
}

// IDs returns a snapshot of all tracked order ids, taken at the moment of
// the call. Used by the Shift Engine so orders added mid-tick aren't
// reprocessed in the same pass.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	return ids
}

// All returns a snapshot slice of every tracked order.
func (r *Registry) All() []*order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out
}

// BuyOrders returns a snapshot of currently tracked buy orders.
func (r *Registry) BuyOrders() []*order.Order {
	return r.side(types.Buy)
}

// SellOrders returns a snapshot of currently tracked sell orders.
func (r *Registry) SellOrders() []*order.Order {
	return r.side(types.Sell)
}

func (r *Registry) side(side types.Side) []*order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

// LowestOpenOrder returns the tracked order with the minimum price. The
// wall-anchor step in placement does not consult it; that step scans the
// same-side book instead.
func (r *Registry) LowestOpenOrder() (*order.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lowest *order.Order
	for _, o := range r.orders {
		if lowest == nil || o.Price.LessThan(lowest.Price) {
			lowest = o
		}
	}
	if lowest == nil {
		return nil, false
	}
	return lowest, true
}

// Empty reports whether the registry currently tracks no orders.
func (r *Registry) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders) == 0
}

// Refresh reconciles the registry against the exchange's open-orders
// listing. Orders locally tracked but no longer reported by the exchange
// are treated as filled and dispatched to handler. When manageExisting is
// true, orders the exchange reports that aren't locally tracked are
// adopted into the registry as newly-discovered Open orders.
func (r *Registry) Refresh(ctx context.Context, lister OpenOrderLister, handler FillHandler, manageExisting bool) error {
	live, err := lister.GetOpenOrders(ctx)
	if err != nil {
		return err
	}

	exchangeIDs := make(map[string]types.OpenOrderInfo, len(live))
	for _, o := range live {
		exchangeIDs[o.ID] = o
	}

	// A failed fill-replace only skips that order; the rest of the
	// reconciliation still runs.
	var errs []error
	for _, id := range r.IDs() {
		if _, stillOpen := exchangeIDs[id]; !stillOpen {
			if _, err := handler.HandleFill(ctx, id, true); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if manageExisting {
		for id, info := range exchangeIDs {
			if _, tracked := r.Get(id); !tracked {
				adopted := order.New(info.Side, info.Price, info.Size)
				adopted.ID = id
				adopted.State = types.StateOpen
				r.Add(adopted)
			}
		}
	}

	return errors.Join(errs...)
}
