// Package placement implements the order-placement procedure: size caps,
// the peer/ticker adjustment chain, and posting to the exchange.
package placement

import (
	"context"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

// minSize is the smallest size/spend worth acting on; below this, placement
// is a no-op rather than posting a dust order.
var minSize = decimal.NewFromFloat(0.01)

// Exchange is the posting capability Placement needs.
type Exchange interface {
	PostOrder(ctx context.Context, clientRef, productID string, side types.Side, price, size decimal.Decimal) (string, error)
	GetBalance(ctx context.Context, quoteCurrency string) (decimal.Decimal, error)
}

// Params bundles the placement procedure's inputs.
type Params struct {
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

// Placer places new orders against the registry and exchange.
type Placer struct {
	Registry      *registry.Registry
	Exchange      Exchange
	ProductID     string
	QuoteCurrency string
	MaxSpread     decimal.Decimal
	MinSpread     decimal.Decimal
	MaxOpenBuys   int
	MaxOpenSells  int
	SpendPct      decimal.Decimal

	// LowestAskFn supplies the current lowest ask price for PositionSize.
	// The engine wires this to its Book View; tests can stub it directly.
	LowestAskFn func() (decimal.Decimal, bool)
}

// Place sizes, prices and posts a new order and, on success, inserts the
// resulting Open order into the registry.
func (p *Placer) Place(ctx context.Context, params Params, ctxView order.Context) (*order.Order, error) {
	price := params.Price
	size := params.Size

	// 1. Wall anchor. Only applies with a clear wall; otherwise the
	// candidate price is left untouched.
	if params.AdjustVsWall {
		probe := order.New(params.Side, price, size)
		if wallPrice, found := probe.PriceAdjustedToWall(ctxView, 2, decimal.NewFromInt(50), decimal.NewFromFloat(0.01)); found {
			price = wallPrice
		}
	}

	// 2. Size cap (buys only).
	if params.CheckSize && params.Side == types.Buy {
		pos, err := p.PositionSize(ctx)
		if err != nil {
			return nil, err
		}
		if pos.LessThan(minSize) {
			return nil, nil
		}
		if size.GreaterThan(pos) {
			size = pos
		}
	}

	// 3. Construct draft order.
	draft := order.New(params.Side, price, size)
	if err := draft.RegisterOpposite(params.Opposite); err != nil {
		return nil, err
	}

	// 4. Peer adjustment.
	if params.AdjustVsOpen {
		peerCtx := ctxView
		peerCtx.PeerPrices = peerPrices(p.Registry, params.Side)
		draft.Price = draft.PriceAdjustedToOtherPrices(peerCtx, params.Aggressive, p.MaxSpread.Div(decimal.NewFromInt(2)), p.MinSpread)
	}

	// 5. Ticker adjustment.
	if params.CheckTicker {
		tickerCtx := ctxView
		tickerCtx.PeerPrices = peerPrices(p.Registry, params.Side)
		draft.Price = draft.PriceAdjustedToTicker(tickerCtx, params.Aggressive)
	}

	// 6. Post.
	id, err := p.Exchange.PostOrder(ctx, draft.ClientRef, p.ProductID, draft.Side, draft.Price, draft.Size)
	if err != nil {
		return nil, &types.ExchangeError{Op: "place_order", Err: err}
	}
	draft.ID = id
	draft.State = types.StateOpen
	p.Registry.Add(draft)

	return draft, nil
}

func peerPrices(reg *registry.Registry, side types.Side) []decimal.Decimal {
	var orders []*order.Order
	if side == types.Buy {
		orders = reg.BuyOrders()
	} else {
		orders = reg.SellOrders()
	}
	prices := make([]decimal.Decimal, len(orders))
	for i, o := range orders {
		prices[i] = o.Price
	}
	return prices
}

// PositionSize reads the quote-currency balance and the current lowest ask
// to compute how much base-currency size a new buy may use, subject to the
// open-order caps.
func (p *Placer) PositionSize(ctx context.Context) (decimal.Decimal, error) {
	if len(p.Registry.BuyOrders()) >= p.MaxOpenBuys {
		return decimal.Zero, nil
	}
	if len(p.Registry.SellOrders()) >= p.MaxOpenSells {
		return decimal.Zero, nil
	}

	balance, err := p.Exchange.GetBalance(ctx, p.QuoteCurrency)
	if err != nil {
		return decimal.Zero, err
	}

	lowestAskPrice, ok := p.lowestAsk()
	if !ok || lowestAskPrice.IsZero() {
		return decimal.Zero, nil
	}

	spendAvail := balance.Mul(p.SpendPct)
	sizeAvail := spendAvail.Div(lowestAskPrice)

	if sizeAvail.LessThanOrEqual(minSize) {
		return decimal.Zero, nil
	}
	return sizeAvail, nil
}

func (p *Placer) lowestAsk() (decimal.Decimal, bool) {
	if p.LowestAskFn != nil {
		return p.LowestAskFn()
	}
	return decimal.Zero, false
}
