package order

import (
	"github.com/shopspring/decimal"

	"spotmaker/pkg/types"
)

// Context is the explicit, read-only view every pure adjustment method
// needs: spread configuration and the current book/peer state. Passing it
// in instead of a back-pointer to a live engine keeps these methods
// testable in isolation.
type Context struct {
	MinSpread decimal.Decimal
	MaxSpread decimal.Decimal

	// HighestBid/LowestAsk are the current touch; zero-value PriceLevel
	// means that side of the book is currently empty.
	HighestBid types.PriceLevel
	HasBid     bool
	LowestAsk  types.PriceLevel
	HasAsk     bool

	Ticker    decimal.Decimal
	HasTicker bool

	// PeerPrices are the prices of other tracked orders, same side as the
	// order under consideration unless the caller decides otherwise.
	PeerPrices []decimal.Decimal

	// SameSideBook is the book array (bids for a buy, asks for a sell),
	// used for wall scanning.
	SameSideBook []types.PriceLevel
}

// Spread returns MinSpread if aggressive, else MaxSpread.
func (c Context) Spread(aggressive bool) decimal.Decimal {
	if aggressive {
		return c.MinSpread
	}
	return c.MaxSpread
}

// AmountAboveSpread returns how far o.Price sits beyond the desired spread
// from the relevant touch. Positive means further from the touch than
// desired. With no touch to measure from, the order is treated as already
// at spread.
func (o *Order) AmountAboveSpread(ctx Context, spread decimal.Decimal) decimal.Decimal {
	if o.Side == types.Sell {
		if !ctx.HasBid {
			return decimal.Zero
		}
		bidRef := ctx.HighestBid.Price
		return types.Round2(o.Price.Sub(bidRef.Add(spread)))
	}
	if !ctx.HasAsk {
		return decimal.Zero
	}
	askRef := ctx.LowestAsk.Price
	return types.Round2(o.Price.Sub(askRef.Sub(spread)))
}

// PriceAdjustedToSpread moves the order closer to market by `factor` of its
// distance beyond the desired spread, then clamps so the profitable side
// keeps at least minProfit distance from the opposite order's price.
func (o *Order) PriceAdjustedToSpread(ctx Context, aggressive bool, factor, minProfit decimal.Decimal) decimal.Decimal {
	spread := ctx.Spread(aggressive)
	amount := o.AmountAboveSpread(ctx, spread)
	price := types.Round2(o.Price.Sub(amount.Mul(factor)))

	if o.Opposite != nil && !minProfit.IsZero() {
		if o.Side == types.Sell {
			floor := o.Opposite.Price.Add(minProfit)
			if price.LessThan(floor) {
				price = floor
			}
		} else {
			ceiling := o.Opposite.Price.Sub(minProfit)
			if price.GreaterThan(ceiling) {
				price = ceiling
			}
		}
	}
	return types.Round2(price)
}

// PriceAdjustedToOtherPrices nudges the candidate price away from every
// same-side peer by at least 2·step, in the direction aggressiveness and
// side dictate.
func (o *Order) PriceAdjustedToOtherPrices(ctx Context, aggressive bool, step, minProfit decimal.Decimal) decimal.Decimal {
	myMin := o.PriceAdjustedToSpread(ctx, aggressive, decimal.NewFromFloat(0.8), minProfit)

	peers := make([]decimal.Decimal, 0, len(ctx.PeerPrices))
	for _, p := range ctx.PeerPrices {
		if !p.Equal(o.Price) {
			peers = append(peers, p)
		}
	}
	if len(peers) == 0 {
		return myMin
	}

	incrementUp := o.incrementDirection(aggressive, myMin, peers, step)

	candidate := myMin
	window := step.Mul(decimal.NewFromInt(2))
	for collides(candidate, peers, window) {
		if incrementUp {
			candidate = candidate.Add(step)
		} else {
			candidate = candidate.Sub(step)
		}
		candidate = types.Round2(candidate)
	}
	return candidate
}

func (o *Order) incrementDirection(aggressive bool, myMin decimal.Decimal, peers []decimal.Decimal, step decimal.Decimal) bool {
	switch {
	case o.Side == types.Buy && aggressive:
		return true
	case o.Side == types.Buy && !aggressive:
		return false
	case o.Side == types.Sell && aggressive:
		minPeer := peers[0]
		for _, p := range peers[1:] {
			if p.LessThan(minPeer) {
				minPeer = p
			}
		}
		if myMin.GreaterThanOrEqual(minPeer.Sub(step)) {
			return false
		}
		return true
	default: // sell + passive
		return true
	}
}

func collides(candidate decimal.Decimal, peers []decimal.Decimal, window decimal.Decimal) bool {
	for _, p := range peers {
		diff := candidate.Sub(p).Abs()
		if diff.LessThanOrEqual(window) {
			return true
		}
	}
	return false
}

// PriceAdjustedToTicker prevents the order from crossing the book: a buy
// at or above ticker−spread is pulled down to ticker−spread, a sell at or
// below ticker+spread is raised to ticker+spread. After that it walks away
// from same-side peers by spread/2 until unique.
func (o *Order) PriceAdjustedToTicker(ctx Context, aggressive bool) decimal.Decimal {
	spread := ctx.Spread(aggressive)
	price := o.Price

	if ctx.HasTicker {
		if o.Side == types.Buy {
			if price.GreaterThanOrEqual(ctx.Ticker.Sub(spread)) {
				price = types.Round2(ctx.Ticker.Sub(spread))
			}
		} else {
			if price.LessThanOrEqual(ctx.Ticker.Add(spread)) {
				price = types.Round2(ctx.Ticker.Add(spread))
			}
		}
	}

	half := spread.Div(decimal.NewFromInt(2))
	for collides(price, ctx.PeerPrices, decimal.Zero) {
		if o.Side == types.Buy {
			price = types.Round2(price.Sub(half))
		} else {
			price = types.Round2(price.Add(half))
		}
	}
	return price
}

// PriceAdjustedToWall scans the same-side book for the first level at or
// beyond minIdx whose size is at least wallSize; that level anchors the
// wall. Returns the anchored price and true, or zero/false if no wall is
// found.
func (o *Order) PriceAdjustedToWall(ctx Context, minIdx int, wallSize, bump decimal.Decimal) (decimal.Decimal, bool) {
	for i := minIdx; i < len(ctx.SameSideBook); i++ {
		lvl := ctx.SameSideBook[i]
		if lvl.Size.GreaterThanOrEqual(wallSize) {
			if o.Side == types.Buy {
				return types.Round2(lvl.Price.Add(bump)), true
			}
			return types.Round2(lvl.Price.Sub(bump)), true
		}
	}
	return decimal.Zero, false
}

// PriceAdjustedToProfitTarget increments the candidate price by 0.01 steps
// until the resulting PnL reaches minProfit. Returns the order's current
// price unchanged if there is no opposite or PnL is undefined. Meaningful
// for sells, whose PnL rises with price; a buy's PnL falls as price rises,
// so the search is bounded rather than unconditional.
func (o *Order) PriceAdjustedToProfitTarget(minProfit decimal.Decimal) decimal.Decimal {
	if o.Opposite == nil {
		return o.Price
	}
	price := o.Price
	const maxSteps = 100000
	for i := 0; i < maxSteps; i++ {
		pnl, ok := o.GetPnL(price)
		if !ok {
			return o.Price
		}
		if pnl.GreaterThanOrEqual(minProfit) {
			return price
		}
		price = types.Round2(price.Add(hundredth))
	}
	return price
}
