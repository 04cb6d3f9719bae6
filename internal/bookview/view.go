// Package bookview is a read-only facade over the book feed.
//
// View caches the latest BookSnapshot and ticker published by a background
// Feed goroutine and answers depth/wall queries against that cache. It never
// blocks the control thread: Feed publishes on its own goroutine, a drain
// goroutine applies each update to the cache, and Refresh only reads the
// cache.
package bookview

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spotmaker/pkg/types"
)

// StalenessTimeout is the age past which IsStale reports the cached
// snapshot as stale, and how long a WallSize estimate is reused.
const StalenessTimeout = 5 * time.Second

// View is the control thread's read-only handle onto book/ticker state.
type View struct {
	feed Feed

	mu          sync.RWMutex
	snap        types.BookSnapshot
	ticker      *types.Ticker
	updated     time.Time
	wallSize    decimal.Decimal
	wallUpdated time.Time
}

// New wraps a Feed in a View. Refresh sees no data until Start has
// launched the feed's Run and the drain loop.
func New(feed Feed) *View {
	return &View{feed: feed}
}

// Start launches the feed's connection goroutine.
func (v *View) Start(ctx context.Context) {
	go func() {
		if err := v.feed.Run(ctx); err != nil && ctx.Err() == nil {
			return
		}
	}()
	go v.drain(ctx)
}

// drain pulls updates off the feed's channel into the cache as they arrive.
func (v *View) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-v.feed.Updates():
			if !ok {
				return
			}
			v.apply(u)
		}
	}
}

func (v *View) apply(u Update) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if u.Book != nil {
		v.snap.Bids = u.Book.Bids
		v.snap.Asks = u.Book.Asks
		v.snap.Timestamp = u.Book.Timestamp
		v.updated = time.Now()
	}
	if u.Ticker != nil {
		v.ticker = u.Ticker
		v.snap.Ticker = u.Ticker
		v.updated = time.Now()
	}
}

// IsStale reports whether the cached snapshot is older than StalenessTimeout.
func (v *View) IsStale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.updated.IsZero() {
		return true
	}
	return time.Since(v.updated) > StalenessTimeout
}

// Refresh returns the cached snapshot as-is; data arrives asynchronously
// from the feed, so "refresh" here means "accept whatever is freshest" —
// there is no synchronous re-fetch to request mid-tick.
func (v *View) Refresh() types.BookSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// CurrentTicker returns the latest ticker price, or false if none has
// arrived yet.
func (v *View) CurrentTicker() (types.Ticker, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.ticker == nil {
		return types.Ticker{}, false
	}
	return *v.ticker, true
}

// HighestBid returns the best bid from the cached snapshot.
func (v *View) HighestBid() (types.PriceLevel, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap.HighestBid()
}

// LowestAsk returns the best ask from the cached snapshot.
func (v *View) LowestAsk() (types.PriceLevel, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap.LowestAsk()
}

// BidDepth returns the size resting at exactly the given price on the bid
// side, or zero if no level matches.
func (v *View) BidDepth(price decimal.Decimal) decimal.Decimal {
	return depthAt(v.bidsCopy(), price)
}

// AskDepth returns the size resting at exactly the given price on the ask
// side, or zero if no level matches.
func (v *View) AskDepth(price decimal.Decimal) decimal.Decimal {
	return depthAt(v.asksCopy(), price)
}

func depthAt(levels []types.PriceLevel, price decimal.Decimal) decimal.Decimal {
	for _, l := range levels {
		if l.Price.Equal(price) {
			return l.Size
		}
	}
	return decimal.Zero
}

func (v *View) bidsCopy() []types.PriceLevel {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]types.PriceLevel, len(v.snap.Bids))
	copy(out, v.snap.Bids)
	return out
}

func (v *View) asksCopy() []types.PriceLevel {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]types.PriceLevel, len(v.snap.Asks))
	copy(out, v.snap.Asks)
	return out
}

// Bids returns a defensive copy of the cached bid levels, highest-first.
func (v *View) Bids() []types.PriceLevel { return v.bidsCopy() }

// Asks returns a defensive copy of the cached ask levels, lowest-first.
func (v *View) Asks() []types.PriceLevel { return v.asksCopy() }

// WallSize returns a configured wall size if one was set, otherwise an
// estimate derived from the current book: the mean level size beyond the
// top two levels on the bid side. Estimates are cached for StalenessTimeout
// since recomputing on every call would re-walk the whole book every tick.
func (v *View) WallSize(configured decimal.Decimal) decimal.Decimal {
	if !configured.IsZero() {
		return configured
	}

	v.mu.RLock()
	fresh := !v.wallUpdated.IsZero() && time.Since(v.wallUpdated) <= StalenessTimeout
	cached := v.wallSize
	v.mu.RUnlock()
	if fresh {
		return cached
	}

	bids := v.bidsCopy()
	estimate := estimateWallSize(bids)

	v.mu.Lock()
	v.wallSize = estimate
	v.wallUpdated = time.Now()
	v.mu.Unlock()

	return estimate
}

func estimateWallSize(bids []types.PriceLevel) decimal.Decimal {
	if len(bids) <= 2 {
		return decimal.Zero
	}
	rest := bids[2:]
	sum := decimal.Zero
	for _, l := range rest {
		sum = sum.Add(l.Size)
	}
	return sum.Div(decimal.NewFromInt(int64(len(rest))))
}
