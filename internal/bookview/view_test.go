package bookview

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spotmaker/pkg/types"
)

// fakeFeed lets tests push updates without a real connection.
type fakeFeed struct {
	ch chan Update
}

func newFakeFeed() *fakeFeed { return &fakeFeed{ch: make(chan Update, 16)} }

func (f *fakeFeed) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (f *fakeFeed) Close() error                  { return nil }
func (f *fakeFeed) Updates() <-chan Update        { return f.ch }
func (f *fakeFeed) push(u Update)                 { f.ch <- u }

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

func TestViewIsStaleBeforeAnyData(t *testing.T) {
	t.Parallel()
	v := New(newFakeFeed())
	if !v.IsStale() {
		t.Error("View with no data should report stale")
	}
}

func TestViewAppliesBookAndTicker(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed()
	v := New(feed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v.Start(ctx)

	feed.push(Update{Book: &types.BookSnapshot{
		Bids: []types.PriceLevel{{Price: d("100.00"), Size: d("1")}},
		Asks: []types.PriceLevel{{Price: d("100.50"), Size: d("2")}},
	}})
	feed.push(Update{Ticker: &types.Ticker{Price: d("100.25")}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !v.IsStale() {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if v.IsStale() {
		t.Fatal("expected fresh snapshot after updates applied")
	}
	bid, ok := v.HighestBid()
	if !ok || !bid.Price.Equal(d("100.00")) {
		t.Errorf("HighestBid() = %v, %v", bid, ok)
	}
	ask, ok := v.LowestAsk()
	if !ok || !ask.Price.Equal(d("100.50")) {
		t.Errorf("LowestAsk() = %v, %v", ask, ok)
	}
	tk, ok := v.CurrentTicker()
	if !ok || !tk.Price.Equal(d("100.25")) {
		t.Errorf("CurrentTicker() = %v, %v", tk, ok)
	}
}

func TestWallSizeUsesConfiguredValue(t *testing.T) {
	t.Parallel()
	v := New(newFakeFeed())
	got := v.WallSize(d("50"))
	if !got.Equal(d("50")) {
		t.Errorf("WallSize() = %s, want configured 50", got)
	}
}

func TestWallSizeEstimateFromBook(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed()
	v := New(feed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v.Start(ctx)

	feed.push(Update{Book: &types.BookSnapshot{
		Bids: []types.PriceLevel{
			{Price: d("100.00"), Size: d("1")},
			{Price: d("99.95"), Size: d("2")},
			{Price: d("99.90"), Size: d("10")},
			{Price: d("99.85"), Size: d("20")},
		},
	}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(v.Bids()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	got := v.WallSize(decimal.Zero)
	want := d("15") // mean of levels from index 2 on: (10+20)/2
	if !got.Equal(want) {
		t.Errorf("WallSize() estimate = %s, want %s", got, want)
	}
}

func TestBidAskDepth(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed()
	v := New(feed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v.Start(ctx)

	feed.push(Update{Book: &types.BookSnapshot{
		Bids: []types.PriceLevel{{Price: d("100.00"), Size: d("3")}},
		Asks: []types.PriceLevel{{Price: d("100.50"), Size: d("4")}},
	}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(v.Bids()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if got := v.BidDepth(d("100.00")); !got.Equal(d("3")) {
		t.Errorf("BidDepth() = %s, want 3", got)
	}
	if got := v.AskDepth(d("100.50")); !got.Equal(d("4")) {
		t.Errorf("AskDepth() = %s, want 4", got)
	}
	if got := v.BidDepth(d("1.00")); !got.IsZero() {
		t.Errorf("BidDepth() for missing level = %s, want 0", got)
	}
}
