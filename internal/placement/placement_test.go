package placement

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

type fakeExchange struct {
	nextID  string
	balance decimal.Decimal
	posted  []types.Side
}

func (f *fakeExchange) PostOrder(ctx context.Context, clientRef, productID string, side types.Side, price, size decimal.Decimal) (string, error) {
	f.posted = append(f.posted, side)
	return f.nextID, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, quoteCurrency string) (decimal.Decimal, error) {
	return f.balance, nil
}

func newPlacer(reg *registry.Registry, ex Exchange) *Placer {
	return &Placer{
		Registry:      reg,
		Exchange:      ex,
		ProductID:     "BTC-USD",
		QuoteCurrency: "USD",
		MaxSpread:     d("0.10"),
		MinSpread:     d("0.05"),
		MaxOpenBuys:   6,
		MaxOpenSells:  12,
		SpendPct:      d("0.01"),
	}
}

func TestPlaceSeedBuy(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ex := &fakeExchange{nextID: "buy-1", balance: d("10000")}
	p := newPlacer(reg, ex)
	p.LowestAskFn = func() (decimal.Decimal, bool) { return d("300.00"), true }

	ctxView := order.Context{
		MinSpread:  d("0.05"),
		MaxSpread:  d("0.10"),
		HighestBid: types.PriceLevel{Price: d("299.85")},
		HasBid:     true,
		LowestAsk:  types.PriceLevel{Price: d("300.00")},
		HasAsk:     true,
		Ticker:     d("299.97"),
		HasTicker:  true,
	}

	placed, err := p.Place(context.Background(), Params{
		Price:        d("299.85"),
		Size:         d("0.333"),
		Side:         types.Buy,
		AdjustVsOpen: true,
		CheckSize:    true,
		CheckTicker:  true,
		Aggressive:   false,
	}, ctxView)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if placed == nil {
		t.Fatal("expected a placed order")
	}
	if placed.ID != "buy-1" {
		t.Errorf("ID = %q, want buy-1", placed.ID)
	}
	if placed.State != types.StateOpen {
		t.Errorf("State = %v, want Open", placed.State)
	}
	if _, ok := reg.Get("buy-1"); !ok {
		t.Error("placed order should be registered")
	}
}

func TestPositionSizeZeroWhenBuyCapReached(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	for i := 0; i < 3; i++ {
		o := order.New(types.Buy, d("300.00"), d("0.1"))
		o.ID = string(rune('a' + i))
		reg.Add(o)
	}

	ex := &fakeExchange{balance: d("1000000")}
	p := newPlacer(reg, ex)
	p.MaxOpenBuys = 3
	p.LowestAskFn = func() (decimal.Decimal, bool) { return d("300.00"), true }

	size, err := p.PositionSize(context.Background())
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if !size.IsZero() {
		t.Errorf("PositionSize() = %s, want 0 when buy count equals max_open_buys", size)
	}
}

func TestPlaceSkipsWhenPositionSizeIsDust(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ex := &fakeExchange{balance: d("1")}
	p := newPlacer(reg, ex)
	p.LowestAskFn = func() (decimal.Decimal, bool) { return d("300.00"), true }

	placed, err := p.Place(context.Background(), Params{
		Price:     d("299.00"),
		Size:      d("1"),
		Side:      types.Buy,
		CheckSize: true,
	}, order.Context{})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if placed != nil {
		t.Errorf("expected placement to be skipped, got %v", placed)
	}
	if len(ex.posted) != 0 {
		t.Error("exchange should not receive a post when position size is dust")
	}
}
