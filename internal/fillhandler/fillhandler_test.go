package fillhandler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/placement"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeExchange struct {
	nextID  string
	balance decimal.Decimal
}

func (f *fakeExchange) PostOrder(ctx context.Context, clientRef, productID string, side types.Side, price, size decimal.Decimal) (string, error) {
	return f.nextID, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, quoteCurrency string) (decimal.Decimal, error) {
	return f.balance, nil
}

func newHandler(reg *registry.Registry, maxOpenBuys, maxOpenSells int) (*Handler, *fakeExchange) {
	ex := &fakeExchange{nextID: "sell-1", balance: d("10000")}
	placer := &placement.Placer{
		Registry:      reg,
		Exchange:      ex,
		ProductID:     "BTC-USD",
		QuoteCurrency: "USD",
		MaxSpread:     d("0.10"),
		MinSpread:     d("0.05"),
		MaxOpenBuys:   maxOpenBuys,
		MaxOpenSells:  maxOpenSells,
		SpendPct:      d("0.01"),
	}
	placer.LowestAskFn = func() (decimal.Decimal, bool) { return d("300.00"), true }
	h := &Handler{
		Registry:   reg,
		Placer:     placer,
		MaxSpread:  d("0.10"),
		MinSpread:  d("0.05"),
		Aggressive: true,
		Logger:     testLogger(),
	}
	return h, ex
}

func TestHandleFillBuyReplacesWithSell(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	buy := order.New(types.Buy, d("300.00"), d("0.1"))
	buy.ID = "buy-1"
	reg.Add(buy)

	h, _ := newHandler(reg, 6, 12)

	_, err := h.HandleFill(context.Background(), "buy-1", true)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}

	if _, ok := reg.Get("buy-1"); ok {
		t.Error("filled order should be removed from the registry")
	}
	if _, ok := reg.Fill("buy-1"); !ok {
		t.Error("filled order should be recorded in fills")
	}

	sells := reg.SellOrders()
	if len(sells) != 1 {
		t.Fatalf("expected 1 replacement sell, got %d", len(sells))
	}
	if sells[0].Opposite != buy {
		t.Error("replacement sell's opposite should be the filled buy")
	}
	if !sells[0].Price.GreaterThanOrEqual(d("300.05")) {
		t.Errorf("replacement sell price = %s, want >= 300.05", sells[0].Price)
	}
}

func TestHandleFillSellCapEnforcement(t *testing.T) {
	t.Parallel()

	// max_open_buys=3 with 3 buys open. A sell fills: no replacement buy
	// may be placed, and the fills table grows by one.
	reg := registry.New()
	for i := 0; i < 3; i++ {
		b := order.New(types.Buy, d("300.00"), d("0.1"))
		b.ID = string(rune('a' + i))
		reg.Add(b)
	}
	sell := order.New(types.Sell, d("305.00"), d("0.1"))
	sell.ID = "sell-1"
	reg.Add(sell)

	h, ex := newHandler(reg, 3, 12)
	ex.nextID = "new-buy"

	before := reg.FillCount()
	_, err := h.HandleFill(context.Background(), "sell-1", true)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}

	if reg.FillCount() != before+1 {
		t.Errorf("fills table should grow by one, got %d -> %d", before, reg.FillCount())
	}
	if _, ok := reg.Get("new-buy"); ok {
		t.Error("no replacement buy should be placed at the cap")
	}
}
