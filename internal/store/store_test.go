package store

import (
	"testing"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	reg := registry.New()
	buy := order.New(types.Buy, d("300.00"), d("0.1"))
	buy.ID = "buy-1"
	buy.State = types.StateOpen
	reg.Add(buy)

	sell := order.New(types.Sell, d("305.00"), d("0.1"))
	sell.ID = "sell-1"
	sell.State = types.StateOpen
	if err := sell.RegisterOpposite(buy); err != nil {
		t.Fatalf("RegisterOpposite: %v", err)
	}
	reg.Add(sell)

	filledBuy := order.New(types.Buy, d("298.00"), d("0.2"))
	filledBuy.ID = "buy-0"
	filledBuy.State = types.StateFilled
	reg.AddFill(filledBuy)

	if err := s.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reg2 := registry.New()
	if err := s.Load(reg2); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gotBuy, ok := reg2.Get("buy-1")
	if !ok {
		t.Fatal("expected buy-1 to be restored")
	}
	if !gotBuy.Price.Equal(d("300.00")) {
		t.Errorf("buy-1 price = %s, want 300.00", gotBuy.Price)
	}

	gotSell, ok := reg2.Get("sell-1")
	if !ok {
		t.Fatal("expected sell-1 to be restored")
	}
	if gotSell.Opposite == nil || gotSell.Opposite.ID != "buy-1" {
		t.Error("expected sell-1's opposite link to be restored to buy-1")
	}

	if _, ok := reg2.Fill("buy-0"); !ok {
		t.Error("expected buy-0 fill to be restored")
	}
}

func TestLoadMissingCheckpointIsNoOp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	reg := registry.New()
	if err := s.Load(reg); err != nil {
		t.Fatalf("Load on missing checkpoint: %v", err)
	}
	if !reg.Empty() {
		t.Error("expected an empty registry when no checkpoint exists")
	}
}

func TestSaveOverwritesPreviousCheckpoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	reg := registry.New()
	o1 := order.New(types.Buy, d("300.00"), d("0.1"))
	o1.ID = "buy-1"
	reg.Add(o1)
	if err := s.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reg.Remove("buy-1")
	o2 := order.New(types.Buy, d("301.00"), d("0.1"))
	o2.ID = "buy-2"
	reg.Add(o2)
	if err := s.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reg2 := registry.New()
	if err := s.Load(reg2); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := reg2.Get("buy-1"); ok {
		t.Error("buy-1 should not survive a later checkpoint that no longer has it")
	}
	if _, ok := reg2.Get("buy-2"); !ok {
		t.Error("buy-2 should be restored from the latest checkpoint")
	}
}
