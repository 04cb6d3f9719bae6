// Package engine is the central orchestrator of the market-making bot.
//
// It wires together the order-management engine's components — Book View,
// Registry, Placement, Shift Engine, Fill Handler, Control — into the
// single-product main loop: each tick snapshots the book,
// reconciles the registry against the exchange, optionally seeds a new
// wall-anchored buy, and runs a shift pass. A single control goroutine
// drives the loop; the only other goroutines are the Book View's feed
// connection and drain loop, which publish into a mutex-protected cache the
// control thread reads without blocking.
//
// Lifecycle: New() → Run() → [runs until ctx cancelled or Stop()] → exit.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"spotmaker/internal/bookview"
	"spotmaker/internal/config"
	"spotmaker/internal/control"
	"spotmaker/internal/exchange"
	"spotmaker/internal/fillhandler"
	"spotmaker/internal/order"
	"spotmaker/internal/placement"
	"spotmaker/internal/registry"
	"spotmaker/internal/shift"
	"spotmaker/internal/store"
	"spotmaker/pkg/types"
)

var minSize = decimal.NewFromFloat(0.01)

// Engine drives the main loop for a single product.
type Engine struct {
	cfg    config.Config
	client *exchange.Client
	feed   *bookview.WSFeed
	view   *bookview.View

	registry *registry.Registry
	placer   *placement.Placer
	handler  *fillhandler.Handler
	shifter  *shift.Engine
	control  *control.Control
	store    *store.Store

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires every component of the market-making loop.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	auth := exchange.NewAuth(cfg.Exchange.ApiKey, cfg.Exchange.Secret, cfg.Exchange.Passphrase)
	client := exchange.NewClient(cfg, auth, logger)

	feed := bookview.NewWSFeed(cfg.Exchange.WSURL, cfg.Strategy.ProductID, logger)
	view := bookview.New(feed)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	reg := registry.New()

	placer := &placement.Placer{
		Registry:      reg,
		Exchange:      client,
		ProductID:     cfg.Strategy.ProductID,
		QuoteCurrency: cfg.Strategy.QuoteCurrency,
		MaxSpread:     decimal.NewFromFloat(cfg.Strategy.MaxSpread),
		MinSpread:     decimal.NewFromFloat(cfg.Strategy.MinSpread),
		MaxOpenBuys:   cfg.Strategy.MaxOpenBuys,
		MaxOpenSells:  cfg.Strategy.MaxOpenSells,
		SpendPct:      decimal.NewFromFloat(cfg.Strategy.SpendPct),
	}
	placer.LowestAskFn = func() (decimal.Decimal, bool) {
		lvl, ok := view.LowestAsk()
		return lvl.Price, ok
	}

	handler := &fillhandler.Handler{
		Registry:   reg,
		Placer:     placer,
		MaxSpread:  placer.MaxSpread,
		MinSpread:  placer.MinSpread,
		Aggressive: cfg.Strategy.Aggressive,
		Logger:     logger,
	}
	handler.ContextFn = func(side types.Side) order.Context {
		ctxView := order.Context{
			MinSpread: placer.MinSpread,
			MaxSpread: placer.MaxSpread,
		}
		if hb, ok := view.HighestBid(); ok {
			ctxView.HighestBid = hb
			ctxView.HasBid = true
		}
		if la, ok := view.LowestAsk(); ok {
			ctxView.LowestAsk = la
			ctxView.HasAsk = true
		}
		if tk, ok := view.CurrentTicker(); ok {
			ctxView.Ticker = tk.Price
			ctxView.HasTicker = true
		}
		if side == types.Buy {
			ctxView.SameSideBook = view.Bids()
		} else {
			ctxView.SameSideBook = view.Asks()
		}
		return ctxView
	}

	ctl := &control.Control{
		Registry: reg,
		Exchange: client,
		Handler:  handler,
		Placer:   placer,
	}

	shifter := &shift.Engine{
		Registry:   reg,
		Canceller:  ctl,
		Placer:     ctl,
		MaxSpread:  placer.MaxSpread,
		MinSpread:  placer.MinSpread,
		StopPct:    decimal.NewFromFloat(cfg.Strategy.StopPct),
		Aggressive: cfg.Strategy.Aggressive,
		Logger:     logger,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:      cfg,
		client:   client,
		feed:     feed,
		view:     view,
		registry: reg,
		placer:   placer,
		handler:  handler,
		shifter:  shifter,
		control:  ctl,
		store:    st,
		logger:   logger.With("component", "engine"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// MapOpenOrdersToFills restores opposite-pairing state after a restart:
// for every open sell not yet linked, it finds the
// earliest unclaimed buy fill with an exactly matching size, synthesizes a
// buy Order from that fill, and links it as the sell's opposite. Fills are
// consumed in the order the exchange returns them, which for this venue is
// oldest-first.
func (e *Engine) MapOpenOrdersToFills(ctx context.Context) error {
	openOrders, err := e.client.GetOpenOrders(ctx)
	if err != nil {
		return err
	}
	fills, err := e.client.GetFills(ctx, e.cfg.Strategy.ProductID)
	if err != nil {
		return err
	}

	claimed := make([]bool, len(fills))

	for _, info := range openOrders {
		o, tracked := e.registry.Get(info.ID)
		if !tracked {
			o = order.New(info.Side, info.Price, info.Size)
			o.ID = info.ID
			o.State = types.StateOpen
			e.registry.Add(o)
		}
		if info.Side != types.Sell || o.Opposite != nil {
			continue
		}
		for i, f := range fills {
			if claimed[i] || f.Side != types.Buy || !f.Size.Equal(o.Size) {
				continue
			}
			buy := order.New(types.Buy, f.Price, f.Size)
			buy.ID = f.OrderID
			buy.State = types.StateFilled
			o.Opposite = buy
			claimed[i] = true
			break
		}
	}
	return nil
}

// Run starts the Book View's feed and drives the main loop until ctx is
// cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	defer e.cancel()

	e.view.Start(e.ctx)

	if err := e.store.Load(e.registry); err != nil {
		e.logger.Warn("failed to load checkpoint, starting with an empty registry", "error", err)
	}

	ticker := time.NewTicker(e.cfg.Strategy.Interval)
	defer ticker.Stop()

	for {
		e.tick(e.ctx)

		if err := e.store.Save(e.registry); err != nil {
			e.logger.Warn("failed to save checkpoint", "error", err)
		}

		select {
		case <-e.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs one iteration of the main loop.
func (e *Engine) tick(ctx context.Context) {
	snap := e.view.Refresh()
	wallSize := e.view.WallSize(decimal.NewFromFloat(e.cfg.Strategy.WallSize))
	ticker, hasTicker := e.view.CurrentTicker()

	// A refresh error is logged; the seed and shift passes still run against
	// whatever state the registry now holds.
	if err := e.registry.Refresh(ctx, e.client, e.handler, e.cfg.Strategy.ManageExistingOrders); err != nil {
		e.logger.Error("registry refresh failed", "error", err)
	}

	exclude := make(map[string]bool)
	if id, ok := e.seedBuy(ctx, snap, wallSize, ticker.Price, hasTicker); ok {
		exclude[id] = true
	}

	e.shifter.ShiftOrders(ctx, snap, exclude)
}

// seedBuy re-normalizes the available buy size through the current lowest
// ask and ticker, finds the first wall at index >= 3 walking the bids, and
// places a buy one level inside it.
func (e *Engine) seedBuy(ctx context.Context, snap types.BookSnapshot, wallSize, tickerPrice decimal.Decimal, hasTicker bool) (string, bool) {
	if !hasTicker || len(snap.Bids) == 0 {
		return "", false
	}

	sizeAvail, err := e.placer.PositionSize(ctx)
	if err != nil {
		e.logger.Error("position_size failed, skipping seed buy this tick", "error", err)
		return "", false
	}
	if sizeAvail.LessThanOrEqual(minSize) {
		return "", false
	}

	lowestAsk, hasAsk := snap.LowestAsk()
	if !hasAsk || lowestAsk.Price.IsZero() {
		return "", false
	}

	spend := sizeAvail.Mul(tickerPrice)
	sizeAvail = spend.Div(lowestAsk.Price)
	if sizeAvail.LessThanOrEqual(minSize) {
		return "", false
	}

	bidIdx := -1
	for idx, lvl := range snap.Bids {
		if idx >= 3 && lvl.Size.GreaterThanOrEqual(wallSize) {
			bidIdx = idx - 1
			break
		}
	}
	if bidIdx < 0 || bidIdx >= len(snap.Bids) {
		return "", false
	}
	price := snap.Bids[bidIdx].Price
	if price.IsZero() {
		return "", false
	}

	ctxView := order.Context{
		MinSpread: e.placer.MinSpread,
		MaxSpread: e.placer.MaxSpread,
		Ticker:    tickerPrice,
		HasTicker: true,
	}
	if hb, ok := snap.HighestBid(); ok {
		ctxView.HighestBid = hb
		ctxView.HasBid = true
	}
	ctxView.LowestAsk = lowestAsk
	ctxView.HasAsk = true

	placed, err := e.placer.Place(ctx, placement.Params{
		Price:        price,
		Size:         sizeAvail,
		Side:         types.Buy,
		AdjustVsOpen: true,
		CheckTicker:  true,
		Aggressive:   false,
	}, ctxView)
	if err != nil {
		e.logger.Error("seed buy failed", "error", err)
		return "", false
	}
	if placed == nil {
		return "", false
	}
	return placed.ID, true
}

// Stop gracefully shuts down: cancels the main loop's context, cancels all
// open buys best-effort (logging and continuing on error — sells are left
// in place so their profit can still be realized), persists a final
// checkpoint, and closes the feed connection.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	if e.cancel != nil {
		e.cancel()
	}

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCancel()

	for _, o := range e.registry.BuyOrders() {
		if _, err := e.control.Cancel(cancelCtx, o.ID); err != nil {
			e.logger.Error("failed to cancel buy on shutdown", "order_id", o.ID, "error", err)
		}
	}

	if err := e.store.Save(e.registry); err != nil {
		e.logger.Error("failed to save final checkpoint", "error", err)
	}
	if err := e.feed.Close(); err != nil {
		e.logger.Warn("error closing book feed", "error", err)
	}
	e.store.Close()

	e.logger.Info("shutdown complete")
}
