// spotmaker is a spread-capturing market maker for a single spot product on
// a centralized exchange.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine/engine.go  — orchestrator: main loop wiring Book View, Registry, Placement, Shift, Control
//	internal/bookview          — local order book mirror fed by WebSocket snapshots, plus wall detection
//	internal/order             — the Order type and its context-driven price-adjustment methods
//	internal/registry          — tracks open orders and fills, reconciles against the exchange
//	internal/placement         — six-step order placement procedure
//	internal/shift             — per-tick reprice/stop-loss pass over open orders
//	internal/fillhandler       — replace-on-fill routine
//	internal/control           — cancel-with-fallback orchestration
//	internal/exchange          — REST client and HMAC request signing
//	internal/store             — JSON file persistence for the registry (survives restarts)
//
// How it makes money:
//
//	The bot posts a buy below the current ticker and a sell above it. When
//	one side fills, the fill handler immediately posts the opposite side at
//	a profitable spread. The shift engine continuously walks both sides
//	toward the book's current spread and cuts losses on sells that have
//	drifted too far behind the ticker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"spotmaker/internal/config"
	"spotmaker/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.MapOpenOrdersToFills(context.Background()); err != nil {
		logger.Error("failed to map open orders to fills on startup", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("spotmaker started",
		"product_id", cfg.Strategy.ProductID,
		"max_spread", cfg.Strategy.MaxSpread,
		"min_spread", cfg.Strategy.MinSpread,
		"max_open_buys", cfg.Strategy.MaxOpenBuys,
		"max_open_sells", cfg.Strategy.MaxOpenSells,
		"dry_run", cfg.DryRun,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		eng.Stop()
		<-runErr
	case err := <-runErr:
		if err != nil {
			logger.Error("engine run loop exited with error", "error", err)
			os.Exit(1)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
