package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"spotmaker/internal/config"
	"spotmaker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

func TestPostOrderSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "order-123", "status": "open"})
	}))
	defer srv.Close()

	cfg := config.Config{Exchange: config.ExchangeConfig{RESTBaseURL: srv.URL}}
	c := NewClient(cfg, NewAuth("key", "c2VjcmV0", "pass"), testLogger())

	id, err := c.PostOrder(context.Background(), "ref-1", "BTC-USD", types.Buy, d("300.00"), d("0.1"))
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}
	if id != "order-123" {
		t.Errorf("id = %q, want order-123", id)
	}
}

func TestCancelOrderNotFoundClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := config.Config{Exchange: config.ExchangeConfig{RESTBaseURL: srv.URL}}
	c := NewClient(cfg, NewAuth("key", "c2VjcmV0", "pass"), testLogger())

	err := c.CancelOrder(context.Background(), "order-123")
	var exchErr *types.ExchangeError
	if !errors.As(err, &exchErr) {
		t.Fatalf("expected *types.ExchangeError, got %T: %v", err, err)
	}
	if !exchErr.IsNotFound() {
		t.Errorf("expected Code=not_found, got %q", exchErr.Code)
	}
}

func TestCancelOrderDoneClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	cfg := config.Config{Exchange: config.ExchangeConfig{RESTBaseURL: srv.URL}}
	c := NewClient(cfg, NewAuth("key", "c2VjcmV0", "pass"), testLogger())

	err := c.CancelOrder(context.Background(), "order-123")
	var exchErr *types.ExchangeError
	if !errors.As(err, &exchErr) {
		t.Fatalf("expected *types.ExchangeError, got %T: %v", err, err)
	}
	if !exchErr.IsDone() {
		t.Errorf("expected Code=done, got %q", exchErr.Code)
	}
}

func TestCancelOrderRejectionIsCancellationError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := config.Config{Exchange: config.ExchangeConfig{RESTBaseURL: srv.URL}}
	c := NewClient(cfg, NewAuth("key", "c2VjcmV0", "pass"), testLogger())

	err := c.CancelOrder(context.Background(), "order-123")
	var cancErr *types.CancellationError
	if !errors.As(err, &cancErr) {
		t.Fatalf("expected *types.CancellationError, got %T: %v", err, err)
	}
}

func TestDryRunSkipsHTTP(t *testing.T) {
	t.Parallel()

	cfg := config.Config{DryRun: true, Exchange: config.ExchangeConfig{RESTBaseURL: "http://unused.invalid"}}
	c := NewClient(cfg, NewAuth("key", "secret", "pass"), testLogger())

	id, err := c.PostOrder(context.Background(), "ref-1", "BTC-USD", types.Buy, d("300.00"), d("0.1"))
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}
	if id == "" {
		t.Error("expected a synthetic dry-run id")
	}
	if err := c.CancelOrder(context.Background(), id); err != nil {
		t.Errorf("CancelOrder dry-run: %v", err)
	}
}
