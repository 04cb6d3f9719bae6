// Package exchange implements the REST client for the centralized exchange
// this bot trades against. The WebSocket book feed is in internal/bookview.
//
// The REST client (Client) provides:
//   - GetOpenOrders: GET  /orders?status=open  — list currently-resting orders
//   - GetFills:      GET  /fills               — list recent fills for a product
//   - GetBalance:    GET  /accounts            — quote-currency balance
//   - PostOrder:     POST /orders               — place a single limit order
//   - CancelOrder:   DELETE /orders/{id}        — cancel by ID
//
// Every request is rate-limited via per-category TokenBuckets, automatically
// retried on 5xx errors, and authenticated with HMAC headers (book reads are
// public and unauthenticated).
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"spotmaker/internal/config"
	"spotmaker/pkg/types"
)

// Client is the REST API client. It wraps a resty HTTP client with rate
// limiting, retry, and HMAC auth.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Exchange.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger,
	}
}

type orderRequest struct {
	ClientRef string          `json:"client_ref"`
	ProductID string          `json:"product_id"`
	Side      types.Side      `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Type      string          `json:"type"` // always "limit"
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PostOrder places a single limit order and returns its exchange-assigned
// ID. In dry-run mode it fabricates a synthetic ID without making a
// request.
func (c *Client) PostOrder(ctx context.Context, clientRef, productID string, side types.Side, price, size decimal.Decimal) (string, error) {
	if c.dryRun {
		id := "dry-run-" + clientRef
		c.logger.Info("DRY-RUN: would post order", "side", side, "price", price, "size", size)
		return id, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(orderRequest{
		ClientRef: clientRef,
		ProductID: productID,
		Side:      side,
		Price:     price,
		Size:      size,
		Type:      "limit",
	})
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.Headers(http.MethodPost, "/orders", string(body))
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		ForceContentType("application/json").
		Post("/orders")
	if err != nil {
		return "", &types.ExchangeError{Op: "post_order", Err: err}
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", &types.ExchangeError{Op: "post_order", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}

	return result.ID, nil
}

// CancelOrder cancels a single order by ID. Classifies "done" (already
// filled) and "not found" responses via ExchangeError.Code so the caller
// can branch on them without string matching.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "id", orderID)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	path := "/orders/" + orderID
	headers, err := c.auth.Headers(http.MethodDelete, path, "")
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Delete(path)
	if err != nil {
		return &types.ExchangeError{Op: "cancel_order", OrderID: orderID, Err: err}
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return &types.ExchangeError{Op: "cancel_order", OrderID: orderID, Code: "not_found", Err: fmt.Errorf("order not found")}
	case http.StatusConflict:
		return &types.ExchangeError{Op: "cancel_order", OrderID: orderID, Code: "done", Err: fmt.Errorf("order already done")}
	default:
		// The venue explicitly rejected the cancel for some other reason.
		return &types.CancellationError{OrderID: orderID, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
}

// GetOpenOrders lists all currently-resting orders for the product.
func (c *Client) GetOpenOrders(ctx context.Context) ([]types.OpenOrderInfo, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.auth.Headers(http.MethodGet, "/orders", "")
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	var result []types.OpenOrderInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("status", "open").
		SetResult(&result).
		ForceContentType("application/json").
		Get("/orders")
	if err != nil {
		return nil, &types.ExchangeError{Op: "get_orders", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.ExchangeError{Op: "get_orders", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	return result, nil
}

// GetFills lists recent fills for the configured product.
func (c *Client) GetFills(ctx context.Context, productID string) ([]types.FillInfo, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.auth.Headers(http.MethodGet, "/fills", "")
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	var result []types.FillInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("product_id", productID).
		SetResult(&result).
		ForceContentType("application/json").
		Get("/fills")
	if err != nil {
		return nil, &types.ExchangeError{Op: "get_fills", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.ExchangeError{Op: "get_fills", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	return result, nil
}

type accountResponse struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// GetBalance returns the available balance for the given quote currency.
func (c *Client) GetBalance(ctx context.Context, quoteCurrency string) (decimal.Decimal, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	headers, err := c.auth.Headers(http.MethodGet, "/accounts", "")
	if err != nil {
		return decimal.Zero, fmt.Errorf("sign request: %w", err)
	}

	var result []accountResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		ForceContentType("application/json").
		Get("/accounts")
	if err != nil {
		return decimal.Zero, &types.ExchangeError{Op: "get_accounts", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, &types.ExchangeError{Op: "get_accounts", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}

	for _, acc := range result {
		if acc.Currency == quoteCurrency {
			return acc.Balance, nil
		}
	}
	return decimal.Zero, nil
}
