// feed.go implements the WebSocket feed consumed by the Book View.
//
// The feed subscribes to a single product's level-2 book and ticker
// channels. It auto-reconnects with exponential backoff (1s → 30s max) and
// a read deadline (90s) so a silently dead connection is detected within a
// couple of missed pings, same pattern the exchange's market feed used.
package bookview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"spotmaker/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	updateBufferSize = 256
)

// Feed is the collaborator the View polls for the latest book/ticker state.
// It is deliberately narrow: the View owns caching and staleness, the feed
// only owns the wire connection.
type Feed interface {
	Run(ctx context.Context) error
	Close() error
	Updates() <-chan Update
}

// Update is one book or ticker change pushed by the feed.
type Update struct {
	Book   *types.BookSnapshot // non-nil on a book event
	Ticker *types.Ticker       // non-nil on a ticker event
}

// wireLevel mirrors the venue's [price, size] level encoding.
type wireLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type wireBookEvent struct {
	Type string      `json:"type"` // "book"
	Bids []wireLevel `json:"bids"`
	Asks []wireLevel `json:"asks"`
}

type wireTickerEvent struct {
	Type  string          `json:"type"` // "ticker"
	Price decimal.Decimal `json:"price"`
}

type wireSubscribeMsg struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Product string `json:"product_id"`
}

// WSFeed is the gorilla/websocket-backed implementation of Feed.
type WSFeed struct {
	url     string
	product string

	connMu sync.Mutex
	conn   *websocket.Conn

	updateCh chan Update
	logger   *slog.Logger
}

// NewWSFeed creates a feed for one product's book+ticker channels.
func NewWSFeed(wsURL, product string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:      wsURL,
		product:  product,
		updateCh: make(chan Update, updateBufferSize),
		logger:   logger.With("component", "bookview_feed"),
	}
}

// Updates returns the channel of book/ticker updates.
func (f *WSFeed) Updates() <-chan Update { return f.updateCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("book feed disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(wireSubscribeMsg{Type: "subscribe", Channel: "level2", Product: f.product}); err != nil {
		return fmt.Errorf("subscribe level2: %w", err)
	}
	if err := f.writeJSON(wireSubscribeMsg{Type: "subscribe", Channel: "ticker", Product: f.product}); err != nil {
		return fmt.Errorf("subscribe ticker: %w", err)
	}

	f.logger.Info("book feed connected", "product", f.product)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *WSFeed) dispatchMessage(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.Type {
	case "book":
		var evt wireBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal book event", "error", err)
			return
		}
		snap := &types.BookSnapshot{
			Bids:      toLevels(evt.Bids),
			Asks:      toLevels(evt.Asks),
			Timestamp: time.Now(),
		}
		f.publish(Update{Book: snap})

	case "ticker":
		var evt wireTickerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal ticker event", "error", err)
			return
		}
		f.publish(Update{Ticker: &types.Ticker{Price: evt.Price, Time: time.Now()}})

	default:
		f.logger.Debug("unknown ws event type", "type", envelope.Type)
	}
}

func (f *WSFeed) publish(u Update) {
	select {
	case f.updateCh <- u:
	default:
		f.logger.Warn("book feed update channel full, dropping update")
	}
}

func toLevels(wl []wireLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, len(wl))
	for i, l := range wl {
		out[i] = types.PriceLevel{Price: l.Price, Size: l.Size}
	}
	return out
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
