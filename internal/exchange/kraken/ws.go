package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
)

const (
	defaultWSURL = "wss://ws.kraken.com/v2"

	handshakeTimeout = 15 * time.Second
	pingPeriod       = 15 * time.Second
	readWait         = 60 * time.Second
	reconnectDelay   = 2 * time.Second
)

// WSFeed streams the Kraken v2 "book" channel. Each subscribe (including a
// resubscribe after reconnect) yields a fresh snapshot before updates, so the
// downstream store is reset whenever the connection is.
type WSFeed struct {
	wsURL  string
	depth  int
	logger *slog.Logger
}

// NewWSFeed creates a stream feed. wsURL falls back to the public v2 endpoint
// when empty.
func NewWSFeed(wsURL string, depth int, logger *slog.Logger) *WSFeed {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	if depth <= 0 {
		depth = 25
	}
	return &WSFeed{
		wsURL:  wsURL,
		depth:  depth,
		logger: logger.With(slog.String("component", "kraken_ws")),
	}
}

// Name returns the venue identifier.
func (f *WSFeed) Name() string { return Name }

// WSPair maps a canonical asset to the v2 pair notation, e.g. "BTC/USD".
func WSPair(asset string) string {
	return strings.ToUpper(asset) + "/USD"
}

// assetFromPair reverses WSPair.
func assetFromPair(pair string) string {
	sym, _, ok := strings.Cut(pair, "/")
	if !ok {
		return pair
	}
	return sym
}

// Stream subscribes to the book channel for the given assets and pushes
// normalized updates into out until ctx is cancelled. Disconnects trigger a
// reconnect with a short delay.
func (f *WSFeed) Stream(ctx context.Context, assets []string, out chan<- domain.BookUpdate) error {
	if len(assets) == 0 {
		f.logger.Info("no assets to subscribe, exiting")
		return nil
	}
	for {
		err := f.runConnection(ctx, assets, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context, assets []string, out chan<- domain.BookUpdate) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("kraken/ws: connect: %w", err)
	}
	defer conn.Close()

	pairs := make([]string, 0, len(assets))
	for _, a := range assets {
		pairs = append(pairs, WSPair(a))
	}
	sub := map[string]any{
		"method": "subscribe",
		"params": map[string]any{
			"channel": "book",
			"symbol":  pairs,
			"depth":   f.depth,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("kraken/ws: subscribe: %w", err)
	}
	f.logger.Info("subscribed", slog.Int("pairs", len(pairs)))

	// Close the connection when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go pingLoop(ctx, conn, map[string]any{"method": "ping"})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kraken/ws: read: %w", domain.ErrWSDisconnect)
		}

		up, ok, err := parseBookMessage(msg)
		if err != nil {
			f.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- up:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop keeps the connection alive; Kraken drops idle clients.
func pingLoop(ctx context.Context, conn *websocket.Conn, payload map[string]any) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}

// bookMessage is the v2 book channel envelope. Prices arrive as JSON numbers;
// json.Number keeps them exact for decimal conversion.
type bookMessage struct {
	Channel string     `json:"channel"`
	Type    string     `json:"type"`
	Data    []bookData `json:"data"`
}

type bookData struct {
	Symbol    string    `json:"symbol"`
	Bids      []wsLevel `json:"bids"`
	Asks      []wsLevel `json:"asks"`
	Timestamp string    `json:"timestamp"`
}

type wsLevel struct {
	Price json.Number `json:"price"`
	Qty   json.Number `json:"qty"`
}

// parseBookMessage normalizes one frame. ok is false for heartbeats, status
// messages, and subscription acks.
func parseBookMessage(msg []byte) (domain.BookUpdate, bool, error) {
	var bm bookMessage
	if err := json.Unmarshal(msg, &bm); err != nil {
		return domain.BookUpdate{}, false, fmt.Errorf("kraken/ws: decode: %w", exchange.ErrMalformedPayload)
	}
	if bm.Channel != "book" || len(bm.Data) == 0 {
		return domain.BookUpdate{}, false, nil
	}

	var upType domain.UpdateType
	switch bm.Type {
	case "snapshot":
		upType = domain.UpdateSnapshot
	case "update":
		upType = domain.UpdateDelta
	default:
		return domain.BookUpdate{}, false, nil
	}

	data := bm.Data[0]
	bids, err := parseWSLevels(data.Bids)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}
	asks, err := parseWSLevels(data.Asks)
	if err != nil {
		return domain.BookUpdate{}, false, err
	}

	ts := time.Now()
	if data.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, data.Timestamp); err == nil {
			ts = t
		}
	}

	return domain.BookUpdate{
		Exchange:  Name,
		Symbol:    assetFromPair(data.Symbol),
		Type:      upType,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}, true, nil
}

func parseWSLevels(rows []wsLevel) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Price.String())
		if err != nil {
			return nil, fmt.Errorf("kraken/ws: price %q: %w", row.Price, exchange.ErrMalformedPayload)
		}
		qty, err := decimal.NewFromString(row.Qty.String())
		if err != nil {
			return nil, fmt.Errorf("kraken/ws: qty %q: %w", row.Qty, exchange.ErrMalformedPayload)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
