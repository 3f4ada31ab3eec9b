package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
)

const (
	defaultWSURL = "wss://stream.bybit.com/v5/public/spot"

	handshakeTimeout = 15 * time.Second
	// Bybit closes connections that stay silent; the docs ask for a ping
	// roughly every 20 seconds.
	pingPeriod     = 20 * time.Second
	readWait       = 60 * time.Second
	reconnectDelay = 2 * time.Second
)

// WSFeed streams the v5 public orderbook topic. The first frame after every
// subscribe is a snapshot, followed by deltas carrying the update ID used for
// ordering.
type WSFeed struct {
	wsURL  string
	depth  int
	logger *slog.Logger
}

// NewWSFeed creates a stream feed. wsURL falls back to the public spot
// endpoint when empty; depth selects the orderbook topic level.
func NewWSFeed(wsURL string, depth int, logger *slog.Logger) *WSFeed {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	if depth <= 0 {
		depth = 50
	}
	return &WSFeed{
		wsURL:  wsURL,
		depth:  depth,
		logger: logger.With(slog.String("component", "bybit_ws")),
	}
}

// Name returns the venue identifier.
func (f *WSFeed) Name() string { return Name }

// Stream subscribes to the orderbook topic for the given assets and pushes
// normalized updates into out until ctx is cancelled. Disconnects trigger a
// reconnect with a short delay; the resubscribe snapshot resets the book.
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
		return fmt.Errorf("bybit/ws: connect: %w", err)
	}
	defer conn.Close()

	args := make([]string, 0, len(assets))
	for _, a := range assets {
		args = append(args, fmt.Sprintf("orderbook.%d.%s", f.depth, Pair(a)))
	}
	sub := map[string]any{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("bybit/ws: subscribe: %w", err)
	}
	f.logger.Info("subscribed", slog.Any("topics", args))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go f.pingLoop(ctx, conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bybit/ws: read: %w", domain.ErrWSDisconnect)
		}

		up, ok, err := parseTopicMessage(msg)
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

func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]any{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

// topicMessage is the v5 public stream envelope.
type topicMessage struct {
	Topic string         `json:"topic"`
	Type  string         `json:"type"`
	Ts    int64          `json:"ts"`
	Data  orderbookLevel `json:"data"`
}

// parseTopicMessage normalizes one frame. ok is false for pongs and
// subscription acks.
func parseTopicMessage(msg []byte) (domain.BookUpdate, bool, error) {
	var tm topicMessage
	if err := json.Unmarshal(msg, &tm); err != nil {
		return domain.BookUpdate{}, false, fmt.Errorf("bybit/ws: decode: %w", exchange.ErrMalformedPayload)
	}
	if !strings.HasPrefix(tm.Topic, "orderbook.") {
		return domain.BookUpdate{}, false, nil
	}

	var upType domain.UpdateType
	switch tm.Type {
	case "snapshot":
		upType = domain.UpdateSnapshot
	case "delta":
		upType = domain.UpdateDelta
	default:
		return domain.BookUpdate{}, false, nil
	}

	bids, err := parseLevels(tm.Data.Bids)
	if err != nil {
		return domain.BookUpdate{}, false, fmt.Errorf("bybit/ws: bids: %w", err)
	}
	asks, err := parseLevels(tm.Data.Asks)
	if err != nil {
		return domain.BookUpdate{}, false, fmt.Errorf("bybit/ws: asks: %w", err)
	}

	ts := time.Now()
	if tm.Ts > 0 {
		ts = time.UnixMilli(tm.Ts)
	}

	return domain.BookUpdate{
		Exchange:  Name,
		Symbol:    assetFromPair(tm.Data.Symbol),
		Type:      upType,
		Bids:      bids,
		Asks:      asks,
		Sequence:  tm.Data.UpdateID,
		Timestamp: ts,
	}, true, nil
}
