// Package bybit implements the Bybit order-book adapters: a v5 REST poller
// and a v5 public spot WebSocket stream. Bybit carries a monotonic update ID
// on both, which becomes the book sequence.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
)

// Name identifies this venue in books, quotes, and logs.
const Name = "bybit"

const defaultBaseURL = "https://api.bybit.com"

// Client polls the v5 market orderbook endpoint.
type Client struct {
	baseURL    string
	category   string
	depth      int
	httpClient *http.Client
}

// NewClient creates a REST client. category is "spot" or "linear"; it
// defaults to spot when empty.
func NewClient(baseURL, category string, depth int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if category == "" {
		category = "spot"
	}
	if depth <= 0 {
		depth = 50
	}
	return &Client{
		baseURL:    baseURL,
		category:   category,
		depth:      depth,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string { return Name }

// Pair maps a canonical asset symbol to Bybit's notation, e.g. "BTCUSDT".
func Pair(asset string) string {
	return strings.ToUpper(asset) + "USDT"
}

// assetFromPair reverses Pair.
func assetFromPair(pair string) string {
	return strings.TrimSuffix(strings.ToUpper(pair), "USDT")
}

// orderbookResponse is the v5 REST envelope.
type orderbookResponse struct {
	RetCode int            `json:"retCode"`
	RetMsg  string         `json:"retMsg"`
	Result  orderbookLevel `json:"result"`
}

type orderbookLevel struct {
	Symbol   string      `json:"s"`
	Asks     [][2]string `json:"a"`
	Bids     [][2]string `json:"b"`
	UpdateID int64       `json:"u"`
	Ts       int64       `json:"ts"`
}

// FetchSnapshot requests the current book for the asset.
func (c *Client) FetchSnapshot(ctx context.Context, asset string) (domain.BookUpdate, error) {
	u := fmt.Sprintf("%s/v5/market/orderbook?category=%s&symbol=%s&limit=%d",
		c.baseURL, url.QueryEscape(c.category), url.QueryEscape(Pair(asset)), c.depth)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bybit: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bybit: fetch orderbook %s: %w", asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bybit: read orderbook %s: %w", asset, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BookUpdate{}, fmt.Errorf("bybit: orderbook %s: unexpected status %d", asset, resp.StatusCode)
	}

	return parseOrderbook(asset, body)
}

// parseOrderbook normalizes a v5 REST response into a snapshot update.
func parseOrderbook(asset string, body []byte) (domain.BookUpdate, error) {
	var or orderbookResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bybit: decode orderbook %s: %w", asset, exchange.ErrMalformedPayload)
	}
	if or.RetCode != 0 {
		return domain.BookUpdate{}, fmt.Errorf("bybit: orderbook %s: api error %d: %s", asset, or.RetCode, or.RetMsg)
	}

	bids, err := parseLevels(or.Result.Bids)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bybit: orderbook %s bids: %w", asset, err)
	}
	asks, err := parseLevels(or.Result.Asks)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bybit: orderbook %s asks: %w", asset, err)
	}

	ts := time.Now()
	if or.Result.Ts > 0 {
		ts = time.UnixMilli(or.Result.Ts)
	}

	return domain.BookUpdate{
		Exchange:  Name,
		Symbol:    strings.ToUpper(asset),
		Type:      domain.UpdateSnapshot,
		Bids:      bids,
		Asks:      asks,
		Sequence:  or.Result.UpdateID,
		Timestamp: ts,
	}, nil
}

// parseLevels converts [price, qty] string pairs.
func parseLevels(rows [][2]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		qty, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
