// Package kraken implements the Kraken order-book adapters: a REST depth
// poller and a v2 WebSocket book stream.
package kraken

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
const Name = "kraken"

const defaultBaseURL = "https://api.kraken.com"

// Client polls the public Depth endpoint for full order-book snapshots.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
}

// NewClient creates a REST client. baseURL falls back to the public API when
// empty; depth is the number of levels per side to request.
func NewClient(baseURL string, depth int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if depth <= 0 {
		depth = 25
	}
	return &Client{
		baseURL:    baseURL,
		depth:      depth,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string { return Name }

// RestPair maps a canonical asset symbol to Kraken's REST pair code. BTC is
// special-cased to the legacy XXBTZUSD code; everything else is {SYM}USD.
func RestPair(asset string) string {
	asset = strings.ToUpper(asset)
	if asset == "BTC" {
		return "XXBTZUSD"
	}
	return asset + "USD"
}

// depthResponse is the Depth endpoint envelope. The result is keyed by a
// pair code that does not always match the requested one, so it stays a map.
type depthResponse struct {
	Error  []string                  `json:"error"`
	Result map[string]depthOrderBook `json:"result"`
}

type depthOrderBook struct {
	Asks [][]json.RawMessage `json:"asks"`
	Bids [][]json.RawMessage `json:"bids"`
}

// FetchSnapshot requests the current depth for the asset and normalizes it
// into a snapshot update.
func (c *Client) FetchSnapshot(ctx context.Context, asset string) (domain.BookUpdate, error) {
	u := fmt.Sprintf("%s/0/public/Depth?pair=%s&count=%d", c.baseURL, url.QueryEscape(RestPair(asset)), c.depth)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kraken: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kraken: fetch depth %s: %w", asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kraken: read depth %s: %w", asset, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BookUpdate{}, fmt.Errorf("kraken: depth %s: unexpected status %d", asset, resp.StatusCode)
	}

	return parseDepth(asset, body)
}

// parseDepth normalizes a Depth response body into a snapshot update.
func parseDepth(asset string, body []byte) (domain.BookUpdate, error) {
	var dr depthResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kraken: decode depth %s: %w", asset, exchange.ErrMalformedPayload)
	}
	if len(dr.Error) > 0 {
		return domain.BookUpdate{}, fmt.Errorf("kraken: depth %s: api error: %s", asset, strings.Join(dr.Error, ", "))
	}

	// The result holds exactly one book under a venue-chosen pair key.
	var ob depthOrderBook
	found := false
	for _, v := range dr.Result {
		ob = v
		found = true
		break
	}
	if !found {
		return domain.BookUpdate{}, fmt.Errorf("kraken: depth %s: empty result: %w", asset, exchange.ErrMalformedPayload)
	}

	bids, err := parseLevels(ob.Bids)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kraken: depth %s bids: %w", asset, err)
	}
	asks, err := parseLevels(ob.Asks)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kraken: depth %s asks: %w", asset, err)
	}

	return domain.BookUpdate{
		Exchange:  Name,
		Symbol:    strings.ToUpper(asset),
		Type:      domain.UpdateSnapshot,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now(),
	}, nil
}

// parseLevels converts Kraken's [price, volume, ts] string tuples.
func parseLevels(rows [][]json.RawMessage) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, exchange.ErrMalformedPayload
		}
		var priceStr, qtyStr string
		if err := json.Unmarshal(row[0], &priceStr); err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		if err := json.Unmarshal(row[1], &qtyStr); err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
