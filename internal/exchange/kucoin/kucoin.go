// Package kucoin implements the KuCoin REST order-book adapter using the
// public level2 part-book endpoint.
package kucoin

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
const Name = "kucoin"

const defaultBaseURL = "https://api.kucoin.com"

// Client polls the level2_20 or level2_100 part book.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
}

// NewClient creates a REST client. depth must be 20 or 100; anything else
// falls back to 20.
func NewClient(baseURL string, depth int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if depth != 100 {
		depth = 20
	}
	return &Client{
		baseURL:    baseURL,
		depth:      depth,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string { return Name }

// Pair maps a canonical asset symbol to KuCoin's notation, e.g. "BTC-USDT".
func Pair(asset string) string {
	return strings.ToUpper(asset) + "-USDT"
}

// partBookResponse is the level2 part-book envelope. "200000" is KuCoin's
// success code.
type partBookResponse struct {
	Code string       `json:"code"`
	Data partBookData `json:"data"`
}

type partBookData struct {
	Sequence json.Number `json:"sequence"`
	Time     int64       `json:"time"`
	Bids     [][2]string `json:"bids"`
	Asks     [][2]string `json:"asks"`
}

// FetchSnapshot requests the current part book for the asset.
func (c *Client) FetchSnapshot(ctx context.Context, asset string) (domain.BookUpdate, error) {
	u := fmt.Sprintf("%s/api/v1/market/orderbook/level2_%d?symbol=%s",
		c.baseURL, c.depth, url.QueryEscape(Pair(asset)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: fetch orderbook %s: %w", asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: read orderbook %s: %w", asset, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: orderbook %s: unexpected status %d", asset, resp.StatusCode)
	}

	return parsePartBook(asset, body)
}

// parsePartBook normalizes a level2 part-book response into a snapshot update.
func parsePartBook(asset string, body []byte) (domain.BookUpdate, error) {
	var pr partBookResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: decode orderbook %s: %w", asset, exchange.ErrMalformedPayload)
	}
	if pr.Code != "" && pr.Code != "200000" {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: orderbook %s: api error %s", asset, pr.Code)
	}

	bids, err := parseLevels(pr.Data.Bids)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: orderbook %s bids: %w", asset, err)
	}
	asks, err := parseLevels(pr.Data.Asks)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("kucoin: orderbook %s asks: %w", asset, err)
	}

	seq, _ := pr.Data.Sequence.Int64()

	ts := time.Now()
	if pr.Data.Time > 0 {
		ts = time.UnixMilli(pr.Data.Time)
	}

	return domain.BookUpdate{
		Exchange:  Name,
		Symbol:    strings.ToUpper(asset),
		Type:      domain.UpdateSnapshot,
		Bids:      bids,
		Asks:      asks,
		Sequence:  seq,
		Timestamp: ts,
	}, nil
}

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
