// Package bibox implements the Bibox REST order-book adapter using the v4
// marketdata endpoint. Bibox reports levels as {price, volume} objects rather
// than tuples.
package bibox

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
const Name = "bibox"

const defaultBaseURL = "https://api.bibox.com"

// Client polls the v4 order_book endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string { return Name }

// Pair maps a canonical asset symbol to Bibox's notation, e.g. "BTC_USDT".
func Pair(asset string) string {
	return strings.ToUpper(asset) + "_USDT"
}

type orderBookResponse struct {
	Result orderBookResult `json:"result"`
}

type orderBookResult struct {
	Asks []bookEntry `json:"asks"`
	Bids []bookEntry `json:"bids"`
}

type bookEntry struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// FetchSnapshot requests the current book for the asset.
func (c *Client) FetchSnapshot(ctx context.Context, asset string) (domain.BookUpdate, error) {
	u := fmt.Sprintf("%s/api/v4/marketdata/order_book?symbol=%s", c.baseURL, url.QueryEscape(Pair(asset)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bibox: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bibox: fetch order book %s: %w", asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bibox: read order book %s: %w", asset, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BookUpdate{}, fmt.Errorf("bibox: order book %s: unexpected status %d", asset, resp.StatusCode)
	}

	return parseOrderBook(asset, body)
}

// parseOrderBook normalizes a v4 order_book response into a snapshot update.
func parseOrderBook(asset string, body []byte) (domain.BookUpdate, error) {
	var or orderBookResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bibox: decode order book %s: %w", asset, exchange.ErrMalformedPayload)
	}

	bids, err := parseLevels(or.Result.Bids)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bibox: order book %s bids: %w", asset, err)
	}
	asks, err := parseLevels(or.Result.Asks)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("bibox: order book %s asks: %w", asset, err)
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

func parseLevels(rows []bookEntry) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		qty, err := decimal.NewFromString(row.Volume)
		if err != nil {
			return nil, exchange.ErrMalformedPayload
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
