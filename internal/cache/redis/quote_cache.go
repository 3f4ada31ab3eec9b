package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/crossfeed/arbiscan/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each pair's top
// of book lives at "quote:{exchange}:{symbol}" with fields "bid", "ask", and
// "ts" (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A non-zero
// ttl expires stale quotes so a dead venue drops out of scans.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(exchange, symbol string) string {
	return "quote:" + exchange + ":" + symbol
}

// SetQuote stores the latest best bid/ask for a pair.
func (qc *QuoteCache) SetQuote(ctx context.Context, exchange, symbol string, bid, ask decimal.Decimal, ts time.Time) error {
	key := quoteKey(exchange, symbol)
	fields := map[string]interface{}{
		"bid": bid.String(),
		"ask": ask.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", exchange, symbol, err)
	}
	if qc.ttl > 0 {
		if err := qc.rdb.Expire(ctx, key, qc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire quote %s/%s: %w", exchange, symbol, err)
		}
	}
	return nil
}

// GetQuote retrieves the latest quote for a pair. It returns
// domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, exchange, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(exchange, symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", exchange, symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := quoteFromFields(exchange, symbol, vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote %s/%s: %w", exchange, symbol, err)
	}
	return q, nil
}

// GetQuotes retrieves the latest quotes for the given exchanges using a
// pipeline, preserving input order. Exchanges without a cached quote are
// omitted.
func (qc *QuoteCache) GetQuotes(ctx context.Context, exchanges []string, symbol string) ([]domain.Quote, error) {
	if len(exchanges) == 0 {
		return nil, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(exchanges))
	for i, ex := range exchanges {
		cmds[i] = pipe.HGetAll(ctx, quoteKey(ex, symbol))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(exchanges))
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := quoteFromFields(exchanges[i], symbol, vals)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func quoteFromFields(exchange, symbol string, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Exchange: exchange, Symbol: symbol}

	bidStr, okBid := vals["bid"]
	askStr, okAsk := vals["ask"]
	if !okBid || !okAsk {
		return domain.Quote{}, domain.ErrNotFound
	}

	bid, err := decimal.NewFromString(bidStr)
	if err != nil {
		return domain.Quote{}, err
	}
	ask, err := decimal.NewFromString(askStr)
	if err != nil {
		return domain.Quote{}, err
	}
	q.BestBid = &bid
	q.BestAsk = &ask

	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			q.AsOf = time.Unix(0, tsNano)
		}
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
