package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BookSink persists the full current state of a book after a successful
// merge. Persist failures are logged by the caller, never propagated; the
// in-memory book is the source of truth.
type BookSink interface {
	Persist(ctx context.Context, book OrderBook) error
}

// OpportunityStore records detected arbitrage opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// QuoteCache shares the latest top-of-book per (exchange, symbol) so scan
// cycles can use quotes from venues fed over a different transport or by
// another process.
type QuoteCache interface {
	SetQuote(ctx context.Context, exchange, symbol string, bid, ask decimal.Decimal, ts time.Time) error
	GetQuote(ctx context.Context, exchange, symbol string) (Quote, error)
	GetQuotes(ctx context.Context, exchanges []string, symbol string) ([]Quote, error)
}
