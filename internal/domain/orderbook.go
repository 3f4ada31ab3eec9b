// Package domain defines the core types and collaborator interfaces shared by
// the arbiscan components: order books, book updates, quotes, and detected
// opportunities.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+quantity entry on one side of an order book.
// A Quantity of zero inside a delta update means "remove this price level".
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BookSide is an ordered sequence of price levels, unique by price. Bids are
// kept sorted descending, asks ascending; the best level is always index 0.
type BookSide []PriceLevel

// Best returns the level at the top of the side, or false when the side is
// empty.
func (s BookSide) Best() (PriceLevel, bool) {
	if len(s) == 0 {
		return PriceLevel{}, false
	}
	return s[0], true
}

// OrderBook is the current in-memory book for one (exchange, symbol) pair.
type OrderBook struct {
	Exchange   string
	Symbol     string
	Bids       BookSide
	Asks       BookSide
	Sequence   int64
	LastUpdate time.Time
	// Crossed is set when the last applied update left best bid >= best ask.
	// The merged state is retained anyway; crossed books can be transient.
	Crossed bool
}

// UpdateType distinguishes full snapshots from incremental deltas.
type UpdateType string

const (
	UpdateSnapshot UpdateType = "snapshot"
	UpdateDelta    UpdateType = "delta"
)

// BookUpdate is a normalized order-book message from one exchange feed.
// Symbol is the canonical asset symbol (e.g. "BTC"), not the venue pair.
type BookUpdate struct {
	Exchange  string
	Symbol    string
	Type      UpdateType
	Bids      []PriceLevel
	Asks      []PriceLevel
	Sequence  int64
	Timestamp time.Time
}

// Quote is the minimal top-of-book projection the scanner works with. A nil
// BestBid or BestAsk marks that side as missing (empty book or failed fetch);
// missing is never treated as zero.
type Quote struct {
	Exchange string
	Symbol   string
	BestBid  *decimal.Decimal
	BestAsk  *decimal.Decimal
	AsOf     time.Time
}

// Complete reports whether both sides of the quote are present.
func (q Quote) Complete() bool {
	return q.BestBid != nil && q.BestAsk != nil
}
