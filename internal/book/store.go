// Package book maintains the in-memory order books, one per
// (exchange, symbol) pair, and reconciles snapshot and delta updates into a
// consistent view of each venue's top of book.
package book

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/crossfeed/arbiscan/internal/domain"
)

// persistTimeout bounds the fire-and-forget sink call per applied update.
const persistTimeout = 10 * time.Second

type bookKey struct {
	exchange string
	symbol   string
}

// Store holds the live books. Mutation is exclusive per store; reads copy the
// top of book out under a read lock so scans never hold the lock while
// comparing.
type Store struct {
	mu    sync.RWMutex
	books map[bookKey]*domain.OrderBook

	sink   domain.BookSink
	cache  domain.QuoteCache
	logger *slog.Logger

	// persistWG tracks in-flight sink calls so Close can drain them.
	persistWG sync.WaitGroup
}

// Option configures optional collaborators on a Store.
type Option func(*Store)

// WithSink attaches a persistence sink invoked after every successful merge.
func WithSink(sink domain.BookSink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithQuoteCache attaches a quote cache refreshed after every successful merge.
func WithQuoteCache(cache domain.QuoteCache) Option {
	return func(s *Store) { s.cache = cache }
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		books:  make(map[bookKey]*domain.OrderBook),
		logger: logger.With(slog.String("component", "book_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply merges one normalized update into the stored book for its
// (exchange, symbol) pair, creating the book on first snapshot.
//
// Snapshots replace both sides wholesale and are idempotent. Deltas remove a
// level on zero quantity and insert or overwrite it otherwise; untouched
// levels persist. Both sides stay sorted (bids descending, asks ascending)
// and unique by price.
//
// An update older than the stored book returns domain.ErrOutOfOrder and
// changes nothing. A merge that leaves best bid >= best ask returns
// domain.ErrCrossedBook but the merged state is retained. On any retained
// merge the sink and quote cache are updated asynchronously; their failures
// are logged only.
func (s *Store) Apply(ctx context.Context, up domain.BookUpdate) error {
	if up.Exchange == "" || up.Symbol == "" {
		return fmt.Errorf("book: apply: missing exchange or symbol")
	}

	s.mu.Lock()
	key := bookKey{exchange: up.Exchange, symbol: up.Symbol}
	b, ok := s.books[key]
	if !ok {
		b = &domain.OrderBook{Exchange: up.Exchange, Symbol: up.Symbol}
		s.books[key] = b
	}

	switch up.Type {
	case domain.UpdateSnapshot:
		// Snapshots define a new epoch: they replace wholesale even when the
		// venue reset its sequence numbering after a reconnect.
		b.Bids = normalizeSide(up.Bids, true)
		b.Asks = normalizeSide(up.Asks, false)
		b.Sequence = up.Sequence
	case domain.UpdateDelta:
		if stale(b, up) {
			s.mu.Unlock()
			return fmt.Errorf("book: apply %s/%s seq %d: %w", up.Exchange, up.Symbol, up.Sequence, domain.ErrOutOfOrder)
		}
		b.Bids = mergeSide(b.Bids, up.Bids, true)
		b.Asks = mergeSide(b.Asks, up.Asks, false)
		if up.Sequence > 0 {
			b.Sequence = up.Sequence
		}
	default:
		s.mu.Unlock()
		return fmt.Errorf("book: apply %s/%s: unknown update type %q", up.Exchange, up.Symbol, up.Type)
	}

	if !up.Timestamp.IsZero() {
		b.LastUpdate = up.Timestamp
	} else {
		b.LastUpdate = time.Now()
	}

	b.Crossed = isCrossed(b)
	snapshot := copyBook(b)
	s.mu.Unlock()

	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()
		s.propagate(snapshot)
	}()

	if snapshot.Crossed {
		return fmt.Errorf("book: apply %s/%s: %w", up.Exchange, up.Symbol, domain.ErrCrossedBook)
	}
	return nil
}

// Quote returns a copy of the current top of book for the pair, or
// domain.ErrNotFound if no snapshot has arrived yet. Empty sides come back as
// nil prices, never zero.
func (s *Store) Quote(exchange, symbol string) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[bookKey{exchange: exchange, symbol: symbol}]
	if !ok {
		return domain.Quote{}, fmt.Errorf("book: quote %s/%s: %w", exchange, symbol, domain.ErrNotFound)
	}

	q := domain.Quote{Exchange: exchange, Symbol: symbol, AsOf: b.LastUpdate}
	if best, ok := b.Bids.Best(); ok {
		p := best.Price
		q.BestBid = &p
	}
	if best, ok := b.Asks.Best(); ok {
		p := best.Price
		q.BestAsk = &p
	}
	return q, nil
}

// Snapshot returns a deep copy of the stored book for the pair.
func (s *Store) Snapshot(exchange, symbol string) (domain.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[bookKey{exchange: exchange, symbol: symbol}]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("book: snapshot %s/%s: %w", exchange, symbol, domain.ErrNotFound)
	}
	return copyBook(b), nil
}

// Close waits for in-flight sink calls to finish.
func (s *Store) Close() {
	s.persistWG.Wait()
}

func (s *Store) propagate(b domain.OrderBook) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if s.sink != nil {
		if err := s.sink.Persist(ctx, b); err != nil {
			s.logger.Warn("persist failed",
				slog.String("exchange", b.Exchange),
				slog.String("symbol", b.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.cache != nil {
		bid, okBid := b.Bids.Best()
		ask, okAsk := b.Asks.Best()
		if okBid && okAsk {
			if err := s.cache.SetQuote(ctx, b.Exchange, b.Symbol, bid.Price, ask.Price, b.LastUpdate); err != nil {
				s.logger.Warn("quote cache update failed",
					slog.String("exchange", b.Exchange),
					slog.String("symbol", b.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// stale reports whether the update precedes the stored book. Sequence wins
// when both carry one; a re-applied equal sequence is allowed so snapshots
// stay idempotent. Without sequences the feed timestamp decides.
func stale(b *domain.OrderBook, up domain.BookUpdate) bool {
	if up.Sequence > 0 && b.Sequence > 0 {
		return up.Sequence < b.Sequence
	}
	if !up.Timestamp.IsZero() && !b.LastUpdate.IsZero() {
		return up.Timestamp.Before(b.LastUpdate)
	}
	return false
}

func isCrossed(b *domain.OrderBook) bool {
	bid, okBid := b.Bids.Best()
	ask, okAsk := b.Asks.Best()
	return okBid && okAsk && bid.Price.Cmp(ask.Price) >= 0
}

// normalizeSide sorts the levels, drops zero-quantity entries, and collapses
// duplicate prices keeping the last occurrence.
func normalizeSide(levels []domain.PriceLevel, bids bool) domain.BookSide {
	byPrice := make(map[string]domain.PriceLevel, len(levels))
	for _, lvl := range levels {
		if lvl.Quantity.IsZero() {
			continue
		}
		// Decimal values that compare equal can carry different exponents
		// ("100" vs "100.00"); String() canonicalizes them to one key.
		byPrice[lvl.Price.String()] = lvl
	}
	return sortSide(byPrice, bids)
}

// mergeSide applies delta changes to an existing side: zero quantity removes
// the price, anything else inserts or overwrites it. Repeated changes for the
// same price overwrite rather than accumulate.
func mergeSide(side domain.BookSide, changes []domain.PriceLevel, bids bool) domain.BookSide {
	if len(changes) == 0 {
		return side
	}
	byPrice := make(map[string]domain.PriceLevel, len(side)+len(changes))
	for _, lvl := range side {
		byPrice[lvl.Price.String()] = lvl
	}
	for _, ch := range changes {
		key := ch.Price.String()
		if ch.Quantity.IsZero() {
			delete(byPrice, key)
			continue
		}
		byPrice[key] = ch
	}
	return sortSide(byPrice, bids)
}

func sortSide(byPrice map[string]domain.PriceLevel, bids bool) domain.BookSide {
	out := make(domain.BookSide, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, lvl)
	}
	slices.SortFunc(out, func(a, b domain.PriceLevel) int {
		if bids {
			return b.Price.Cmp(a.Price)
		}
		return a.Price.Cmp(b.Price)
	})
	return out
}

func copyBook(b *domain.OrderBook) domain.OrderBook {
	out := *b
	out.Bids = slices.Clone(b.Bids)
	out.Asks = slices.Clone(b.Asks)
	return out
}
