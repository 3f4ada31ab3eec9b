package book

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfeed/arbiscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func snapshotUpdate(seq int64) domain.BookUpdate {
	return domain.BookUpdate{
		Exchange:  "kraken",
		Symbol:    "BTC",
		Type:      domain.UpdateSnapshot,
		Bids:      []domain.PriceLevel{lvl("29990", "1"), lvl("29980", "2"), lvl("29995", "0.5")},
		Asks:      []domain.PriceLevel{lvl("30010", "1"), lvl("30000", "3"), lvl("30020", "2")},
		Sequence:  seq,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// recordingSink captures persisted books; Persist runs on a goroutine so it
// must be safe for concurrent use.
type recordingSink struct {
	mu    sync.Mutex
	books []domain.OrderBook
	err   error
}

func (s *recordingSink) Persist(_ context.Context, book domain.OrderBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append(s.books, book)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.books)
}

func TestApplySnapshotSortsSides(t *testing.T) {
	store := NewStore(testLogger())

	err := store.Apply(context.Background(), snapshotUpdate(10))
	require.NoError(t, err)

	book, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)

	// Bids descending, asks ascending, best at index 0.
	require.Len(t, book.Bids, 3)
	assert.Equal(t, "29995", book.Bids[0].Price.String())
	assert.Equal(t, "29990", book.Bids[1].Price.String())
	assert.Equal(t, "29980", book.Bids[2].Price.String())

	require.Len(t, book.Asks, 3)
	assert.Equal(t, "30000", book.Asks[0].Price.String())
	assert.Equal(t, "30010", book.Asks[1].Price.String())
	assert.Equal(t, "30020", book.Asks[2].Price.String())

	assert.Equal(t, int64(10), book.Sequence)
	assert.False(t, book.Crossed)
}

func TestApplySnapshotIdempotent(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, snapshotUpdate(10)))
	first, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)

	require.NoError(t, store.Apply(ctx, snapshotUpdate(10)))
	second, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestApplySnapshotDropsDuplicatePrices(t *testing.T) {
	store := NewStore(testLogger())

	up := domain.BookUpdate{
		Exchange: "bybit",
		Symbol:   "ETH",
		Type:     domain.UpdateSnapshot,
		Bids:     []domain.PriceLevel{lvl("2000", "1"), lvl("2000.0", "5"), lvl("1999", "2")},
		Asks:     []domain.PriceLevel{lvl("2001", "1")},
	}
	require.NoError(t, store.Apply(context.Background(), up))

	book, err := store.Snapshot("bybit", "ETH")
	require.NoError(t, err)

	// "2000" and "2000.0" are the same price level; the later entry wins.
	require.Len(t, book.Bids, 2)
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("2000")))
	assert.Equal(t, "5", book.Bids[0].Quantity.String())
}

func TestApplyDeltaMerge(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, snapshotUpdate(10)))

	delta := domain.BookUpdate{
		Exchange: "kraken",
		Symbol:   "BTC",
		Type:     domain.UpdateDelta,
		Bids: []domain.PriceLevel{
			lvl("29990", "0"),   // remove existing level
			lvl("29980", "7"),   // overwrite existing quantity
			lvl("29985", "1.5"), // insert new level
			lvl("29970", "0"),   // zero at a price we never had: no-op
		},
		Sequence: 11,
	}
	require.NoError(t, store.Apply(ctx, delta))

	book, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)

	require.Len(t, book.Bids, 3)
	assert.Equal(t, "29995", book.Bids[0].Price.String())
	assert.Equal(t, "29985", book.Bids[1].Price.String())
	assert.Equal(t, "29980", book.Bids[2].Price.String())
	assert.Equal(t, "7", book.Bids[2].Quantity.String())

	// Asks untouched by a bid-only delta.
	require.Len(t, book.Asks, 3)
	assert.Equal(t, "30000", book.Asks[0].Price.String())
}

func TestApplyDeltaRepeatedPriceOverwrites(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, snapshotUpdate(10)))

	for i, qty := range []string{"2", "4", "6"} {
		delta := domain.BookUpdate{
			Exchange: "kraken",
			Symbol:   "BTC",
			Type:     domain.UpdateDelta,
			Bids:     []domain.PriceLevel{lvl("29990", qty)},
			Sequence: int64(11 + i),
		}
		require.NoError(t, store.Apply(ctx, delta))
	}

	book, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)

	// Still one entry at 29990, holding the last quantity. Appending without
	// deduplication would have grown the side on every delta.
	require.Len(t, book.Bids, 3)
	assert.Equal(t, "29995", book.Bids[0].Price.String())
	assert.Equal(t, "6", book.Bids[1].Quantity.String())
}

func TestApplyOutOfOrderDeltaRejected(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, snapshotUpdate(10)))
	before, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)

	stale := domain.BookUpdate{
		Exchange: "kraken",
		Symbol:   "BTC",
		Type:     domain.UpdateDelta,
		Bids:     []domain.PriceLevel{lvl("29995", "0")},
		Sequence: 9,
	}
	err = store.Apply(ctx, stale)
	require.ErrorIs(t, err, domain.ErrOutOfOrder)

	after, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApplySnapshotResetsSequenceEpoch(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, snapshotUpdate(1000)))

	// A reconnect starts a new sequence epoch; the fresh snapshot must still
	// replace the book.
	fresh := snapshotUpdate(1)
	fresh.Bids = []domain.PriceLevel{lvl("29900", "1")}
	fresh.Asks = []domain.PriceLevel{lvl("29910", "1")}
	require.NoError(t, store.Apply(ctx, fresh))

	book, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(1), book.Sequence)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "29900", book.Bids[0].Price.String())
}

func TestApplyCrossedBookRetained(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, snapshotUpdate(10)))

	crossing := domain.BookUpdate{
		Exchange: "kraken",
		Symbol:   "BTC",
		Type:     domain.UpdateDelta,
		Bids:     []domain.PriceLevel{lvl("30005", "1")}, // above best ask 30000
		Sequence: 11,
	}
	err := store.Apply(ctx, crossing)
	require.ErrorIs(t, err, domain.ErrCrossedBook)

	// Merged state kept, flagged as crossed.
	book, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)
	assert.True(t, book.Crossed)
	assert.Equal(t, "30005", book.Bids[0].Price.String())

	// A later delta uncrossing the book clears the flag.
	uncross := domain.BookUpdate{
		Exchange: "kraken",
		Symbol:   "BTC",
		Type:     domain.UpdateDelta,
		Bids:     []domain.PriceLevel{lvl("30005", "0")},
		Sequence: 12,
	}
	require.NoError(t, store.Apply(ctx, uncross))

	book, err = store.Snapshot("kraken", "BTC")
	require.NoError(t, err)
	assert.False(t, book.Crossed)
}

func TestQuoteReportsMissingSides(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	_, err := store.Quote("kraken", "BTC")
	require.ErrorIs(t, err, domain.ErrNotFound)

	up := snapshotUpdate(10)
	up.Asks = nil
	require.NoError(t, store.Apply(ctx, up))

	q, err := store.Quote("kraken", "BTC")
	require.NoError(t, err)
	require.NotNil(t, q.BestBid)
	assert.Equal(t, "29995", q.BestBid.String())
	assert.Nil(t, q.BestAsk)
	assert.False(t, q.Complete())
}

func TestSinkInvokedOnApply(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(testLogger(), WithSink(sink))

	require.NoError(t, store.Apply(context.Background(), snapshotUpdate(10)))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	persisted := sink.books[0]
	sink.mu.Unlock()
	assert.Equal(t, "kraken", persisted.Exchange)
	assert.Equal(t, "BTC", persisted.Symbol)
	require.Len(t, persisted.Bids, 3)
}

func TestSinkFailureDoesNotAffectApply(t *testing.T) {
	sink := &recordingSink{err: context.DeadlineExceeded}
	store := NewStore(testLogger(), WithSink(sink))

	require.NoError(t, store.Apply(context.Background(), snapshotUpdate(10)))
	store.Close()

	// In-memory state is authoritative regardless of the sink outcome.
	book, err := store.Snapshot("kraken", "BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(10), book.Sequence)
}
