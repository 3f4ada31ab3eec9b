package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossfeed/arbiscan/internal/domain"
)

// BookSink implements domain.BookSink by upserting the full book state per
// (exchange, symbol) pair, mirroring the one-row-per-book collection layout.
type BookSink struct {
	pool *pgxpool.Pool
}

// NewBookSink creates a BookSink backed by the given connection pool.
func NewBookSink(pool *pgxpool.Pool) *BookSink {
	return &BookSink{pool: pool}
}

// levelRow is the JSON shape stored for each price level.
type levelRow struct {
	Price    string `json:"price"`
	Quantity string `json:"qty"`
}

func encodeSide(side domain.BookSide) ([]byte, error) {
	rows := make([]levelRow, 0, len(side))
	for _, lvl := range side {
		rows = append(rows, levelRow{Price: lvl.Price.String(), Quantity: lvl.Quantity.String()})
	}
	return json.Marshal(rows)
}

// Persist upserts the current book state. The previous row for the pair is
// replaced wholesale; repeated persists never accumulate levels.
func (s *BookSink) Persist(ctx context.Context, book domain.OrderBook) error {
	bids, err := encodeSide(book.Bids)
	if err != nil {
		return fmt.Errorf("postgres: encode bids %s/%s: %w", book.Exchange, book.Symbol, err)
	}
	asks, err := encodeSide(book.Asks)
	if err != nil {
		return fmt.Errorf("postgres: encode asks %s/%s: %w", book.Exchange, book.Symbol, err)
	}

	const query = `
		INSERT INTO order_books (exchange, symbol, bids, asks, sequence, crossed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (exchange, symbol) DO UPDATE SET
			bids       = EXCLUDED.bids,
			asks       = EXCLUDED.asks,
			sequence   = EXCLUDED.sequence,
			crossed    = EXCLUDED.crossed,
			updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		book.Exchange, book.Symbol, bids, asks, book.Sequence, book.Crossed, book.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert book %s/%s: %w", book.Exchange, book.Symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BookSink = (*BookSink)(nil)
