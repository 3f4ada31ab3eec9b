// Package exchange defines the capability interfaces every venue adapter
// implements. Each adapter owns its symbol mapping and payload normalization;
// nothing outside its package ever sees a venue-specific wire shape.
package exchange

import (
	"context"
	"errors"

	"github.com/crossfeed/arbiscan/internal/domain"
)

// ErrMalformedPayload marks a venue response that could not be normalized.
// Callers treat it like any other fetch failure: the venue's quote degrades
// to missing for the cycle.
var ErrMalformedPayload = errors.New("malformed exchange payload")

// SnapshotFetcher is a REST-polled order-book source. FetchSnapshot returns a
// full snapshot update for the canonical asset symbol (e.g. "BTC").
type SnapshotFetcher interface {
	Name() string
	FetchSnapshot(ctx context.Context, asset string) (domain.BookUpdate, error)
}

// Streamer is a WebSocket order-book source. Stream subscribes to the given
// assets and pushes normalized updates into out until ctx is cancelled.
// Implementations reconnect internally; a resubscribe after reconnect yields
// a fresh snapshot update, which resets the stored book.
type Streamer interface {
	Name() string
	Stream(ctx context.Context, assets []string, out chan<- domain.BookUpdate) error
}
