// Package scheduler drives the scan pipeline: periodic REST polling cycles
// fanned out across exchanges, and event-driven scans triggered by streamed
// book updates.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crossfeed/arbiscan/internal/arbitrage"
	"github.com/crossfeed/arbiscan/internal/book"
	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
	"github.com/crossfeed/arbiscan/internal/notify"
)

// Config holds the scheduler timing knobs.
type Config struct {
	// Assets are the canonical symbols to track, in CLI order.
	Assets []string
	// Interval is the poll cycle period.
	Interval time.Duration
	// FetchTimeout bounds each individual exchange fetch.
	FetchTimeout time.Duration
	// BufferSize is the streamed-update channel capacity between feed
	// receive and store apply.
	BufferSize int
}

// Scheduler owns the poll and event loops. Quotes are always assembled in
// venue registration order (fetchers first, then streamers) so scan output is
// reproducible.
type Scheduler struct {
	cfg       Config
	store     *book.Store
	scanner   *arbitrage.Scanner
	fetchers  []exchange.SnapshotFetcher
	streamers []exchange.Streamer
	venues    []string

	opps     domain.OpportunityStore
	cache    domain.QuoteCache
	notifier *notify.Notifier
	logger   *slog.Logger
}

// Option configures optional collaborators on a Scheduler.
type Option func(*Scheduler)

// WithOpportunityStore records scan hits for later inspection.
func WithOpportunityStore(store domain.OpportunityStore) Option {
	return func(s *Scheduler) { s.opps = store }
}

// WithQuoteCache consults the shared cache for venues whose book has not
// reached this process yet.
func WithQuoteCache(cache domain.QuoteCache) Option {
	return func(s *Scheduler) { s.cache = cache }
}

// WithNotifier announces scan hits to external channels.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// New creates a Scheduler over the given feeds.
func New(
	cfg Config,
	store *book.Store,
	scanner *arbitrage.Scanner,
	fetchers []exchange.SnapshotFetcher,
	streamers []exchange.Streamer,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		store:     store,
		scanner:   scanner,
		fetchers:  fetchers,
		streamers: streamers,
		logger:    logger.With(slog.String("component", "scheduler")),
	}

	seen := make(map[string]bool)
	for _, f := range fetchers {
		if !seen[f.Name()] {
			seen[f.Name()] = true
			s.venues = append(s.venues, f.Name())
		}
	}
	for _, st := range streamers {
		if !seen[st.Name()] {
			seen[st.Name()] = true
			s.venues = append(s.venues, st.Name())
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the poll loop (when fetchers are configured) and the event loop
// (when streamers are). It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.fetchers) == 0 && len(s.streamers) == 0 {
		return fmt.Errorf("scheduler: no exchange feeds configured")
	}

	g, ctx := errgroup.WithContext(ctx)

	if len(s.fetchers) > 0 {
		g.Go(func() error {
			return s.pollLoop(ctx)
		})
	}
	if len(s.streamers) > 0 {
		g.Go(func() error {
			return s.eventLoop(ctx)
		})
	}

	return g.Wait()
}

// pollLoop runs one cycle immediately, then one per interval.
func (s *Scheduler) pollLoop(ctx context.Context) error {
	s.logger.Info("poll loop starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("exchanges", len(s.fetchers)),
		slog.Any("assets", s.cfg.Assets),
	)

	s.pollCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollCycle(ctx)
		}
	}
}

// pollCycle fans out one snapshot fetch per (exchange, asset), waits for all
// of them, then scans each asset with whatever succeeded. A failed fetch
// degrades that exchange's quote to missing for this cycle only.
func (s *Scheduler) pollCycle(ctx context.Context) {
	start := time.Now()
	g, fetchCtx := errgroup.WithContext(ctx)

	for _, asset := range s.cfg.Assets {
		for _, f := range s.fetchers {
			asset, f := asset, f
			g.Go(func() error {
				tctx, cancel := context.WithTimeout(fetchCtx, s.cfg.FetchTimeout)
				defer cancel()

				up, err := f.FetchSnapshot(tctx, asset)
				if err != nil {
					s.logger.Warn("fetch failed, quote degraded for this cycle",
						slog.String("exchange", f.Name()),
						slog.String("asset", asset),
						slog.String("error", err.Error()),
					)
					return nil
				}
				s.applyUpdate(ctx, up)
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, asset := range s.cfg.Assets {
		s.scanAsset(ctx, asset, slog.LevelInfo)
	}

	s.logger.Debug("poll cycle complete", slog.Duration("elapsed", time.Since(start)))
}

// eventLoop fans in streamed updates over a bounded channel, applies each one,
// and rescans the affected asset using the latest known quote from every
// venue. Backpressure on the channel slows the feed readers rather than
// growing memory.
func (s *Scheduler) eventLoop(ctx context.Context) error {
	bufSize := s.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	updates := make(chan domain.BookUpdate, bufSize)

	g, ctx := errgroup.WithContext(ctx)

	for _, st := range s.streamers {
		st := st
		g.Go(func() error {
			err := st.Stream(ctx, s.cfg.Assets, updates)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("scheduler: %s stream: %w", st.Name(), err)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case up := <-updates:
				if s.applyUpdate(ctx, up) {
					s.scanAsset(ctx, up.Symbol, slog.LevelDebug)
				}
			}
		}
	})

	return g.Wait()
}

// applyUpdate merges one update into the store. It reports whether the merged
// state was retained (a crossed book is retained and still worth scanning).
func (s *Scheduler) applyUpdate(ctx context.Context, up domain.BookUpdate) bool {
	err := s.store.Apply(ctx, up)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrCrossedBook):
		s.logger.Warn("crossed book retained",
			slog.String("exchange", up.Exchange),
			slog.String("asset", up.Symbol),
		)
		return true
	case errors.Is(err, domain.ErrOutOfOrder):
		s.logger.Debug("dropping out-of-order update",
			slog.String("exchange", up.Exchange),
			slog.String("asset", up.Symbol),
			slog.Int64("sequence", up.Sequence),
		)
		return false
	default:
		s.logger.Warn("apply failed",
			slog.String("exchange", up.Exchange),
			slog.String("asset", up.Symbol),
			slog.String("error", err.Error()),
		)
		return false
	}
}

// scanAsset assembles quotes in venue order and runs one scan. quietLevel is
// the log level for the empty result: info on poll cycles, debug on the
// per-update event path so streams do not flood the console.
func (s *Scheduler) scanAsset(ctx context.Context, asset string, quietLevel slog.Level) {
	quotes := s.quotesFor(ctx, asset)
	if len(quotes) < 2 {
		s.logger.Log(ctx, quietLevel, "not enough quotes to scan",
			slog.String("asset", asset),
			slog.Int("quotes", len(quotes)),
		)
		return
	}

	opps := s.scanner.Scan(asset, quotes)
	if len(opps) == 0 {
		s.logger.Log(ctx, quietLevel, "no arbitrage opportunities found",
			slog.String("asset", asset),
			slog.Int("quotes", len(quotes)),
		)
		return
	}

	for _, opp := range opps {
		opp.ID = uuid.NewString()
		opp.DetectedAt = time.Now()

		s.logger.Info("arbitrage opportunity",
			slog.String("asset", opp.Asset),
			slog.String("buy_exchange", opp.BuyExchange),
			slog.String("buy_price", opp.BuyPrice.String()),
			slog.String("sell_exchange", opp.SellExchange),
			slog.String("sell_price", opp.SellPrice.String()),
			slog.String("profit_pct", opp.ProfitPct.StringFixed(4)),
		)

		if s.opps != nil {
			if err := s.opps.Insert(ctx, opp); err != nil {
				s.logger.Warn("record opportunity failed",
					slog.String("id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.notifier != nil {
			s.notifier.Announce(ctx, opp)
		}
	}
}

// quotesFor collects the freshest quote per venue, falling back to the shared
// cache for venues this process has no book for. Venues with nothing known
// are simply absent; the scanner never treats missing as zero.
func (s *Scheduler) quotesFor(ctx context.Context, asset string) []domain.Quote {
	quotes := make([]domain.Quote, 0, len(s.venues))
	for _, venue := range s.venues {
		q, err := s.store.Quote(venue, asset)
		if err == nil {
			quotes = append(quotes, q)
			continue
		}
		if s.cache == nil {
			continue
		}
		q, err = s.cache.GetQuote(ctx, venue, asset)
		if err == nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}
