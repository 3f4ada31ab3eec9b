// Package app provides the top-level application lifecycle for arbiscan. It
// wires collaborators, builds the exchange feeds for the configured mode, and
// runs the scan scheduler until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crossfeed/arbiscan/internal/arbitrage"
	"github.com/crossfeed/arbiscan/internal/book"
	"github.com/crossfeed/arbiscan/internal/config"
	"github.com/crossfeed/arbiscan/internal/exchange"
	"github.com/crossfeed/arbiscan/internal/exchange/bibox"
	"github.com/crossfeed/arbiscan/internal/exchange/bybit"
	"github.com/crossfeed/arbiscan/internal/exchange/kraken"
	"github.com/crossfeed/arbiscan/internal/exchange/kucoin"
	"github.com/crossfeed/arbiscan/internal/scheduler"
)

// App is the root application object. It owns the configuration, logger, and
// cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, builds the feeds for the configured mode, and
// blocks on the scheduler until ctx is cancelled.
//
// Modes: "poll" drives every enabled venue over REST on the scan interval;
// "stream" drives only the stream-capable venues over WebSocket; "full" does
// both, streaming where a venue supports it and polling the rest.
func (a *App) Run(ctx context.Context, assets []string) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.Any("assets", assets),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	fetchers, streamers, err := a.buildFeeds(mode)
	if err != nil {
		return err
	}

	var storeOpts []book.Option
	if deps.BookSink != nil {
		storeOpts = append(storeOpts, book.WithSink(deps.BookSink))
	}
	if deps.QuoteCache != nil {
		storeOpts = append(storeOpts, book.WithQuoteCache(deps.QuoteCache))
	}
	store := book.NewStore(a.logger, storeOpts...)
	a.closers = append(a.closers, store.Close)

	scanner := arbitrage.NewScanner(decimal.NewFromFloat(a.cfg.Scan.MinProfitPct))

	var schedOpts []scheduler.Option
	if deps.OppStore != nil {
		schedOpts = append(schedOpts, scheduler.WithOpportunityStore(deps.OppStore))
	}
	if deps.QuoteCache != nil {
		schedOpts = append(schedOpts, scheduler.WithQuoteCache(deps.QuoteCache))
	}
	if deps.Notifier != nil {
		schedOpts = append(schedOpts, scheduler.WithNotifier(deps.Notifier))
	}

	sched := scheduler.New(
		scheduler.Config{
			Assets:       assets,
			Interval:     a.cfg.Scan.Interval(),
			FetchTimeout: a.cfg.Scan.FetchTimeout(),
			BufferSize:   a.cfg.Scan.BufferSize,
		},
		store,
		scanner,
		fetchers,
		streamers,
		a.logger,
		schedOpts...,
	)

	return sched.Run(ctx)
}

// buildFeeds assembles the venue adapters for the given mode.
func (a *App) buildFeeds(mode string) ([]exchange.SnapshotFetcher, []exchange.Streamer, error) {
	ex := a.cfg.Exchanges
	var fetchers []exchange.SnapshotFetcher
	var streamers []exchange.Streamer

	wantPoll := mode == "poll" || mode == "full"
	wantStream := mode == "stream" || mode == "full"

	if ex.Kraken.Enabled {
		if wantStream && ex.Kraken.Stream {
			streamers = append(streamers, kraken.NewWSFeed(ex.Kraken.WsURL, ex.Kraken.Depth, a.logger))
		} else if wantPoll {
			fetchers = append(fetchers, kraken.NewClient(ex.Kraken.RestURL, ex.Kraken.Depth))
		}
	}
	if ex.Bybit.Enabled {
		if wantStream && ex.Bybit.Stream {
			streamers = append(streamers, bybit.NewWSFeed(ex.Bybit.WsURL, ex.Bybit.Depth, a.logger))
		} else if wantPoll {
			fetchers = append(fetchers, bybit.NewClient(ex.Bybit.RestURL, ex.Bybit.Category, ex.Bybit.Depth))
		}
	}
	if ex.Kucoin.Enabled && wantPoll {
		fetchers = append(fetchers, kucoin.NewClient(ex.Kucoin.RestURL, ex.Kucoin.Depth))
	}
	if ex.Bibox.Enabled && wantPoll {
		fetchers = append(fetchers, bibox.NewClient(ex.Bibox.RestURL))
	}

	if len(fetchers) == 0 && len(streamers) == 0 {
		return nil, nil, fmt.Errorf("app: mode %q leaves no exchange feeds enabled", mode)
	}
	return fetchers, streamers, nil
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
