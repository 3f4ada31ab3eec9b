// Command arbiscan watches order books across cryptocurrency exchanges and
// reports cross-exchange arbitrage opportunities. It loads configuration,
// takes the assets to track as positional arguments, sets up signal handling,
// and runs the scan pipeline until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/crossfeed/arbiscan/internal/app"
	"github.com/crossfeed/arbiscan/internal/config"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] SYMBOL [SYMBOL...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Example: %s BTC ETH LTC\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override configured mode (poll, stream, full)")
	flag.Usage = usage
	flag.Parse()

	assets := make([]string, 0, flag.NArg())
	for _, arg := range flag.Args() {
		assets = append(assets, strings.ToUpper(strings.TrimSpace(arg)))
	}
	if len(assets) == 0 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("arbiscan starting",
		slog.String("mode", cfg.Mode),
		slog.Any("assets", assets),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, assets); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("arbiscan stopped")
}
