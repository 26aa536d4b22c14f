// Package main drains the dead-letter log, replaying each recorded failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/config"
	"github.com/roomscout/listing-corpus/internal/embed"
	"github.com/roomscout/listing-corpus/internal/logging"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/reprocess"
	"github.com/roomscout/listing-corpus/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reprocess: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewListingStore(ctx, cfg.DB.DSN, cfg.DB.MaxConns, cfg.DB.MinConns)
	if err != nil {
		return err
	}
	defer store.Close()
	deadLetters, err := postgres.NewDeadLetterStore(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer deadLetters.Close()

	// Vectorize replays need a provider; crawl replays do not. Without
	// credentials the worker still drains the crawl stage.
	var provider embed.Provider
	if cfg.RequireProvider() == nil {
		p, err := embed.NewOpenAI(embed.Config{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Provider.Model,
			Timeout: cfg.ProviderTimeout(),
		}, logger.Named("embed"))
		if err != nil {
			return err
		}
		provider = p
	} else {
		logger.Warn("no embedding provider configured; vectorize entries will stay dead")
	}

	worker, err := reprocess.New(reprocess.Config{
		NormMin: cfg.Vectorize.NormMin,
		NormMax: cfg.Vectorize.NormMax,
	}, store, deadLetters, provider, logger.Named("reprocess"))
	if err != nil {
		return err
	}

	summary, err := worker.Run(ctx)
	logger.Info("reprocessing finished",
		zap.Int("crawl_replayed", summary.CrawlReplayed),
		zap.Int("crawl_failed", summary.CrawlFailed),
		zap.Int("vectorize_replayed", summary.VectorizeReplayed),
		zap.Int("vectorize_failed", summary.VectorizeFailed))
	if err != nil {
		return fmt.Errorf("reprocess: %w", err)
	}
	return nil
}
