// Package main runs one resumable crawl over the venue catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/browse"
	"github.com/roomscout/listing-corpus/internal/catalog"
	"github.com/roomscout/listing-corpus/internal/config"
	"github.com/roomscout/listing-corpus/internal/crawler"
	"github.com/roomscout/listing-corpus/internal/logging"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/state"
	"github.com/roomscout/listing-corpus/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "crawler: %v\n", err)
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

	checkpoints := state.NewFileStore(cfg.Crawl.StatePath)
	if err := checkpoints.Acquire(); err != nil {
		return fmt.Errorf("another crawl holds the state lock: %w", err)
	}
	defer func() {
		if err := checkpoints.Release(); err != nil {
			logger.Warn("release state lock", zap.Error(err))
		}
	}()

	session, err := browse.NewChromeSession(browse.Config{
		BaseURL:           cfg.Crawl.BaseURL,
		UserAgent:         cfg.Crawl.UserAgent,
		Wait:              cfg.Wait(),
		NavigationTimeout: cfg.NavTimeout(),
	}, logger.Named("browse"))
	if err != nil {
		return fmt.Errorf("start browsing session: %w", err)
	}
	defer session.Close()

	cat := catalog.Default(cfg.Crawl.ExcludedRegions, cfg.Crawl.ExcludedSubRegions)

	engine, err := crawler.New(crawler.Config{
		NavMaxAttempts: cfg.Crawl.NavMaxAttempts,
		RetryWait:      cfg.Wait(),
	}, session, store, deadLetters, cat, checkpoints, logger.Named("crawler"))
	if err != nil {
		return err
	}

	report, err := engine.Run(ctx)
	logger.Info("crawl finished",
		zap.Int("stored", report.CardsStored),
		zap.Int("skipped", report.CardsSkipped),
		zap.Int("failed", report.CardsFailed),
		zap.Strings("skipped_regions", report.SkippedRegions),
		zap.Strings("skipped_sub_regions", report.SkippedSubs))
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}
