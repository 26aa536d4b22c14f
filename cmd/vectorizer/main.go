// Package main embeds every listing whose vector is still missing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/config"
	"github.com/roomscout/listing-corpus/internal/embed"
	"github.com/roomscout/listing-corpus/internal/logging"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/storage/postgres"
	"github.com/roomscout/listing-corpus/internal/vectorize"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vectorizer: %v\n", err)
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
	if err := cfg.RequireProvider(); err != nil {
		return err
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

	provider, err := embed.NewOpenAI(embed.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		Timeout: cfg.ProviderTimeout(),
	}, logger.Named("embed"))
	if err != nil {
		return err
	}

	engine, err := vectorize.New(vectorize.Config{
		BatchSize:      cfg.Vectorize.BatchSize,
		MaxRetries:     cfg.Vectorize.MaxRetries,
		BackoffInitial: time.Duration(cfg.Vectorize.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Vectorize.BackoffMaxMs) * time.Millisecond,
		NormMin:        cfg.Vectorize.NormMin,
		NormMax:        cfg.Vectorize.NormMax,
		ProviderRPS:    cfg.Vectorize.ProviderRPS,
		PoolSize:       cfg.Vectorize.PoolSize,
	}, store, deadLetters, provider, logger.Named("vectorize"))
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	logger.Info("vectorization finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Float64("estimated_cost_usd", result.CostUSD))
	if err != nil {
		return fmt.Errorf("vectorize: %w", err)
	}
	return nil
}
