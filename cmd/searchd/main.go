// Package main serves hybrid listing search over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/api"
	"github.com/roomscout/listing-corpus/internal/config"
	"github.com/roomscout/listing-corpus/internal/embed"
	"github.com/roomscout/listing-corpus/internal/logging"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/search"
	"github.com/roomscout/listing-corpus/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "searchd: %v\n", err)
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

	provider, err := embed.NewOpenAI(embed.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		Timeout: cfg.ProviderTimeout(),
	}, logger.Named("embed"))
	if err != nil {
		return err
	}

	index, err := search.NewKeywordIndex(cfg.Search.IndexPath)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	engine, err := search.New(search.Config{
		KeywordWeight:       cfg.Search.KeywordWeight,
		VectorWeight:        cfg.Search.VectorWeight,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
	}, store, index, provider, logger.Named("search"))
	if err != nil {
		return err
	}

	indexed, err := engine.SyncIndex(ctx)
	if err != nil {
		return fmt.Errorf("sync keyword index: %w", err)
	}
	logger.Info("keyword index synced", zap.Int("listings", indexed))

	apiServer := api.NewServer(engine, store, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
