// Package reprocess drains the dead-letter log, replaying each failure
// through the same path that produced it.
package reprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/embed"
	"github.com/roomscout/listing-corpus/internal/listing"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/vectorize"
)

// Config controls a reprocessing run.
type Config struct {
	// FetchLimit bounds how many entries are pulled per round.
	FetchLimit int

	// NormMin/NormMax mirror the vectorization quality gate.
	NormMin float64
	NormMax float64
}

// Summary reports the outcome of a run per stage.
type Summary struct {
	CrawlReplayed     int
	CrawlFailed       int
	VectorizeReplayed int
	VectorizeFailed   int
}

// Worker replays dead-lettered failures. Crawl entries carry the extracted
// listing and are re-upserted; vectorize entries re-read the row so the
// freshest text is embedded.
type Worker struct {
	cfg         Config
	store       listing.Store
	deadLetters listing.DeadLetterStore
	provider    embed.Provider
	logger      *zap.Logger
}

// New assembles a reprocessing worker.
func New(
	cfg Config,
	store listing.Store,
	deadLetters listing.DeadLetterStore,
	provider embed.Provider,
	logger *zap.Logger,
) (*Worker, error) {
	if store == nil || deadLetters == nil {
		return nil, fmt.Errorf("store and dead letters are required")
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 50
	}
	if cfg.NormMin <= 0 {
		cfg.NormMin = 1e-6
	}
	if cfg.NormMax <= 0 {
		cfg.NormMax = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		cfg:         cfg,
		store:       store,
		deadLetters: deadLetters,
		provider:    provider,
		logger:      logger,
	}, nil
}

// Run drains both stages. Entries that fail again stay in the log with an
// incremented attempt count for a later run.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if err := w.drain(ctx, listing.StageCrawl, w.replayCrawl, &summary.CrawlReplayed, &summary.CrawlFailed); err != nil {
		return summary, err
	}
	if err := w.drain(ctx, listing.StageVectorize, w.replayVectorize, &summary.VectorizeReplayed, &summary.VectorizeFailed); err != nil {
		return summary, err
	}
	w.logger.Info("reprocessing complete",
		zap.Int("crawl_replayed", summary.CrawlReplayed),
		zap.Int("crawl_failed", summary.CrawlFailed),
		zap.Int("vectorize_replayed", summary.VectorizeReplayed),
		zap.Int("vectorize_failed", summary.VectorizeFailed))
	return summary, nil
}

func (w *Worker) drain(
	ctx context.Context,
	stage listing.Stage,
	replay func(context.Context, listing.DeadLetterEntry) error,
	replayed, failed *int,
) error {
	attempted := make(map[uuid.UUID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := w.deadLetters.ListByStage(ctx, stage, w.cfg.FetchLimit)
		if err != nil {
			return fmt.Errorf("list %s dead letters: %w", stage, err)
		}

		progressed := false
		for _, entry := range entries {
			if _, seen := attempted[entry.ID]; seen {
				continue
			}
			attempted[entry.ID] = struct{}{}
			progressed = true

			if err := replay(ctx, entry); err != nil {
				*failed++
				metrics.ObserveReplay(string(stage), "failed")
				w.logger.Warn("replay failed",
					zap.String("stage", string(stage)),
					zap.String("id", entry.ID.String()),
					zap.Int("attempts", entry.AttemptCount+1),
					zap.Error(err))
				if ferr := w.deadLetters.Fail(ctx, entry.ID, err.Error()); ferr != nil {
					w.logger.Error("record replay failure", zap.String("id", entry.ID.String()), zap.Error(ferr))
				}
				continue
			}

			*replayed++
			metrics.ObserveReplay(string(stage), "success")
			if merr := w.deadLetters.MarkReplayed(ctx, entry.ID); merr != nil {
				w.logger.Error("mark replayed", zap.String("id", entry.ID.String()), zap.Error(merr))
			}
		}

		if !progressed || len(entries) < w.cfg.FetchLimit {
			return nil
		}
	}
}

// replayCrawl re-upserts the listing captured at failure time. Entries
// without a typed listing (raw extraction failures) cannot be replayed
// without a re-crawl.
func (w *Worker) replayCrawl(ctx context.Context, entry listing.DeadLetterEntry) error {
	var payload listing.CrawlPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("decode crawl payload: %w", err)
	}
	if payload.Listing == nil {
		return fmt.Errorf("no extracted listing to replay; needs a re-crawl of %s/%s page %d",
			payload.Region, payload.SubRegion, payload.Page)
	}

	id, err := w.store.Upsert(ctx, *payload.Listing)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	metrics.ObserveUpsert()
	w.logger.Debug("crawl entry replayed", zap.Int64("listing_id", id), zap.String("name", payload.Listing.Name))
	return nil
}

// replayVectorize re-reads the row and embeds its current text, running
// the same quality gate as the vectorization engine.
func (w *Worker) replayVectorize(ctx context.Context, entry listing.DeadLetterEntry) error {
	if w.provider == nil {
		return fmt.Errorf("no embedding provider configured")
	}

	var payload listing.VectorizePayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("decode vectorize payload: %w", err)
	}

	row, err := w.store.Get(ctx, payload.ListingID)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return fmt.Errorf("listing %d no longer exists", payload.ListingID)
		}
		return fmt.Errorf("load listing %d: %w", payload.ListingID, err)
	}
	if row.Embedding != nil {
		// Another run already embedded it; nothing to do.
		return nil
	}

	vectors, err := w.provider.Embed(ctx, []string{vectorize.Document(row)})
	if err != nil {
		return fmt.Errorf("embed listing %d: %w", row.ID, err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("provider returned %d vectors for one text", len(vectors))
	}
	if err := vectorize.Validate(vectors[0], w.cfg.NormMin, w.cfg.NormMax); err != nil {
		return fmt.Errorf("vector quality: %w", err)
	}
	if err := w.store.SetEmbedding(ctx, row.ID, vectors[0]); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	metrics.ObserveEmbedding("success")
	w.logger.Debug("vectorize entry replayed", zap.Int64("listing_id", row.ID), zap.String("name", row.Name))
	return nil
}
