package vectorize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roomscout/listing-corpus/internal/embed"
	"github.com/roomscout/listing-corpus/internal/listing"
	"github.com/roomscout/listing-corpus/internal/metrics"
)

// Config controls batch sizing, retry behavior and the quality gate.
type Config struct {
	BatchSize      int
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	NormMin        float64
	NormMax        float64
	ProviderRPS    float64
	PoolSize       int
}

// BatchResult accumulates the outcome of a vectorization run.
type BatchResult struct {
	RequestedTexts int
	Succeeded      int
	Failed         int
	TokensUsed     int
	CostUSD        float64
}

// Engine embeds every listing whose vector is still missing.
type Engine struct {
	cfg         Config
	store       listing.Store
	deadLetters listing.DeadLetterStore
	provider    embed.Provider
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// runState is the mutable state of one Run call. failed remembers rows that
// were dead-lettered this run so they are not selected and billed again.
type runState struct {
	mu     sync.Mutex
	result BatchResult
	failed map[int64]struct{}
}

// New assembles a vectorization engine.
func New(
	cfg Config,
	store listing.Store,
	deadLetters listing.DeadLetterStore,
	provider embed.Provider,
	logger *zap.Logger,
) (*Engine, error) {
	if store == nil || deadLetters == nil || provider == nil {
		return nil, fmt.Errorf("store, dead letters and provider are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 16 * time.Second
	}
	if cfg.NormMin <= 0 {
		cfg.NormMin = 1e-6
	}
	if cfg.NormMax <= 0 {
		cfg.NormMax = 10
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.ProviderRPS > 0 {
		limit = rate.Limit(cfg.ProviderRPS)
	}

	return &Engine{
		cfg:         cfg,
		store:       store,
		deadLetters: deadLetters,
		provider:    provider,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}, nil
}

// Run repeatedly pulls batches of unembedded rows until none remain. Each
// batch is tried as one provider call; on batch failure every row falls
// back to an individual call so a single poisoned text cannot sink its
// neighbors. Rows that fail stay unembedded and are skipped for the rest
// of the run.
func (e *Engine) Run(ctx context.Context) (BatchResult, error) {
	rs := &runState{failed: make(map[int64]struct{})}
	for {
		if err := ctx.Err(); err != nil {
			return rs.result, err
		}

		// Over-fetch by the number of known-bad rows so they cannot clog
		// the front of the id-ordered selection.
		rows, err := e.store.SelectMissingEmbedding(ctx, e.cfg.BatchSize+len(rs.failed))
		if err != nil {
			return rs.result, fmt.Errorf("select unembedded rows: %w", err)
		}

		batch := make([]listing.Listing, 0, e.cfg.BatchSize)
		for _, row := range rows {
			if _, skip := rs.failed[row.ID]; skip {
				continue
			}
			batch = append(batch, row)
			if len(batch) == e.cfg.BatchSize {
				break
			}
		}
		if len(batch) == 0 {
			e.logger.Info("vectorization complete",
				zap.Int("succeeded", rs.result.Succeeded),
				zap.Int("failed", rs.result.Failed),
				zap.Int("tokens", rs.result.TokensUsed),
				zap.Float64("cost_usd", rs.result.CostUSD))
			return rs.result, nil
		}

		if err := e.processBatch(ctx, batch, rs); err != nil {
			return rs.result, err
		}
	}
}

func (e *Engine) processBatch(ctx context.Context, rows []listing.Listing, rs *runState) error {
	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = Document(row)
	}
	rs.result.RequestedTexts += len(texts)

	vectors, err := e.embedWithRetry(ctx, texts)
	if err == nil && len(vectors) == len(rows) {
		e.recordUsage(texts, rs)
		for i, row := range rows {
			e.storeVector(ctx, row, vectors[i], rs)
		}
		return ctx.Err()
	}

	if err != nil {
		e.logger.Warn("batch embed failed, falling back to individual calls",
			zap.Int("batch", len(rows)), zap.Error(err))
	} else {
		e.logger.Warn("provider returned wrong vector count, falling back to individual calls",
			zap.Int("want", len(rows)), zap.Int("got", len(vectors)))
	}
	return e.processIndividually(ctx, rows, texts, rs)
}

// processIndividually embeds each row on its own through a bounded worker
// pool. The pool defaults to a single worker so provider calls stay
// sequential unless configured otherwise.
func (e *Engine) processIndividually(ctx context.Context, rows []listing.Listing, texts []string, rs *runState) error {
	pool, err := ants.NewPool(e.cfg.PoolSize)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range rows {
		row, text := rows[i], texts[i]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			vectors, err := e.embedWithRetry(ctx, []string{text})
			if err != nil {
				e.deadLetterRow(ctx, row, fmt.Sprintf("embed failed after %d attempts: %v", e.cfg.MaxRetries, err), rs)
				return
			}
			e.recordUsage([]string{text}, rs)
			if len(vectors) != 1 {
				e.deadLetterRow(ctx, row, fmt.Sprintf("provider returned %d vectors for one text", len(vectors)), rs)
				return
			}
			e.storeVector(ctx, row, vectors[0], rs)
		})
		if submitErr != nil {
			wg.Done()
			e.deadLetterRow(ctx, row, fmt.Sprintf("submit to worker pool: %v", submitErr), rs)
		}
	}
	wg.Wait()
	return ctx.Err()
}

// storeVector runs the quality gate and persists a vector. Invalid vectors
// are dead-lettered and the row keeps its NULL embedding.
func (e *Engine) storeVector(ctx context.Context, row listing.Listing, vec []float32, rs *runState) {
	if err := Validate(vec, e.cfg.NormMin, e.cfg.NormMax); err != nil {
		e.deadLetterRow(ctx, row, fmt.Sprintf("vector quality: %v", err), rs)
		return
	}
	if err := e.store.SetEmbedding(ctx, row.ID, vec); err != nil {
		e.deadLetterRow(ctx, row, fmt.Sprintf("store embedding: %v", err), rs)
		return
	}
	rs.mu.Lock()
	rs.result.Succeeded++
	rs.mu.Unlock()
	metrics.ObserveEmbedding("success")
	e.logger.Debug("listing embedded", zap.Int64("id", row.ID), zap.String("name", row.Name))
}

func (e *Engine) deadLetterRow(ctx context.Context, row listing.Listing, reason string, rs *runState) {
	rs.mu.Lock()
	rs.result.Failed++
	rs.failed[row.ID] = struct{}{}
	rs.mu.Unlock()

	metrics.ObserveEmbedding("failed")
	payload := listing.VectorizePayload{ListingID: row.ID, Name: row.Name}
	if _, err := e.deadLetters.Append(ctx, listing.StageVectorize, payload, reason); err != nil {
		e.logger.Error("dead-letter append failed",
			zap.Int64("id", row.ID), zap.String("reason", reason), zap.Error(err))
		return
	}
	metrics.ObserveDeadLetter(string(listing.StageVectorize))
	e.logger.Warn("listing dead-lettered",
		zap.Int64("id", row.ID), zap.String("name", row.Name), zap.String("reason", reason))
}

// embedWithRetry calls the provider under the rate limiter with bounded
// exponential backoff. Rate-limit errors back off twice as long since the
// provider is telling us to slow down.
func (e *Engine) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	backoff := e.cfg.BackoffInitial
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		waitStart := time.Now()
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		metrics.ObserveProviderWait(time.Since(waitStart))

		vectors, err := e.provider.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := backoff
		if isRateLimited(err) {
			delay *= 2
		}
		if delay > e.cfg.BackoffMax {
			delay = e.cfg.BackoffMax
		}
		e.logger.Debug("embed attempt failed, backing off",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (e *Engine) recordUsage(texts []string, rs *runState) {
	tokens, err := embed.CountTokens(e.provider.Model(), texts)
	if err != nil {
		e.logger.Warn("token counting failed", zap.Error(err))
		return
	}
	cost := embed.EstimateCost(e.provider.Model(), tokens)
	rs.mu.Lock()
	rs.result.TokensUsed += tokens
	rs.result.CostUSD += cost
	rs.mu.Unlock()
	metrics.ObserveUsage(tokens, cost)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}
