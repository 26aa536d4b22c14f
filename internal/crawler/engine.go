// Package crawler walks the region catalog through a browser session and
// persists every listing it finds, checkpointing as it goes.
package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/browse"
	"github.com/roomscout/listing-corpus/internal/catalog"
	"github.com/roomscout/listing-corpus/internal/extract"
	"github.com/roomscout/listing-corpus/internal/listing"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/state"
)

// Config controls engine behavior.
type Config struct {
	// NavMaxAttempts bounds retries of a region or sub-region selection
	// before the engine skips it.
	NavMaxAttempts int

	// RetryWait is the pause between navigation retries.
	RetryWait time.Duration
}

// Report summarizes a finished crawl run.
type Report struct {
	CardsStored    int
	CardsSkipped   int
	CardsFailed    int
	SkippedRegions []string
	SkippedSubs    []string
}

// Engine drives one resumable crawl over the catalog.
type Engine struct {
	cfg         Config
	session     browse.Session
	store       listing.Store
	deadLetters listing.DeadLetterStore
	catalog     *catalog.Catalog
	checkpoints *state.FileStore
	logger      *zap.Logger
}

// New assembles a crawl engine.
func New(
	cfg Config,
	session browse.Session,
	store listing.Store,
	deadLetters listing.DeadLetterStore,
	cat *catalog.Catalog,
	checkpoints *state.FileStore,
	logger *zap.Logger,
) (*Engine, error) {
	if session == nil || store == nil || deadLetters == nil || cat == nil || checkpoints == nil {
		return nil, fmt.Errorf("session, store, dead letters, catalog and checkpoints are required")
	}
	if cfg.NavMaxAttempts <= 0 {
		cfg.NavMaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:         cfg,
		session:     session,
		store:       store,
		deadLetters: deadLetters,
		catalog:     cat,
		checkpoints: checkpoints,
		logger:      logger,
	}, nil
}

// Run crawls every non-excluded (region, sub-region) pair, resuming from the
// checkpoint. The checkpoint is saved after every stored card so a crash
// loses at most the card in flight.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	st, err := e.checkpoints.Load()
	if err != nil {
		return Report{}, fmt.Errorf("load crawl state: %w", err)
	}
	if st.TotalCollected > 0 {
		e.logger.Info("resuming crawl",
			zap.String("region", st.CurrentRegion),
			zap.String("sub_region", st.CurrentSubRegion),
			zap.Int("page", st.CurrentPage),
			zap.Int64("collected", st.TotalCollected))
	}

	if err := e.session.Home(ctx); err != nil {
		return Report{}, fmt.Errorf("open site: %w", err)
	}

	var report Report
	for _, region := range e.catalog.Regions() {
		if st.RegionDone(region) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, e.saveAndWrap(st, err)
		}

		if err := e.withRetries(ctx, func() error { return e.session.SelectRegion(ctx, region) }); err != nil {
			e.logger.Warn("skipping region after repeated failures", zap.String("region", region), zap.Error(err))
			report.SkippedRegions = append(report.SkippedRegions, region)
			continue
		}

		subs := e.catalog.SubRegions(region)
		for i, sub := range subs {
			if st.SubRegionDone(region, sub) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, e.saveAndWrap(st, err)
			}

			if err := e.withRetries(ctx, func() error { return e.session.SelectSubRegion(ctx, sub) }); err != nil {
				e.logger.Warn("skipping sub-region after repeated failures",
					zap.String("region", region), zap.String("sub_region", sub), zap.Error(err))
				report.SkippedSubs = append(report.SkippedSubs, region+"/"+sub)
				continue
			}

			if err := e.crawlSubRegion(ctx, st, region, sub, &report); err != nil {
				return report, e.saveAndWrap(st, err)
			}

			st.MarkSubRegionDone(region, sub)
			if err := e.checkpoints.Save(st); err != nil {
				return report, fmt.Errorf("save crawl state: %w", err)
			}

			if i < len(subs)-1 {
				if err := e.session.ClearSubRegion(ctx); err != nil {
					e.logger.Warn("clear sub-region filter failed", zap.Error(err))
				}
			}
		}

		st.MarkRegionDone(region)
		if err := e.checkpoints.Save(st); err != nil {
			return report, fmt.Errorf("save crawl state: %w", err)
		}
		e.logger.Info("region complete", zap.String("region", region))
	}

	if err := e.checkpoints.Save(st); err != nil {
		return report, fmt.Errorf("save crawl state: %w", err)
	}
	e.logger.Info("crawl complete",
		zap.Int("stored", report.CardsStored),
		zap.Int("skipped", report.CardsSkipped),
		zap.Int("failed", report.CardsFailed))
	return report, nil
}

// crawlSubRegion pages through one sub-region. The site exposes no page
// count, so the loop stops when advancing yields a page whose card set is
// identical to the previous one.
func (e *Engine) crawlSubRegion(ctx context.Context, st *state.CrawlState, region, sub string, report *Report) error {
	// Fast-forward when resuming inside this sub-region.
	page := 1
	if st.CurrentRegion == region && st.CurrentSubRegion == sub && st.CurrentPage > 1 {
		for page < st.CurrentPage {
			advanced, err := e.session.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("fast-forward to page %d: %w", st.CurrentPage, err)
			}
			if !advanced {
				break
			}
			page++
		}
	}

	prevSignature := ""
	for {
		st.SetPosition(region, sub, page)
		if err := e.checkpoints.Save(st); err != nil {
			return fmt.Errorf("save crawl state: %w", err)
		}

		cards, err := e.session.Cards(ctx)
		if err != nil {
			return fmt.Errorf("scrape page %d of %s/%s: %w", page, region, sub, err)
		}
		sig := pageSignature(region, sub, cards)
		if sig == prevSignature {
			// The pagination wrapped back to the same page.
			return nil
		}
		prevSignature = sig

		if err := e.processPage(ctx, st, region, sub, page, cards, report); err != nil {
			return err
		}

		advanced, err := e.session.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("advance past page %d of %s/%s: %w", page, region, sub, err)
		}
		if !advanced {
			return nil
		}
		page++
	}
}

func (e *Engine) processPage(ctx context.Context, st *state.CrawlState, region, sub string, page int, cards []browse.CardSummary, report *Report) error {
	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}

		l, err := extract.Card(card, region, sub)
		if err != nil {
			e.deadLetterCard(ctx, region, sub, page, nil, card, fmt.Sprintf("extract card: %v", err))
			report.CardsFailed++
			continue
		}

		if st.Processed(l.CardID()) {
			report.CardsSkipped++
			metrics.ObserveCard("skipped")
			continue
		}

		detail, err := e.session.OpenCard(ctx, i)
		if err != nil {
			e.deadLetterCard(ctx, region, sub, page, &l, card, fmt.Sprintf("open card detail: %v", err))
			report.CardsFailed++
			continue
		}
		extract.ApplyDetail(&l, detail)

		id, err := e.store.Upsert(ctx, l)
		if err != nil {
			e.deadLetterCard(ctx, region, sub, page, &l, card, fmt.Sprintf("store listing: %v", err))
			report.CardsFailed++
			continue
		}

		st.MarkProcessed(l.CardID())
		if err := e.checkpoints.Save(st); err != nil {
			return fmt.Errorf("save crawl state: %w", err)
		}

		report.CardsStored++
		metrics.ObserveCard("stored")
		metrics.ObserveUpsert()
		e.logger.Debug("listing stored",
			zap.Int64("id", id),
			zap.String("name", l.Name),
			zap.String("company", l.Company),
			zap.String("region", region),
			zap.String("sub_region", sub))
	}
	return nil
}

// deadLetterCard routes one failed card to the dead-letter log and keeps
// crawling. A failure to record the failure is only logged; it must not
// stop the run.
func (e *Engine) deadLetterCard(ctx context.Context, region, sub string, page int, l *listing.Listing, card browse.CardSummary, reason string) {
	raw, err := json.Marshal(card)
	if err != nil {
		raw = nil
	}
	payload := listing.CrawlPayload{
		Region:    region,
		SubRegion: sub,
		Page:      page,
		Listing:   l,
		Card:      raw,
	}
	if _, err := e.deadLetters.Append(ctx, listing.StageCrawl, payload, reason); err != nil {
		e.logger.Error("dead-letter append failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	metrics.ObserveCard("failed")
	metrics.ObserveDeadLetter(string(listing.StageCrawl))
	e.logger.Warn("card dead-lettered",
		zap.String("region", region),
		zap.String("sub_region", sub),
		zap.Int("page", page),
		zap.String("reason", reason))
}

func (e *Engine) withRetries(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= e.cfg.NavMaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < e.cfg.NavMaxAttempts && e.cfg.RetryWait > 0 {
			select {
			case <-time.After(e.cfg.RetryWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

func (e *Engine) saveAndWrap(st *state.CrawlState, cause error) error {
	if err := e.checkpoints.Save(st); err != nil {
		e.logger.Error("checkpoint save on shutdown failed", zap.Error(err))
	}
	return cause
}

// pageSignature fingerprints a list page by the identity of its cards in
// order, so an unchanged page after "next" is detectable.
func pageSignature(region, sub string, cards []browse.CardSummary) string {
	h := sha256.New()
	for _, c := range cards {
		fmt.Fprintf(h, "%s/%s/%s/%s\n", region, sub, c.Title, extract.Company(c.SubTitle))
	}
	return hex.EncodeToString(h.Sum(nil))
}
