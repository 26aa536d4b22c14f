package browse

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the behavior of the chromedp session.
type Config struct {
	BaseURL           string
	UserAgent         string
	Wait              time.Duration
	NavigationTimeout time.Duration
}

// ChromeSession implements Session using chromedp and headless Chrome. One
// browser tab lives for the whole crawl because the site keeps filter state
// in the page.
type ChromeSession struct {
	cfg         Config
	logger      *zap.Logger
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewChromeSession starts a headless browser and opens a tab.
func NewChromeSession(cfg Config, logger *zap.Logger) (*ChromeSession, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	return &ChromeSession{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// Close tears down the tab and the browser process.
func (s *ChromeSession) Close() {
	s.tabCancel()
	s.allocCancel()
}

// run executes actions in the session tab under the navigation timeout.
// The caller's ctx only gates the wait; the tab itself stays alive.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Home loads the landing page and opens the region filter panel.
func (s *ChromeSession) Home(ctx context.Context) error {
	var clicked bool
	err := s.run(ctx,
		s.networkSetup(),
		chromedp.Navigate(s.cfg.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Wait),
		clickByText("필터", &clicked),
		chromedp.Sleep(s.cfg.Wait),
	)
	if err != nil {
		return fmt.Errorf("open landing page: %w", err)
	}
	if !clicked {
		return fmt.Errorf("filter button not found on landing page")
	}
	return nil
}

// SelectRegion clicks the filter button labeled with the region name.
func (s *ChromeSession) SelectRegion(ctx context.Context, region string) error {
	var clicked bool
	err := s.run(ctx,
		clickByText(region, &clicked),
		chromedp.Sleep(s.cfg.Wait),
	)
	if err != nil {
		return fmt.Errorf("select region %q: %w", region, err)
	}
	if !clicked {
		return fmt.Errorf("region button %q not found", region)
	}
	s.logger.Debug("region selected", zap.String("region", region))
	return nil
}

// SelectSubRegion clicks the sub-region button. Region side-tab buttons can
// carry the same label as a sub-region (중구 appears in several regions), so
// the click skips buttons styled as side tabs.
func (s *ChromeSession) SelectSubRegion(ctx context.Context, subRegion string) error {
	script := fmt.Sprintf(`(() => {
		const label = %q;
		for (const btn of document.querySelectorAll("button")) {
			if (btn.textContent.trim() !== label) continue;
			if ((btn.className || "").includes("SideTap")) continue;
			btn.click();
			return true;
		}
		return false;
	})()`, subRegion)

	var clicked bool
	err := s.run(ctx,
		chromedp.Evaluate(script, &clicked),
		chromedp.Sleep(s.cfg.Wait),
	)
	if err != nil {
		return fmt.Errorf("select sub-region %q: %w", subRegion, err)
	}
	if !clicked {
		return fmt.Errorf("sub-region button %q not found", subRegion)
	}
	return nil
}

// ClearSubRegion clicks the × on the active sub-region filter tag.
func (s *ChromeSession) ClearSubRegion(ctx context.Context) error {
	script := `(() => {
		for (const el of document.querySelectorAll("span")) {
			const t = el.textContent.trim();
			if (t === "×" || t === "✕") { el.click(); return true; }
		}
		return false;
	})()`
	var cleared bool
	err := s.run(ctx,
		chromedp.Evaluate(script, &cleared),
		chromedp.Sleep(s.cfg.Wait),
	)
	if err != nil {
		return fmt.Errorf("clear sub-region filter: %w", err)
	}
	return nil
}

// cardsScript scrapes every card on the current list page into plain JSON.
// Styled-component class names are matched by prefix since the hash suffix
// changes across site deploys.
const cardsScript = `(() => {
	const list = document.querySelector("ul[class*='CardList']");
	if (!list) return [];
	const cards = [];
	for (const li of list.querySelectorAll("li")) {
		const text = sel => {
			const el = li.querySelector(sel);
			return el ? el.textContent.trim() : "";
		};
		const chips = [];
		for (const chip of li.querySelectorAll("span[class*='Chips']")) {
			const t = chip.textContent.trim();
			if (t) chips.push(t);
		}
		const img = li.querySelector("img");
		const link = li.querySelector("a");
		cards.push({
			title: text("label[class*='SolidCardTitle']"),
			subTitle: text("p[class*='SolidCardSubTitle']"),
			chips: chips,
			price: text("span[class*='Span_Price']"),
			rating: text("span[class*='hhLGvj']"),
			imageURL: img ? (img.src || "") : "",
			linkURL: link ? (link.href || "") : "",
		});
	}
	return cards;
})()`

// Cards scrapes the card list of the current page.
func (s *ChromeSession) Cards(ctx context.Context) ([]CardSummary, error) {
	var cards []CardSummary
	err := s.run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(cardsScript, &cards),
	)
	if err != nil {
		return nil, fmt.Errorf("scrape card list: %w", err)
	}
	return cards, nil
}

// detailScript scrapes the detail page of one card.
const detailScript = `(() => {
	const info = {};
	const wrapper = document.querySelector("ul[class*='SubInfoWrapper']");
	if (wrapper) {
		for (const li of wrapper.querySelectorAll("li")) {
			const strong = li.querySelector("strong");
			const span = li.querySelector("span");
			if (strong && span) info[span.textContent.trim()] = strong.textContent.trim();
		}
	}
	let story = "";
	const storyEl = document.querySelector("p[class*='ThemeStoryContent']");
	if (storyEl) story = storyEl.textContent.trim();

	let bookingURL = "";
	for (const el of document.querySelectorAll("a, button")) {
		if (!el.textContent.includes("예약하러가기")) continue;
		if (el.tagName === "A" && el.href) { bookingURL = el.href; break; }
		const inner = el.querySelector("a");
		if (inner && inner.href) { bookingURL = inner.href; break; }
		const parentLink = el.closest("a");
		if (parentLink && parentLink.href) { bookingURL = parentLink.href; break; }
	}
	return {info: info, story: story, bookingURL: bookingURL};
})()`

// OpenCard clicks into the i-th card, scrapes its detail page, and goes back.
func (s *ChromeSession) OpenCard(ctx context.Context, i int) (CardDetail, error) {
	clickScript := fmt.Sprintf(`(() => {
		const list = document.querySelector("ul[class*='CardList']");
		if (!list) return false;
		const cards = list.querySelectorAll("li");
		if (%d >= cards.length) return false;
		const link = cards[%d].querySelector("a");
		if (!link) return false;
		link.scrollIntoView({block: "center"});
		link.click();
		return true;
	})()`, i, i)

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(clickScript, &clicked), chromedp.Sleep(s.cfg.Wait)); err != nil {
		return CardDetail{}, fmt.Errorf("open card %d: %w", i, err)
	}
	if !clicked {
		return CardDetail{}, fmt.Errorf("card %d not found on page", i)
	}

	var detail CardDetail
	scrapeErr := s.run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(detailScript, &detail),
	)

	// Return to the list even if the scrape failed, otherwise the session
	// is stranded on the detail page.
	backErr := s.run(ctx,
		chromedp.NavigateBack(),
		chromedp.Sleep(s.cfg.Wait),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if scrapeErr != nil {
		return CardDetail{}, fmt.Errorf("scrape card %d detail: %w", i, scrapeErr)
	}
	if backErr != nil {
		return CardDetail{}, fmt.Errorf("return to list after card %d: %w", i, backErr)
	}
	return detail, nil
}

// NextPage clicks the pagination button one past the active page. It returns
// false when that button does not exist.
func (s *ChromeSession) NextPage(ctx context.Context) (bool, error) {
	script := `(() => {
		let current = 1;
		for (const btn of document.querySelectorAll("button")) {
			const cls = btn.className || "";
			if (btn.getAttribute("aria-current") === "page" || cls.includes("active") || cls.includes("hDQLTC")) {
				const n = parseInt(btn.textContent.trim(), 10);
				if (!isNaN(n)) { current = n; break; }
			}
		}
		const next = String(current + 1);
		for (const btn of document.querySelectorAll("button")) {
			if (btn.textContent.trim() === next) { btn.click(); return true; }
		}
		return false;
	})()`

	var advanced bool
	err := s.run(ctx,
		chromedp.Evaluate(script, &advanced),
		chromedp.Sleep(s.cfg.Wait),
	)
	if err != nil {
		return false, fmt.Errorf("advance page: %w", err)
	}
	return advanced, nil
}

func (s *ChromeSession) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// clickByText clicks the first button whose text contains the given label,
// reporting through clicked whether any button matched.
func clickByText(label string, clicked *bool) chromedp.Action {
	script := fmt.Sprintf(`(() => {
		for (const btn of document.querySelectorAll("button")) {
			if (btn.textContent.includes(%q)) { btn.click(); return true; }
		}
		return false;
	})()`, label)
	return chromedp.Evaluate(script, clicked)
}
