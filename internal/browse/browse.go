// Package browse drives a browser session over the listing site. The site
// renders everything client side and keeps the active region filter in page
// state, so one long-lived session walks the whole catalog.
package browse

import "context"

// CardSummary carries the raw strings scraped from one card on a list page.
// Parsing into typed fields happens in the extract package.
type CardSummary struct {
	Title    string   `json:"title"`
	SubTitle string   `json:"subTitle"`
	Chips    []string `json:"chips"`
	Price    string   `json:"price"`
	Rating   string   `json:"rating"`
	ImageURL string   `json:"imageURL"`
	LinkURL  string   `json:"linkURL"`
}

// CardDetail carries the raw values scraped from a card's detail page.
type CardDetail struct {
	// Info maps a detail label (난이도, 추천인원, 활동성) to its value text.
	Info       map[string]string `json:"info"`
	Story      string            `json:"story"`
	BookingURL string            `json:"bookingURL"`
}

// Session is one stateful browsing session against the listing site.
// Implementations are not safe for concurrent use; the crawl engine drives
// a session from a single goroutine.
type Session interface {
	// Home loads the landing page and opens the region filter.
	Home(ctx context.Context) error

	// SelectRegion activates a region filter button.
	SelectRegion(ctx context.Context, region string) error

	// SelectSubRegion activates a sub-region filter button within the
	// currently selected region.
	SelectSubRegion(ctx context.Context, subRegion string) error

	// ClearSubRegion removes the active sub-region filter so the next one
	// can be selected.
	ClearSubRegion(ctx context.Context) error

	// Cards scrapes the card list of the current page.
	Cards(ctx context.Context) ([]CardSummary, error)

	// OpenCard clicks through to the i-th card's detail page, scrapes it,
	// and navigates back to the list.
	OpenCard(ctx context.Context, i int) (CardDetail, error)

	// NextPage advances to the next list page. It returns false when no
	// further page exists.
	NextPage(ctx context.Context) (bool, error)

	// Close tears the browser session down.
	Close()
}
