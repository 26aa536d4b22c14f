package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/browse"
	"github.com/roomscout/listing-corpus/internal/catalog"
	"github.com/roomscout/listing-corpus/internal/listing"
	"github.com/roomscout/listing-corpus/internal/metrics"
	"github.com/roomscout/listing-corpus/internal/state"
	"github.com/roomscout/listing-corpus/internal/storage/memory"
)

func init() {
	metrics.Init()
}

func card(title, company string) browse.CardSummary {
	return browse.CardSummary{
		Title:    title,
		SubTitle: company + " | 본점",
		Chips:    []string{"미스터리", "60분"},
		Price:    "25,000원",
		Rating:   "4.2",
	}
}

// fakeSession serves scripted pages keyed by region/sub-region.
type fakeSession struct {
	pages       map[string][][]browse.CardSummary
	failSubs    map[string]bool
	failOpen    map[string]bool
	loopLast    bool
	region, sub string
	page        int
	opened      int
}

func (f *fakeSession) key() string { return f.region + "/" + f.sub }

func (f *fakeSession) Home(context.Context) error { return nil }

func (f *fakeSession) SelectRegion(_ context.Context, region string) error {
	f.region = region
	f.page = 1
	return nil
}

func (f *fakeSession) SelectSubRegion(_ context.Context, sub string) error {
	if f.failSubs[f.region+"/"+sub] {
		return fmt.Errorf("button %q not found", sub)
	}
	f.sub = sub
	f.page = 1
	return nil
}

func (f *fakeSession) ClearSubRegion(context.Context) error {
	f.sub = ""
	f.page = 1
	return nil
}

func (f *fakeSession) Cards(context.Context) ([]browse.CardSummary, error) {
	pages := f.pages[f.key()]
	if len(pages) == 0 {
		return nil, nil
	}
	idx := f.page - 1
	if idx >= len(pages) {
		idx = len(pages) - 1
	}
	return pages[idx], nil
}

func (f *fakeSession) OpenCard(ctx context.Context, i int) (browse.CardDetail, error) {
	cards, _ := f.Cards(ctx)
	if i >= len(cards) {
		return browse.CardDetail{}, fmt.Errorf("card %d out of range", i)
	}
	if f.failOpen[cards[i].Title] {
		return browse.CardDetail{}, fmt.Errorf("detail page timed out")
	}
	f.opened++
	return browse.CardDetail{
		Info:  map[string]string{"난이도": "어려움", "추천인원": "2~4인", "활동성": "보통"},
		Story: "테스트 스토리 " + cards[i].Title,
	}, nil
}

func (f *fakeSession) NextPage(context.Context) (bool, error) {
	if f.page < len(f.pages[f.key()]) {
		f.page++
		return true, nil
	}
	if f.loopLast {
		return true, nil
	}
	return false, nil
}

func (f *fakeSession) Close() {}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		[]string{"서울"},
		map[string][]string{"서울": {"강남", "홍대"}},
		nil, nil,
	)
}

func newEngine(t *testing.T, session browse.Session) (*Engine, *memory.ListingStore, *memory.DeadLetterStore, *state.FileStore) {
	t.Helper()
	store := memory.NewListingStore()
	dl := memory.NewDeadLetterStore()
	fs := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	eng, err := New(Config{NavMaxAttempts: 2}, session, store, dl, testCatalog(), fs, zap.NewNop())
	require.NoError(t, err)
	return eng, store, dl, fs
}

func TestRunStoresAllCards(t *testing.T) {
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/강남": {
				{card("비밀의 방", "키이스케이프"), card("탈출왕", "제로월드")},
				{card("지하실", "셜록홈즈")},
			},
			"서울/홍대": {
				{card("마지막 열차", "코드케이")},
			},
		},
	}
	eng, store, dl, fs := newEngine(t, session)

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.CardsStored)
	assert.Zero(t, report.CardsFailed)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	// Detail info was merged in.
	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, got.DifficultyLevel)
	assert.Contains(t, got.Description, "테스트 스토리")

	st, err := fs.Load()
	require.NoError(t, err)
	assert.True(t, st.SubRegionDone("서울", "강남"))
	assert.True(t, st.SubRegionDone("서울", "홍대"))
	assert.True(t, st.RegionDone("서울"))
	assert.Equal(t, int64(4), st.TotalCollected)

	live, err := dl.ListByStage(context.Background(), listing.StageCrawl, 10)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestRunSkipsAlreadyProcessedCards(t *testing.T) {
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/강남": {{card("비밀의 방", "키이스케이프"), card("탈출왕", "제로월드")}},
			"서울/홍대": {{}},
		},
	}
	eng, store, _, fs := newEngine(t, session)

	// Simulate a previous run that already stored one card.
	st := state.NewCrawlState()
	st.MarkProcessed("서울/강남/비밀의 방/키이스케이프")
	require.NoError(t, fs.Save(st))

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CardsStored)
	assert.Equal(t, 1, report.CardsSkipped)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunResumesMidSubRegionPage(t *testing.T) {
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/강남": {
				{card("비밀의 방", "키이스케이프"), card("탈출왕", "제로월드")},
				{card("지하실", "셜록홈즈"), card("금고털이", "미스터리룸"), card("마지막 단서", "코드케이")},
			},
			"서울/홍대": {{}},
		},
	}
	eng, store, _, fs := newEngine(t, session)

	// A previous run finished page 1 and the first card of page 2 before
	// dying, leaving the checkpoint mid-sub-region.
	st := state.NewCrawlState()
	st.MarkProcessed("서울/강남/비밀의 방/키이스케이프")
	st.MarkProcessed("서울/강남/탈출왕/제로월드")
	st.MarkProcessed("서울/강남/지하실/셜록홈즈")
	st.SetPosition("서울", "강남", 2)
	require.NoError(t, fs.Save(st))

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.CardsStored)
	assert.Equal(t, 1, report.CardsSkipped)

	// Page 1 was fast-forwarded past, not re-scraped: only the unfinished
	// page-2 cards landed in the store.
	rows, err := store.ListAll(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	assert.ElementsMatch(t, []string{"금고털이", "마지막 단서"}, names)

	// The run still reaches catalog completion.
	st, err = fs.Load()
	require.NoError(t, err)
	assert.True(t, st.SubRegionDone("서울", "강남"))
	assert.True(t, st.SubRegionDone("서울", "홍대"))
	assert.True(t, st.RegionDone("서울"))
	assert.Equal(t, int64(5), st.TotalCollected)
}

func TestRunDeadLettersFailedCardsAndContinues(t *testing.T) {
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/강남": {{
				card("비밀의 방", "키이스케이프"),
				card("고장난 카드", "업체"),
				card("탈출왕", "제로월드"),
			}},
			"서울/홍대": {{}},
		},
		failOpen: map[string]bool{"고장난 카드": true},
	}
	eng, store, dl, _ := newEngine(t, session)

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.CardsStored)
	assert.Equal(t, 1, report.CardsFailed)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	live, err := dl.ListByStage(context.Background(), listing.StageCrawl, 10)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Contains(t, live[0].ErrorReason, "detail page")

	var payload listing.CrawlPayload
	require.NoError(t, json.Unmarshal(live[0].Payload, &payload))
	assert.Equal(t, "서울", payload.Region)
	assert.Equal(t, "강남", payload.SubRegion)
	require.NotNil(t, payload.Listing)
	assert.Equal(t, "고장난 카드", payload.Listing.Name)
}

func TestRunDeadLettersUnparsableCard(t *testing.T) {
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/강남": {{{Title: "   "}}},
			"서울/홍대": {{}},
		},
	}
	eng, _, dl, _ := newEngine(t, session)

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CardsFailed)

	live, err := dl.ListByStage(context.Background(), listing.StageCrawl, 10)
	require.NoError(t, err)
	require.Len(t, live, 1)

	var payload listing.CrawlPayload
	require.NoError(t, json.Unmarshal(live[0].Payload, &payload))
	assert.Nil(t, payload.Listing)
	assert.NotEmpty(t, payload.Card)
}

func TestRunStopsWhenPageRepeats(t *testing.T) {
	// Pagination claims more pages exist but keeps serving the same cards.
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/강남": {{card("비밀의 방", "키이스케이프")}},
			"서울/홍대": {{}},
		},
		loopLast: true,
	}
	eng, store, _, _ := newEngine(t, session)

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CardsStored)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunSkipsSubRegionAfterNavFailures(t *testing.T) {
	session := &fakeSession{
		pages: map[string][][]browse.CardSummary{
			"서울/홍대": {{card("마지막 열차", "코드케이")}},
		},
		failSubs: map[string]bool{"서울/강남": true},
	}
	eng, store, _, fs := newEngine(t, session)

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"서울/강남"}, report.SkippedSubs)
	assert.Equal(t, 1, report.CardsStored)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A skipped sub-region is not marked done, so the next run retries it.
	st, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, st.SubRegionDone("서울", "강남"))
	assert.True(t, st.SubRegionDone("서울", "홍대"))
}
