package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/listing-corpus/internal/browse"
)

func TestCardParsesAllFields(t *testing.T) {
	t.Parallel()

	card := browse.CardSummary{
		Title:    "비밀의 방",
		SubTitle: "키이스케이프 | 강남점",
		Chips:    []string{"미스터리", "75분"},
		Price:    "27,000원",
		Rating:   "4.5",
		ImageURL: "https://example.com/img.jpg",
		LinkURL:  "https://example.com/theme/7",
	}

	l, err := Card(card, "서울", "강남")
	require.NoError(t, err)
	assert.Equal(t, "비밀의 방", l.Name)
	assert.Equal(t, "서울", l.Region)
	assert.Equal(t, "강남", l.SubRegion)
	assert.Equal(t, "키이스케이프", l.Company)
	assert.Equal(t, "미스터리", l.Theme)
	assert.Equal(t, 75, l.DurationMinutes)
	assert.Equal(t, 27000, l.PricePerPerson)
	require.NotNil(t, l.Rating)
	assert.InDelta(t, 4.5, *l.Rating, 1e-9)
	assert.Equal(t, "https://example.com/img.jpg", l.ImageURL)
	assert.Equal(t, "https://example.com/theme/7", l.SourceURL)
}

func TestCardDefaults(t *testing.T) {
	t.Parallel()

	l, err := Card(browse.CardSummary{Title: "어떤 테마"}, "부산", "해운대구")
	require.NoError(t, err)
	assert.Equal(t, "업체명 불명", l.Company)
	assert.Equal(t, "기타", l.Theme)
	assert.Equal(t, 60, l.DurationMinutes)
	assert.Equal(t, 0, l.PricePerPerson)
	assert.Nil(t, l.Rating)
	assert.Equal(t, 3, l.DifficultyLevel)
	assert.Equal(t, 2, l.ActivityLevel)
	assert.Equal(t, 2, l.GroupSizeMin)
	assert.Equal(t, 4, l.GroupSizeMax)
}

func TestCardWithoutTitleFails(t *testing.T) {
	t.Parallel()

	_, err := Card(browse.CardSummary{Title: "  "}, "서울", "강남")
	assert.Error(t, err)
}

func TestApplyDetail(t *testing.T) {
	t.Parallel()

	l, err := Card(browse.CardSummary{Title: "비밀의 방", SubTitle: "키이스케이프"}, "서울", "강남")
	require.NoError(t, err)

	ApplyDetail(&l, browse.CardDetail{
		Info: map[string]string{
			"난이도":  "어려움",
			"추천인원": "2~4인",
			"활동성":  "많음",
		},
		Story:      "긴장감 넘치는 스토리",
		BookingURL: "https://example.com/book",
	})

	assert.Equal(t, 4, l.DifficultyLevel)
	assert.Equal(t, 2, l.GroupSizeMin)
	assert.Equal(t, 4, l.GroupSizeMax)
	assert.Equal(t, 3, l.ActivityLevel)
	assert.Equal(t, "긴장감 넘치는 스토리", l.Description)
	assert.Equal(t, "https://example.com/book", l.BookingURL)
}

func TestApplyDetailSynthesizesDescription(t *testing.T) {
	t.Parallel()

	l, err := Card(browse.CardSummary{Title: "비밀의 방", SubTitle: "키이스케이프", Chips: []string{"공포"}}, "서울", "강남")
	require.NoError(t, err)

	ApplyDetail(&l, browse.CardDetail{})
	assert.Contains(t, l.Description, "비밀의 방")
	assert.Contains(t, l.Description, "키이스케이프")
	assert.Contains(t, l.Description, "공포")
}

func TestPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"27,000원", 27000},
		{"1인 25,000원", 1}, // first number wins; site always renders bare prices
		{"정보 없음", 0},
		{"", 0},
		{"27000", 0}, // no currency marker
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Price(tc.in), "Price(%q)", tc.in)
	}
}

func TestThemeAndDuration(t *testing.T) {
	t.Parallel()

	theme, dur := ThemeAndDuration([]string{"공포", "60분"})
	assert.Equal(t, "공포", theme)
	assert.Equal(t, 60, dur)

	theme, dur = ThemeAndDuration(nil)
	assert.Equal(t, "기타", theme)
	assert.Equal(t, 60, dur)

	// Order does not matter.
	theme, dur = ThemeAndDuration([]string{"90분", "추리"})
	assert.Equal(t, "추리", theme)
	assert.Equal(t, 90, dur)
}

func TestDifficulty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, Difficulty("쉬움"))
	assert.Equal(t, 3, Difficulty("보통"))
	assert.Equal(t, 4, Difficulty("어려움"))
	assert.Equal(t, 3, Difficulty("???"))
}

func TestGroupSize(t *testing.T) {
	t.Parallel()

	lo, hi := GroupSize("2~4인")
	assert.Equal(t, 2, lo)
	assert.Equal(t, 4, hi)

	// Single value widens by two.
	lo, hi = GroupSize("3인")
	assert.Equal(t, 3, lo)
	assert.Equal(t, 5, hi)

	// Widening is capped.
	lo, hi = GroupSize("5인")
	assert.Equal(t, 5, lo)
	assert.Equal(t, 6, hi)

	lo, hi = GroupSize("")
	assert.Equal(t, 2, lo)
	assert.Equal(t, 4, hi)
}

func TestActivity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Activity("거의 없음"))
	assert.Equal(t, 2, Activity("보통"))
	assert.Equal(t, 3, Activity("많음"))
	assert.Equal(t, 3, Activity("활동적"))
	assert.Equal(t, 2, Activity(""))
}

func TestRating(t *testing.T) {
	t.Parallel()

	r := Rating("평점 4.8")
	require.NotNil(t, r)
	assert.InDelta(t, 4.8, *r, 1e-9)

	assert.Nil(t, Rating("신규"))
	assert.Nil(t, Rating(""))
}
