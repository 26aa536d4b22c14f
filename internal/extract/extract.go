// Package extract turns the raw strings scraped from the listing site into
// typed listing fields.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roomscout/listing-corpus/internal/browse"
	"github.com/roomscout/listing-corpus/internal/listing"
)

// Defaults applied when a card or detail page omits a field.
const (
	DefaultDurationMinutes = 60
	DefaultDifficulty      = 3
	DefaultActivity        = 2
	DefaultGroupMin        = 2
	DefaultGroupMax        = 4
	maxGroupSize           = 6
)

// Detail labels on the site.
const (
	labelDifficulty = "난이도"
	labelGroupSize  = "추천인원"
	labelActivity   = "활동성"
)

var (
	digitsRe   = regexp.MustCompile(`\d+`)
	priceRe    = regexp.MustCompile(`[\d,]+`)
	ratingRe   = regexp.MustCompile(`\d+\.\d+`)
	durationRe = regexp.MustCompile(`(\d+)\s*분`)
)

// Card parses a scraped card summary into a listing. The title is the only
// required field; everything else falls back to a default so one missing
// chip never loses a venue.
func Card(card browse.CardSummary, region, subRegion string) (listing.Listing, error) {
	name := strings.TrimSpace(card.Title)
	if name == "" {
		return listing.Listing{}, fmt.Errorf("card has no title")
	}

	theme, duration := ThemeAndDuration(card.Chips)
	return listing.Listing{
		Name:            name,
		Region:          region,
		SubRegion:       subRegion,
		Theme:           theme,
		DurationMinutes: duration,
		PricePerPerson:  Price(card.Price),
		Company:         Company(card.SubTitle),
		Rating:          Rating(card.Rating),
		ImageURL:        strings.TrimSpace(card.ImageURL),
		SourceURL:       strings.TrimSpace(card.LinkURL),
		DifficultyLevel: DefaultDifficulty,
		ActivityLevel:   DefaultActivity,
		GroupSizeMin:    DefaultGroupMin,
		GroupSizeMax:    DefaultGroupMax,
	}, nil
}

// ApplyDetail merges a scraped detail page into a listing parsed from its
// card.
func ApplyDetail(l *listing.Listing, detail browse.CardDetail) {
	if v, ok := detail.Info[labelDifficulty]; ok {
		l.DifficultyLevel = Difficulty(v)
	}
	if v, ok := detail.Info[labelGroupSize]; ok {
		l.GroupSizeMin, l.GroupSizeMax = GroupSize(v)
	}
	if v, ok := detail.Info[labelActivity]; ok {
		l.ActivityLevel = Activity(v)
	}
	if story := strings.TrimSpace(detail.Story); story != "" {
		l.Description = story
	}
	if booking := strings.TrimSpace(detail.BookingURL); booking != "" {
		l.BookingURL = booking
	}
	if l.Description == "" {
		l.Description = fmt.Sprintf("%s - %s에서 운영하는 %s 테마의 방탈출입니다.", l.Name, l.Company, l.Theme)
	}
}

// Company extracts the company name from a card subtitle. The site renders
// "업체명 | 지점명"; only the part before the bar is the company.
func Company(subTitle string) string {
	subTitle = strings.TrimSpace(subTitle)
	if i := strings.Index(subTitle, "|"); i >= 0 {
		subTitle = strings.TrimSpace(subTitle[:i])
	}
	if subTitle == "" {
		return "업체명 불명"
	}
	return subTitle
}

// ThemeAndDuration splits a card's chips into the genre chip and the
// duration chip ("75분"). The last chip of each kind wins.
func ThemeAndDuration(chips []string) (string, int) {
	theme := "기타"
	duration := DefaultDurationMinutes
	for _, chip := range chips {
		chip = strings.TrimSpace(chip)
		if chip == "" {
			continue
		}
		if m := durationRe.FindStringSubmatch(chip); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				duration = n
			}
			continue
		}
		theme = chip
	}
	return theme, duration
}

// Price parses a price string like "27,000원". A missing or "정보 없음"
// price yields zero.
func Price(s string) int {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "원") || strings.Contains(s, "정보 없음") {
		return 0
	}
	m := priceRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// Rating parses a decimal rating like "4.5". Cards without a rating return
// nil rather than zero so an unrated venue is distinguishable.
func Rating(s string) *float64 {
	m := ratingRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Difficulty maps the site's difficulty words onto a 1-5 scale.
func Difficulty(s string) int {
	switch strings.TrimSpace(s) {
	case "쉬움":
		return 2
	case "보통":
		return 3
	case "어려움":
		return 4
	default:
		return DefaultDifficulty
	}
}

// GroupSize parses a recommended group size like "2인" or "2~4인". A single
// number is widened by two, capped at the site's maximum party size.
func GroupSize(s string) (int, int) {
	nums := digitsRe.FindAllString(s, -1)
	switch {
	case len(nums) >= 2:
		lo, err1 := strconv.Atoi(nums[0])
		hi, err2 := strconv.Atoi(nums[1])
		if err1 != nil || err2 != nil || lo <= 0 || hi < lo {
			return DefaultGroupMin, DefaultGroupMax
		}
		return lo, hi
	case len(nums) == 1:
		n, err := strconv.Atoi(nums[0])
		if err != nil || n <= 0 {
			return DefaultGroupMin, DefaultGroupMax
		}
		hi := n + 2
		if hi > maxGroupSize {
			hi = maxGroupSize
		}
		return n, hi
	default:
		return DefaultGroupMin, DefaultGroupMax
	}
}

// Activity maps the site's activity words onto a 1-3 scale.
func Activity(s string) int {
	switch {
	case strings.Contains(s, "거의 없음"):
		return 1
	case strings.Contains(s, "많음"), strings.Contains(s, "활동적"):
		return 3
	case strings.Contains(s, "보통"):
		return 2
	default:
		return DefaultActivity
	}
}
