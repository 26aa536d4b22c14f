// Package vectorize turns stored listings into embedding vectors in
// batches, isolating failures so one bad row never blocks a run.
package vectorize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roomscout/listing-corpus/internal/listing"
)

var difficultyText = map[int]string{
	1: "매우 쉬움",
	2: "쉬움",
	3: "보통",
	4: "어려움",
	5: "매우 어려움",
}

var activityText = map[int]string{
	1: "거의 없음",
	2: "보통",
	3: "많음",
}

// themeKeywords expands a genre into the words people actually search with.
var themeKeywords = map[string][]string{
	"추리":  {"추리", "수사", "탐정", "범죄", "미스터리"},
	"공포":  {"공포", "무서운", "좀비", "유령", "호러"},
	"모험":  {"모험", "탐험", "어드벤처", "액션"},
	"로맨스": {"로맨스", "연인", "커플", "사랑"},
	"코미디": {"코미디", "웃긴", "재밌는", "유머"},
	"sf":  {"SF", "사이파이", "미래", "우주", "로봇"},
	"판타지": {"판타지", "마법", "중세", "기사"},
	"스릴러": {"스릴러", "긴장감", "서스펜스"},
}

// locationKeywords adds neighborhood character for well-known areas.
var locationKeywords = map[string][]string{
	"강남":  {"접근성 좋은", "지하철", "번화가"},
	"홍대":  {"대학가", "젊은", "핫플"},
	"신촌":  {"대학가", "젊은"},
	"명동":  {"관광지", "접근성"},
	"잠실":  {"롯데타워", "쇼핑"},
	"강북":  {"조용한", "동네"},
	"대학로": {"공연", "문화"},
}

// Document renders a listing into the text that gets embedded: a structured
// field block for exact matches, a natural-language paragraph for semantic
// similarity, and derived search keywords.
func Document(l listing.Listing) string {
	difficulty := difficultyText[l.DifficultyLevel]
	if difficulty == "" {
		difficulty = "보통"
	}
	activity := activityText[l.ActivityLevel]
	if activity == "" {
		activity = "보통"
	}
	price := "가격 정보 없음"
	if l.PricePerPerson > 0 {
		price = fmt.Sprintf("%s원", formatThousands(l.PricePerPerson))
	}
	rating := 0.0
	if l.Rating != nil {
		rating = *l.Rating
	}

	var b strings.Builder
	fmt.Fprintf(&b, "방탈출 테마: %s\n", l.Name)
	fmt.Fprintf(&b, "운영업체: %s\n", l.Company)
	fmt.Fprintf(&b, "위치: %s %s\n", l.Region, l.SubRegion)
	fmt.Fprintf(&b, "장르: %s\n", l.Theme)
	fmt.Fprintf(&b, "난이도: %s (%d/5)\n", difficulty, l.DifficultyLevel)
	fmt.Fprintf(&b, "활동성: %s (%d/3)\n", activity, l.ActivityLevel)
	fmt.Fprintf(&b, "소요시간: %d분\n", l.DurationMinutes)
	fmt.Fprintf(&b, "참여인원: %d-%d명\n", l.GroupSizeMin, l.GroupSizeMax)
	fmt.Fprintf(&b, "1인당 가격: %s\n", price)
	fmt.Fprintf(&b, "평점: %g점\n", rating)

	b.WriteString("\n")
	fmt.Fprintf(&b, "이 방탈출은 %s %s에 위치한 %s 테마입니다.\n", l.Region, l.SubRegion, l.Theme)
	fmt.Fprintf(&b, "%s에서 운영하며, %d명부터 %d명까지 참여 가능합니다.\n", l.Company, l.GroupSizeMin, l.GroupSizeMax)
	fmt.Fprintf(&b, "난이도는 %s이고, 활동성은 %s 수준입니다.\n", difficulty, activity)
	fmt.Fprintf(&b, "소요시간은 약 %d분이며, 1인당 %s입니다.\n", l.DurationMinutes, price)

	if l.Description != "" {
		fmt.Fprintf(&b, "\n스토리: %s\n", l.Description)
	}
	if keywords := searchKeywords(l); len(keywords) > 0 {
		fmt.Fprintf(&b, "\n관련 키워드: %s", strings.Join(keywords, ", "))
	}
	return strings.TrimSpace(b.String())
}

// searchKeywords derives deduplicated search terms from the listing's
// attributes, sorted for stable output.
func searchKeywords(l listing.Listing) []string {
	set := make(map[string]struct{})
	add := func(words ...string) {
		for _, w := range words {
			if w != "" {
				set[w] = struct{}{}
			}
		}
	}

	theme := strings.ToLower(l.Theme)
	matched := false
	for key, words := range themeKeywords {
		if strings.Contains(theme, key) {
			add(words...)
			matched = true
		}
	}
	if !matched && len([]rune(l.Theme)) > 1 {
		add(l.Theme)
	}

	switch {
	case l.DifficultyLevel <= 1:
		add("매우 쉬운", "입문자", "처음")
	case l.DifficultyLevel == 2:
		add("쉬운", "초보자", "입문")
	case l.DifficultyLevel >= 4:
		add("어려운", "고급", "도전적")
	default:
		add("보통", "일반")
	}

	switch {
	case l.GroupSizeMin == 2 && l.GroupSizeMax <= 4:
		add("커플", "소규모", "데이트")
	case l.GroupSizeMax >= 8:
		add("대규모", "팀빌딩", "단체", "회사")
	case l.GroupSizeMax >= 6:
		add("중규모", "가족", "친구들")
	}

	switch {
	case l.PricePerPerson <= 0:
	case l.PricePerPerson < 15000:
		add("저렴한", "가성비", "학생")
	case l.PricePerPerson < 25000:
		add("적당한", "일반적")
	case l.PricePerPerson < 40000:
		add("조금 비싼", "퀄리티")
	default:
		add("프리미엄", "고급", "특별한")
	}

	add(l.Region, l.SubRegion)
	for area, words := range locationKeywords {
		if strings.Contains(l.SubRegion, area) {
			add(words...)
		}
	}

	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func formatThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
