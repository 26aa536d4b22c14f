// Package catalog holds the static region hierarchy the crawler traverses.
package catalog

// Entry is one (region, sub-region) pair produced by a catalog walk.
type Entry struct {
	Region    string
	SubRegion string
}

// Catalog is an ordered region -> sub-region hierarchy with configurable
// exclusions. Order is deterministic: regions in declaration order, then
// sub-regions in declaration order.
type Catalog struct {
	regions            []string
	subRegions         map[string][]string
	excludedRegions    map[string]struct{}
	excludedSubRegions map[string]map[string]struct{}
}

// regionOrder fixes the traversal order of the source site's region filter.
var regionOrder = []string{
	"서울", "경기", "부산", "대구", "인천", "광주", "대전", "전북",
	"충남", "경남", "경북", "강원", "제주", "충북", "울산", "전남",
}

// regionData mirrors the sub-region buttons the site exposes per region.
var regionData = map[string][]string{
	"서울": {"강남", "강동구", "강북구", "신림", "건대", "구로구", "노원구", "동대문구", "동작구",
		"홍대", "신촌", "성동구", "성북구", "잠실", "양천구", "영등포구", "용산구", "은평구", "대학로", "중구"},
	"경기": {"고양", "광주", "구리", "군포", "김포", "동탄", "부천", "성남", "수원",
		"시흥", "안산", "안양", "용인", "의정부", "이천", "일산", "평택", "하남", "화성"},
	"부산": {"금정구", "기장군", "남구", "부산진구", "북구", "사하구", "수영구", "중구", "해운대구"},
	"대구": {"달서구", "수성구", "중구"},
	"인천": {"남동구", "미추홀구", "부평구", "연수구"},
	"광주": {"광산구", "동구", "북구", "서구"},
	"대전": {"서구", "유성구", "중구"},
	"전북": {"군산", "익산", "전주"},
	"충남": {"당진", "천안"},
	"경남": {"양산", "진주", "창원"},
	"경북": {"경주", "구미", "영주", "포항"},
	"강원": {"강릉", "원주", "춘천"},
	"제주": {"서귀포시", "제주시"},
	"충북": {"청주"},
	"울산": {"남구", "중구"},
	"전남": {"목포", "순천", "여수"},
}

// Default returns the built-in catalog with the given exclusions applied.
// excludedSubRegions maps region name to the sub-regions to skip within it.
func Default(excludedRegions []string, excludedSubRegions map[string][]string) *Catalog {
	return New(regionOrder, regionData, excludedRegions, excludedSubRegions)
}

// New builds a catalog from an explicit hierarchy. Primarily used by tests
// that need a small deterministic catalog.
func New(
	regions []string,
	subRegions map[string][]string,
	excludedRegions []string,
	excludedSubRegions map[string][]string,
) *Catalog {
	c := &Catalog{
		regions:            append([]string(nil), regions...),
		subRegions:         make(map[string][]string, len(subRegions)),
		excludedRegions:    make(map[string]struct{}, len(excludedRegions)),
		excludedSubRegions: make(map[string]map[string]struct{}, len(excludedSubRegions)),
	}
	for region, subs := range subRegions {
		c.subRegions[region] = append([]string(nil), subs...)
	}
	for _, region := range excludedRegions {
		c.excludedRegions[region] = struct{}{}
	}
	for region, subs := range excludedSubRegions {
		set := make(map[string]struct{}, len(subs))
		for _, sub := range subs {
			set[sub] = struct{}{}
		}
		c.excludedSubRegions[region] = set
	}
	return c
}

// Regions returns the non-excluded regions in traversal order.
func (c *Catalog) Regions() []string {
	out := make([]string, 0, len(c.regions))
	for _, region := range c.regions {
		if _, skip := c.excludedRegions[region]; skip {
			continue
		}
		out = append(out, region)
	}
	return out
}

// SubRegions returns the non-excluded sub-regions of a region in traversal
// order.
func (c *Catalog) SubRegions(region string) []string {
	excluded := c.excludedSubRegions[region]
	subs := c.subRegions[region]
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		if _, skip := excluded[sub]; skip {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// Walk returns every (region, sub-region) pair in deterministic traversal
// order with exclusions applied.
func (c *Catalog) Walk() []Entry {
	var entries []Entry
	for _, region := range c.Regions() {
		for _, sub := range c.SubRegions(region) {
			entries = append(entries, Entry{Region: region, SubRegion: sub})
		}
	}
	return entries
}
