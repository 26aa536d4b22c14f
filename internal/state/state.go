// Package state persists crawl progress so an interrupted run can resume
// where it left off.
package state

import (
	"time"
)

// CrawlState is the durable checkpoint of a crawl run. It records the
// traversal position, the cards already stored, and the sub-regions fully
// exhausted. The file on disk is plain indented JSON so an operator can
// inspect or hand-edit it.
type CrawlState struct {
	CurrentRegion       string              `json:"current_region"`
	CurrentSubRegion    string              `json:"current_sub_region"`
	CurrentPage         int                 `json:"current_page"`
	TotalCollected      int64               `json:"total_collected"`
	CompletedRegions    []string            `json:"completed_regions"`
	CompletedSubRegions map[string][]string `json:"completed_sub_regions"`
	ProcessedCards      map[string]bool     `json:"processed_cards"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// NewCrawlState returns an empty state positioned at the start of a crawl.
func NewCrawlState() *CrawlState {
	return &CrawlState{
		CurrentPage:         1,
		CompletedSubRegions: make(map[string][]string),
		ProcessedCards:      make(map[string]bool),
	}
}

// normalize repairs nil maps after a JSON round trip or a hand-edited file.
func (s *CrawlState) normalize() {
	if s.CompletedSubRegions == nil {
		s.CompletedSubRegions = make(map[string][]string)
	}
	if s.ProcessedCards == nil {
		s.ProcessedCards = make(map[string]bool)
	}
	if s.CurrentPage < 1 {
		s.CurrentPage = 1
	}
}

// Processed reports whether the card was already stored in a previous run.
func (s *CrawlState) Processed(cardID string) bool {
	return s.ProcessedCards[cardID]
}

// MarkProcessed records a card as stored and bumps the collected total.
func (s *CrawlState) MarkProcessed(cardID string) {
	if s.ProcessedCards[cardID] {
		return
	}
	s.ProcessedCards[cardID] = true
	s.TotalCollected++
}

// SubRegionDone reports whether a sub-region was fully crawled.
func (s *CrawlState) SubRegionDone(region, subRegion string) bool {
	for _, done := range s.CompletedSubRegions[region] {
		if done == subRegion {
			return true
		}
	}
	return false
}

// MarkSubRegionDone records a sub-region as fully crawled.
func (s *CrawlState) MarkSubRegionDone(region, subRegion string) {
	if s.SubRegionDone(region, subRegion) {
		return
	}
	s.CompletedSubRegions[region] = append(s.CompletedSubRegions[region], subRegion)
}

// RegionDone reports whether a region was fully crawled.
func (s *CrawlState) RegionDone(region string) bool {
	for _, done := range s.CompletedRegions {
		if done == region {
			return true
		}
	}
	return false
}

// MarkRegionDone records a region as fully crawled.
func (s *CrawlState) MarkRegionDone(region string) {
	if s.RegionDone(region) {
		return
	}
	s.CompletedRegions = append(s.CompletedRegions, region)
}

// SetPosition moves the checkpoint to a new traversal position.
func (s *CrawlState) SetPosition(region, subRegion string, page int) {
	s.CurrentRegion = region
	s.CurrentSubRegion = subRegion
	s.CurrentPage = page
}
