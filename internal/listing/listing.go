// Package listing defines the corpus domain model and the store
// interfaces the engines persist it through.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Listing is one venue record in the store. The natural key is
// (Name, Region, SubRegion, Company); all writes upsert on that key so
// re-crawling the same catalog never duplicates rows.
type Listing struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Region          string    `db:"region" json:"region"`
	SubRegion       string    `db:"sub_region" json:"sub_region"`
	Theme           string    `db:"theme" json:"theme"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	PricePerPerson  int       `db:"price_per_person" json:"price_per_person"`
	Company         string    `db:"company" json:"company"`
	Rating          *float64  `db:"rating" json:"rating,omitempty"`
	ImageURL        string    `db:"image_url" json:"image_url,omitempty"`
	SourceURL       string    `db:"source_url" json:"source_url,omitempty"`
	BookingURL      string    `db:"booking_url" json:"booking_url,omitempty"`
	DifficultyLevel int       `db:"difficulty_level" json:"difficulty_level"`
	ActivityLevel   int       `db:"activity_level" json:"activity_level"`
	GroupSizeMin    int       `db:"group_size_min" json:"group_size_min"`
	GroupSizeMax    int       `db:"group_size_max" json:"group_size_max"`
	Description     string    `db:"description" json:"description"`
	Embedding       []float32 `db:"embedding" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CardID returns the stable identity used by the crawl checkpoint to mark
// a card as processed.
func (l Listing) CardID() string {
	return fmt.Sprintf("%s/%s/%s/%s", l.Region, l.SubRegion, l.Name, l.Company)
}

// Stage partitions the dead-letter log by the pipeline stage that failed.
type Stage string

// Dead-letter stages.
const (
	StageCrawl     Stage = "crawl"
	StageVectorize Stage = "vectorize"
)

// Valid reports whether s names a known pipeline stage.
func (s Stage) Valid() bool {
	return s == StageCrawl || s == StageVectorize
}

// DeadLetterEntry is one failure queued for later replay instead of being
// dropped. Producers only append; the reprocessing worker is the only
// consumer.
type DeadLetterEntry struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Stage        Stage           `db:"stage" json:"stage"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	ErrorReason  string          `db:"error_reason" json:"error_reason"`
	AttemptCount int             `db:"attempt_count" json:"attempt_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// VectorizePayload is the dead-letter payload for stage=vectorize. Only the
// listing id is recorded; the replay path re-reads the row so it always
// vectorizes the freshest text.
type VectorizePayload struct {
	ListingID int64  `json:"listing_id"`
	Name      string `json:"name"`
}

// CrawlPayload is the dead-letter payload for stage=crawl. Listing is set
// when a fully extracted record failed to persist; Card holds the raw
// scrape when extraction itself failed and there is nothing typed to keep.
type CrawlPayload struct {
	Region    string          `json:"region"`
	SubRegion string          `json:"sub_region"`
	Page      int             `json:"page"`
	Listing   *Listing        `json:"listing,omitempty"`
	Card      json.RawMessage `json:"card,omitempty"`
}

// Store persists listings keyed by their natural key.
type Store interface {
	// Upsert inserts the listing or updates the existing row on natural-key
	// conflict. The embedding column is never touched by Upsert.
	Upsert(ctx context.Context, l Listing) (int64, error)

	// Get returns a listing by id.
	Get(ctx context.Context, id int64) (Listing, error)

	// SelectMissingEmbedding returns up to limit listings whose embedding is
	// still null, in stable id order.
	SelectMissingEmbedding(ctx context.Context, limit int) ([]Listing, error)

	// SetEmbedding writes only the embedding column of the given row.
	SetEmbedding(ctx context.Context, id int64, vec []float32) error

	// ListEmbedded returns all listings that carry an embedding.
	ListEmbedded(ctx context.Context) ([]Listing, error)

	// ListAll returns every listing in stable id order.
	ListAll(ctx context.Context) ([]Listing, error)

	// Count returns the total number of listings.
	Count(ctx context.Context) (int64, error)
}

// DeadLetterStore is the append-only, replayable failure log.
type DeadLetterStore interface {
	// Append records a new failure for the given stage.
	Append(ctx context.Context, stage Stage, payload any, reason string) (uuid.UUID, error)

	// ListByStage returns up to limit live (not yet replayed) entries for a
	// stage, oldest first.
	ListByStage(ctx context.Context, stage Stage, limit int) ([]DeadLetterEntry, error)

	// MarkReplayed archives an entry after a successful replay.
	MarkReplayed(ctx context.Context, id uuid.UUID) error

	// Fail increments the entry's attempt count after a failed replay and
	// leaves it for a later run.
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}
