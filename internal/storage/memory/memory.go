// Package memory provides in-memory store implementations for tests and
// local runs without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomscout/listing-corpus/internal/listing"
)

// ListingStore is an in-memory listing.Store keyed the same way as the
// Postgres implementation.
type ListingStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]listing.Listing
	byKey  map[string]int64
}

// NewListingStore returns an empty in-memory store.
func NewListingStore() *ListingStore {
	return &ListingStore{
		nextID: 1,
		byID:   make(map[int64]listing.Listing),
		byKey:  make(map[string]int64),
	}
}

func naturalKey(l listing.Listing) string {
	return l.Name + "\x00" + l.Region + "\x00" + l.SubRegion + "\x00" + l.Company
}

// Upsert inserts or updates by natural key. Embedding and CreatedAt are
// preserved on update, matching the Postgres store.
func (s *ListingStore) Upsert(_ context.Context, l listing.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := naturalKey(l)
	if id, ok := s.byKey[key]; ok {
		existing := s.byID[id]
		l.ID = id
		l.Embedding = existing.Embedding
		l.CreatedAt = existing.CreatedAt
		l.UpdatedAt = now
		s.byID[id] = l
		return id, nil
	}

	l.ID = s.nextID
	s.nextID++
	l.Embedding = nil
	l.CreatedAt = now
	l.UpdatedAt = now
	s.byID[l.ID] = l
	s.byKey[key] = l.ID
	return l.ID, nil
}

// Get returns a listing by id.
func (s *ListingStore) Get(_ context.Context, id int64) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.byID[id]
	if !ok {
		return listing.Listing{}, listing.ErrNotFound
	}
	return l, nil
}

// SelectMissingEmbedding returns up to limit listings without an embedding,
// in id order.
func (s *ListingStore) SelectMissingEmbedding(_ context.Context, limit int) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.collect(func(l listing.Listing) bool { return l.Embedding == nil })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetEmbedding writes the embedding of the given row.
func (s *ListingStore) SetEmbedding(_ context.Context, id int64, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return listing.ErrNotFound
	}
	l.Embedding = append([]float32(nil), vec...)
	l.UpdatedAt = time.Now().UTC()
	s.byID[id] = l
	return nil
}

// ListEmbedded returns all listings that carry an embedding, in id order.
func (s *ListingStore) ListEmbedded(_ context.Context) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(l listing.Listing) bool { return l.Embedding != nil }), nil
}

// ListAll returns every listing in id order.
func (s *ListingStore) ListAll(_ context.Context) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(listing.Listing) bool { return true }), nil
}

// Count returns the total number of listings.
func (s *ListingStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.byID)), nil
}

func (s *ListingStore) collect(keep func(listing.Listing) bool) []listing.Listing {
	var out []listing.Listing
	for _, l := range s.byID {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeadLetterStore is an in-memory listing.DeadLetterStore.
type DeadLetterStore struct {
	mu       sync.Mutex
	entries  []listing.DeadLetterEntry
	replayed map[uuid.UUID]bool
}

// NewDeadLetterStore returns an empty in-memory dead-letter log.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{replayed: make(map[uuid.UUID]bool)}
}

// Append records a new failure for the given stage.
func (s *DeadLetterStore) Append(_ context.Context, stage listing.Stage, payload any, reason string) (uuid.UUID, error) {
	if !stage.Valid() {
		return uuid.Nil, fmt.Errorf("unknown dead-letter stage %q", stage)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal dead-letter payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	e := listing.DeadLetterEntry{
		ID:          uuid.New(),
		Stage:       stage,
		Payload:     body,
		ErrorReason: reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entries = append(s.entries, e)
	return e.ID, nil
}

// ListByStage returns up to limit live entries for a stage, oldest first.
func (s *DeadLetterStore) ListByStage(_ context.Context, stage listing.Stage, limit int) ([]listing.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []listing.DeadLetterEntry
	for _, e := range s.entries {
		if e.Stage != stage || s.replayed[e.ID] {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkReplayed archives an entry after a successful replay.
func (s *DeadLetterStore) MarkReplayed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id && !s.replayed[id] {
			s.replayed[id] = true
			return nil
		}
	}
	return listing.ErrNotFound
}

// Fail increments the entry's attempt count after a failed replay.
func (s *DeadLetterStore) Fail(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id && !s.replayed[id] {
			s.entries[i].AttemptCount++
			s.entries[i].ErrorReason = reason
			s.entries[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return listing.ErrNotFound
}
