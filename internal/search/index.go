// Package search combines keyword and vector similarity into one ranking
// over the listing corpus.
package search

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/roomscout/listing-corpus/internal/listing"
)

// indexDoc is the shape bleve indexes per listing.
type indexDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// KeywordIndex is a bleve index over listing name and description.
type KeywordIndex struct {
	index bleve.Index
}

// NewKeywordIndex creates or opens a bleve index at path. An empty path
// builds a memory-only index, which is what tests and single-shot query
// runs use. The standard analyzer tokenizes without stemming, so Korean
// whitespace-delimited tokens match exactly.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			index, openErr := bleve.Open(path)
			if openErr != nil {
				return nil, fmt.Errorf("open keyword index: %w", openErr)
			}
			return &KeywordIndex{index: index}, nil
		}
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textField)
	docMapping.AddFieldMappingsAt("description", textField)
	im.DefaultMapping = docMapping

	var (
		index bleve.Index
		err   error
	)
	if path == "" {
		index, err = bleve.NewMemOnly(im)
	} else {
		index, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &KeywordIndex{index: index}, nil
}

// Index adds or replaces one listing in the index.
func (k *KeywordIndex) Index(l listing.Listing) error {
	id := strconv.FormatInt(l.ID, 10)
	if err := k.index.Index(id, indexDoc{Name: l.Name, Description: l.Description}); err != nil {
		return fmt.Errorf("index listing %d: %w", l.ID, err)
	}
	return nil
}

// Sync loads every listing from the store into the index and returns how
// many were indexed.
func (k *KeywordIndex) Sync(ctx context.Context, store listing.Store) (int, error) {
	rows, err := store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load listings for indexing: %w", err)
	}
	batch := k.index.NewBatch()
	for _, l := range rows {
		if err := batch.Index(strconv.FormatInt(l.ID, 10), indexDoc{Name: l.Name, Description: l.Description}); err != nil {
			return 0, fmt.Errorf("batch listing %d: %w", l.ID, err)
		}
	}
	if err := k.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("apply index batch: %w", err)
	}
	return len(rows), nil
}

// Search runs a match query over name and description and returns listing
// ids with their raw bleve scores, best first.
func (k *KeywordIndex) Search(query string, limit int) (map[int64]float64, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := k.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	out := make(map[int64]float64, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric index id %q: %w", hit.ID, err)
		}
		out[id] = hit.Score
	}
	return out, nil
}

// DocCount returns the number of indexed listings.
func (k *KeywordIndex) DocCount() (uint64, error) {
	return k.index.DocCount()
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	return k.index.Close()
}
