package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomscout/listing-corpus/internal/listing"
)

// querier is the subset of pgxpool.Pool the stores use. Tests substitute a
// pgxmock pool through it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ListingStore implements listing.Store using Postgres. Embeddings are kept
// in a float4[] column alongside the row.
type ListingStore struct {
	pool querier
}

// NewListingStore creates a Postgres-backed ListingStore from a DSN.
func NewListingStore(ctx context.Context, dsn string, maxConns, minConns int32) (*ListingStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	if minConns > 0 {
		poolCfg.MinConns = minConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: pool}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(pool querier) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const listingColumns = `
	id, name, region, sub_region, theme, duration_minutes, price_per_person,
	company, rating, image_url, source_url, booking_url, difficulty_level,
	activity_level, group_size_min, group_size_max, description, embedding,
	created_at, updated_at`

// Upsert inserts the listing or updates the existing row on its natural key
// (name, region, sub_region, company). The embedding and created_at columns
// are never touched by an update, so a re-crawl cannot wipe out a vector.
func (s *ListingStore) Upsert(ctx context.Context, l listing.Listing) (int64, error) {
	query := `
		INSERT INTO listings (
			name, region, sub_region, theme, duration_minutes, price_per_person,
			company, rating, image_url, source_url, booking_url, difficulty_level,
			activity_level, group_size_min, group_size_max, description,
			created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now()
		)
		ON CONFLICT (name, region, sub_region, company) DO UPDATE SET
			theme = EXCLUDED.theme,
			duration_minutes = EXCLUDED.duration_minutes,
			price_per_person = EXCLUDED.price_per_person,
			rating = EXCLUDED.rating,
			image_url = EXCLUDED.image_url,
			source_url = EXCLUDED.source_url,
			booking_url = EXCLUDED.booking_url,
			difficulty_level = EXCLUDED.difficulty_level,
			activity_level = EXCLUDED.activity_level,
			group_size_min = EXCLUDED.group_size_min,
			group_size_max = EXCLUDED.group_size_max,
			description = EXCLUDED.description,
			updated_at = now()
		RETURNING id;
	`
	var id int64
	err := s.pool.QueryRow(ctx, query,
		l.Name, l.Region, l.SubRegion, l.Theme, l.DurationMinutes, l.PricePerPerson,
		l.Company, l.Rating, l.ImageURL, l.SourceURL, l.BookingURL, l.DifficultyLevel,
		l.ActivityLevel, l.GroupSizeMin, l.GroupSizeMax, l.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert listing %q: %w", l.Name, err)
	}
	return id, nil
}

// Get returns a listing by id.
func (s *ListingStore) Get(ctx context.Context, id int64) (listing.Listing, error) {
	query := `SELECT` + listingColumns + ` FROM listings WHERE id = $1;`
	row := s.pool.QueryRow(ctx, query, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return listing.Listing{}, listing.ErrNotFound
		}
		return listing.Listing{}, fmt.Errorf("get listing %d: %w", id, err)
	}
	return l, nil
}

// SelectMissingEmbedding returns up to limit listings whose embedding is
// still null, in stable id order.
func (s *ListingStore) SelectMissingEmbedding(ctx context.Context, limit int) ([]listing.Listing, error) {
	query := `SELECT` + listingColumns + `
		FROM listings
		WHERE embedding IS NULL
		ORDER BY id
		LIMIT $1;`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select missing embeddings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// SetEmbedding writes only the embedding column of the given row.
func (s *ListingStore) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	query := `UPDATE listings SET embedding = $1, updated_at = now() WHERE id = $2;`
	tag, err := s.pool.Exec(ctx, query, vec, id)
	if err != nil {
		return fmt.Errorf("set embedding for listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return listing.ErrNotFound
	}
	return nil
}

// ListEmbedded returns all listings that carry an embedding.
func (s *ListingStore) ListEmbedded(ctx context.Context) ([]listing.Listing, error) {
	query := `SELECT` + listingColumns + `
		FROM listings
		WHERE embedding IS NOT NULL
		ORDER BY id;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list embedded listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// ListAll returns every listing in stable id order.
func (s *ListingStore) ListAll(ctx context.Context) ([]listing.Listing, error) {
	query := `SELECT` + listingColumns + ` FROM listings ORDER BY id;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// Count returns the total number of listings.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM listings;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func scanListing(row pgx.Row) (listing.Listing, error) {
	var l listing.Listing
	err := row.Scan(
		&l.ID, &l.Name, &l.Region, &l.SubRegion, &l.Theme, &l.DurationMinutes,
		&l.PricePerPerson, &l.Company, &l.Rating, &l.ImageURL, &l.SourceURL,
		&l.BookingURL, &l.DifficultyLevel, &l.ActivityLevel, &l.GroupSizeMin,
		&l.GroupSizeMax, &l.Description, &l.Embedding, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

func collectListings(rows pgx.Rows) ([]listing.Listing, error) {
	var out []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing rows: %w", err)
	}
	return out, nil
}
