package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomscout/listing-corpus/internal/listing"
)

// DeadLetterStore implements listing.DeadLetterStore using Postgres. Replayed
// entries are archived in place by setting replayed_at, so the log keeps a
// full failure history while live queries skip the archive.
type DeadLetterStore struct {
	pool querier
}

// NewDeadLetterStore creates a Postgres-backed DeadLetterStore from a DSN.
func NewDeadLetterStore(ctx context.Context, dsn string) (*DeadLetterStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DeadLetterStore{pool: pool}, nil
}

// NewDeadLetterStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDeadLetterStoreWithPool(pool querier) (*DeadLetterStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DeadLetterStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DeadLetterStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Append records a new failure for the given stage.
func (s *DeadLetterStore) Append(ctx context.Context, stage listing.Stage, payload any, reason string) (uuid.UUID, error) {
	if !stage.Valid() {
		return uuid.Nil, fmt.Errorf("unknown dead-letter stage %q", stage)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal dead-letter payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO dead_letters (id, stage, payload, error_reason, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, now(), now());
	`
	if _, err := s.pool.Exec(ctx, query, id, string(stage), body, reason); err != nil {
		return uuid.Nil, fmt.Errorf("append dead letter: %w", err)
	}
	return id, nil
}

// ListByStage returns up to limit live (not yet replayed) entries for a
// stage, oldest first.
func (s *DeadLetterStore) ListByStage(ctx context.Context, stage listing.Stage, limit int) ([]listing.DeadLetterEntry, error) {
	query := `
		SELECT id, stage, payload, error_reason, attempt_count, created_at, updated_at
		FROM dead_letters
		WHERE stage = $1 AND replayed_at IS NULL
		ORDER BY created_at
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, string(stage), limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []listing.DeadLetterEntry
	for rows.Next() {
		var e listing.DeadLetterEntry
		if err := rows.Scan(&e.ID, &e.Stage, &e.Payload, &e.ErrorReason, &e.AttemptCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan dead-letter row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead-letter rows: %w", err)
	}
	return out, nil
}

// MarkReplayed archives an entry after a successful replay.
func (s *DeadLetterStore) MarkReplayed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE dead_letters SET replayed_at = now(), updated_at = now() WHERE id = $1 AND replayed_at IS NULL;`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark dead letter replayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return listing.ErrNotFound
	}
	return nil
}

// Fail increments the entry's attempt count after a failed replay and leaves
// it live for a later run.
func (s *DeadLetterStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE dead_letters
		SET attempt_count = attempt_count + 1, error_reason = $1, updated_at = now()
		WHERE id = $2 AND replayed_at IS NULL;
	`
	tag, err := s.pool.Exec(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("record dead-letter failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return listing.ErrNotFound
	}
	return nil
}
