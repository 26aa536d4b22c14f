package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/listing-corpus/internal/listing"
)

func TestUpsertPreservesEmbeddingOnUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewListingStore()

	l := listing.Listing{Name: "비밀의 방", Region: "서울", SubRegion: "강남", Company: "키이스케이프", PricePerPerson: 25000}
	id, err := store.Upsert(ctx, l)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(ctx, id, []float32{0.1, 0.2}))

	// Re-crawl updates mutable fields but must not wipe the vector.
	l.PricePerPerson = 27000
	id2, err := store.Upsert(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 27000, got.PricePerPerson)
	assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
}

func TestSelectMissingEmbedding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewListingStore()

	for _, name := range []string{"a", "b", "c"} {
		_, err := store.Upsert(ctx, listing.Listing{Name: name, Region: "서울", SubRegion: "강남", Company: "x"})
		require.NoError(t, err)
	}
	require.NoError(t, store.SetEmbedding(ctx, 2, []float32{1}))

	missing, err := store.SelectMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, int64(1), missing[0].ID)
	assert.Equal(t, int64(3), missing[1].ID)

	limited, err := store.SelectMissingEmbedding(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	embedded, err := store.ListEmbedded(ctx)
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, int64(2), embedded[0].ID)
}

func TestListAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewListingStore()

	for _, name := range []string{"a", "b"} {
		_, err := store.Upsert(ctx, listing.Listing{Name: name, Region: "서울", SubRegion: "강남", Company: "x"})
		require.NoError(t, err)
	}
	require.NoError(t, store.SetEmbedding(ctx, 1, []float32{1}))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewListingStore().Get(context.Background(), 99)
	assert.ErrorIs(t, err, listing.ErrNotFound)
}

func TestDeadLetterLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewDeadLetterStore()

	id1, err := store.Append(ctx, listing.StageVectorize, listing.VectorizePayload{ListingID: 1}, "boom")
	require.NoError(t, err)
	id2, err := store.Append(ctx, listing.StageVectorize, listing.VectorizePayload{ListingID: 2}, "boom")
	require.NoError(t, err)
	_, err = store.Append(ctx, listing.StageCrawl, map[string]string{"name": "x"}, "parse")
	require.NoError(t, err)

	live, err := store.ListByStage(ctx, listing.StageVectorize, 10)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, id1, live[0].ID) // oldest first

	require.NoError(t, store.Fail(ctx, id2, "still broken"))
	require.NoError(t, store.MarkReplayed(ctx, id1))

	live, err = store.ListByStage(ctx, listing.StageVectorize, 10)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, id2, live[0].ID)
	assert.Equal(t, 1, live[0].AttemptCount)
	assert.Equal(t, "still broken", live[0].ErrorReason)

	// Archived entries cannot be replayed twice.
	assert.ErrorIs(t, store.MarkReplayed(ctx, id1), listing.ErrNotFound)
}

func TestAppendRejectsUnknownStage(t *testing.T) {
	t.Parallel()

	_, err := NewDeadLetterStore().Append(context.Background(), listing.Stage("weird"), nil, "x")
	assert.Error(t, err)
}
