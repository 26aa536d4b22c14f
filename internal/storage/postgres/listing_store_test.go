package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/listing-corpus/internal/listing"
)

var listingRowColumns = []string{
	"id", "name", "region", "sub_region", "theme", "duration_minutes",
	"price_per_person", "company", "rating", "image_url", "source_url",
	"booking_url", "difficulty_level", "activity_level", "group_size_min",
	"group_size_max", "description", "embedding", "created_at", "updated_at",
}

func listingRow(mock pgxmock.PgxPoolIface, l listing.Listing) *pgxmock.Rows {
	return mock.NewRows(listingRowColumns).AddRow(
		l.ID, l.Name, l.Region, l.SubRegion, l.Theme, l.DurationMinutes,
		l.PricePerPerson, l.Company, l.Rating, l.ImageURL, l.SourceURL,
		l.BookingURL, l.DifficultyLevel, l.ActivityLevel, l.GroupSizeMin,
		l.GroupSizeMax, l.Description, l.Embedding, l.CreatedAt, l.UpdatedAt,
	)
}

func sampleListing() listing.Listing {
	rating := 4.5
	now := time.Unix(1700000000, 0).UTC()
	return listing.Listing{
		ID:              7,
		Name:            "비밀의 방",
		Region:          "서울",
		SubRegion:       "강남",
		Theme:           "미스터리",
		DurationMinutes: 60,
		PricePerPerson:  25000,
		Company:         "키이스케이프",
		Rating:          &rating,
		BookingURL:      "https://example.com/book/7",
		DifficultyLevel: 3,
		ActivityLevel:   2,
		GroupSizeMin:    2,
		GroupSizeMax:    4,
		Description:     "긴장감 넘치는 미스터리 테마",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestUpsertReturnsID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	l := sampleListing()
	mock.ExpectQuery("INSERT INTO listings").
		WithArgs(
			l.Name, l.Region, l.SubRegion, l.Theme, l.DurationMinutes, l.PricePerPerson,
			l.Company, l.Rating, l.ImageURL, l.SourceURL, l.BookingURL, l.DifficultyLevel,
			l.ActivityLevel, l.GroupSizeMin, l.GroupSizeMax, l.Description,
		).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Upsert(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").
		WithArgs(int64(42)).
		WillReturnRows(mock.NewRows(listingRowColumns))

	_, err = store.Get(context.Background(), 42)
	assert.ErrorIs(t, err, listing.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectMissingEmbedding(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	l := sampleListing()
	mock.ExpectQuery("WHERE embedding IS NULL").
		WithArgs(10).
		WillReturnRows(listingRow(mock, l))

	got, err := store.SelectMissingEmbedding(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, l.Name, got[0].Name)
	assert.Equal(t, l.Company, got[0].Company)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEmbedding(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	vec := []float32{0.1, 0.2, 0.3}
	mock.ExpectExec("UPDATE listings SET embedding").
		WithArgs(vec, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetEmbedding(context.Background(), 7, vec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEmbeddingMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE listings SET embedding").
		WithArgs([]float32{0.5}, int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.SetEmbedding(context.Background(), 404, []float32{0.5})
	assert.ErrorIs(t, err, listing.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAll(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	l := sampleListing()
	mock.ExpectQuery("FROM listings ORDER BY id").
		WillReturnRows(listingRow(mock, l))

	got, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, l.Name, got[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT count").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
