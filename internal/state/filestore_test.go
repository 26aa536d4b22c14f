package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsFreshState(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	s, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentPage)
	assert.Empty(t, s.ProcessedCards)
	assert.NotNil(t, s.CompletedSubRegions)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	s := NewCrawlState()
	s.SetPosition("서울", "강남", 3)
	s.MarkProcessed("서울/강남/비밀의 방/키이스케이프")
	s.MarkProcessed("서울/강남/비밀의 방/키이스케이프") // idempotent
	s.MarkSubRegionDone("서울", "잠실")
	s.MarkRegionDone("제주")
	require.NoError(t, fs.Save(s))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, "서울", loaded.CurrentRegion)
	assert.Equal(t, "강남", loaded.CurrentSubRegion)
	assert.Equal(t, 3, loaded.CurrentPage)
	assert.Equal(t, int64(1), loaded.TotalCollected)
	assert.True(t, loaded.Processed("서울/강남/비밀의 방/키이스케이프"))
	assert.True(t, loaded.SubRegionDone("서울", "잠실"))
	assert.False(t, loaded.SubRegionDone("서울", "홍대"))
	assert.True(t, loaded.RegionDone("제주"))
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestLoadCorruptFileFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestLoadHandEditedFileWithNilMaps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"current_region":"부산"}`), 0o600))

	s, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "부산", s.CurrentRegion)
	assert.Equal(t, 1, s.CurrentPage)
	assert.NotNil(t, s.ProcessedCards)
	assert.NotNil(t, s.CompletedSubRegions)
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, fs.Acquire())

	// Second acquire fails while the lock is held.
	assert.Error(t, fs.Acquire())

	require.NoError(t, fs.Release())
	require.NoError(t, fs.Acquire())
	require.NoError(t, fs.Release())

	// Releasing an unheld lock is not an error.
	assert.NoError(t, fs.Release())
}
