package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore loads and saves the crawl checkpoint as a JSON file. A sibling
// .lock file guards against two crawler processes sharing one checkpoint.
type FileStore struct {
	path     string
	lockPath string
}

// NewFileStore returns a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Acquire takes the advisory lock. It fails if another process holds it;
// a stale lock from a crashed run must be removed by the operator.
func (fs *FileStore) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(fs.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("state lock %s already held (remove it if no crawler is running)", fs.lockPath)
		}
		return fmt.Errorf("create state lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f.Close()
}

// Release drops the advisory lock.
func (fs *FileStore) Release() error {
	if err := os.Remove(fs.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state lock: %w", err)
	}
	return nil
}

// Load reads the checkpoint from disk. A missing file yields a fresh state
// so a first run needs no setup.
func (fs *FileStore) Load() (*CrawlState, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCrawlState(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var s CrawlState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", fs.path, err)
	}
	s.normalize()
	return &s, nil
}

// Save writes the checkpoint atomically: a temp file in the same directory
// is renamed over the target so a crash never leaves a half-written file.
func (fs *FileStore) Save(s *CrawlState) error {
	s.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
