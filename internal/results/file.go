package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lattiam/ecswait/internal/fsutil"
	"github.com/lattiam/ecswait/internal/waiter"
)

const recordFileExt = ".json"

// FileStore keeps one JSON file per reference under a directory
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates a file store rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("result directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, encodeKey(key)+recordFileExt)
}

// Put implements Store. Files are written atomically through a temp file.
func (f *FileStore) Put(_ context.Context, res waiter.Result) error {
	rec, err := NewRecord(res, f.now())
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return fsutil.WriteFileAtomic(f.path(rec.Key), data, 0o600)
}

// Get implements Store
func (f *FileStore) Get(_ context.Context, ref waiter.DeploymentReference) (*Record, error) {
	return f.read(f.path(ref.Key()))
}

func (f *FileStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is built from an escaped key under the store directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// List implements Store
func (f *FileStore) List(_ context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	var out []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordFileExt) {
			continue
		}
		rec, err := f.read(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// Delete implements Store
func (f *FileStore) Delete(_ context.Context, ref waiter.DeploymentReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(ref.Key())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

// Close implements Store
func (f *FileStore) Close() error {
	return nil
}
