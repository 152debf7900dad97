package results

import (
	"context"
	"sync"
	"time"

	"github.com/lattiam/ecswait/internal/waiter"
)

// MemoryStore keeps results in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Put implements Store
func (m *MemoryStore) Put(_ context.Context, res waiter.Result) error {
	rec, err := NewRecord(res, m.now())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec
	return nil
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, ref waiter.DeploymentReference) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[ref.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List implements Store
func (m *MemoryStore) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sortRecords(out)
	return out, nil
}

// Delete implements Store
func (m *MemoryStore) Delete(_ context.Context, ref waiter.DeploymentReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, ref.Key())
	return nil
}

// Close implements Store
func (m *MemoryStore) Close() error {
	return nil
}
