package records

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[Kind][]Record
	writes int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[Kind][]Record)}
}

// Create stores a new record and returns its id.
func (m *MemoryStore) Create(_ context.Context, kind Kind, rec Record) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("records: unknown kind %q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.rows[kind] = append(m.rows[kind], rec)
	m.writes++
	return rec.ID, nil
}

// Latest returns the user's most recent record of kind.
func (m *MemoryStore) Latest(_ context.Context, kind Kind, userID int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.latestIndex(kind, userID)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	return m.rows[kind][i], nil
}

// UpdateLatest patches the user's most recent record of kind.
func (m *MemoryStore) UpdateLatest(_ context.Context, kind Kind, userID int64, patch Patch) (Record, error) {
	if err := patch.Validate(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.latestIndex(kind, userID)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	patch.Apply(&m.rows[kind][i])
	m.writes++
	return m.rows[kind][i], nil
}

// All returns a copy of every record of kind in insertion order.
func (m *MemoryStore) All(kind Kind) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.rows[kind]...)
}

// Writes returns the number of successful create and update calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryStore) latestIndex(kind Kind, userID int64) int {
	best := -1
	for i, r := range m.rows[kind] {
		if r.UserID != userID {
			continue
		}
		if best < 0 || !r.CreatedAt.Before(m.rows[kind][best].CreatedAt) {
			best = i
		}
	}
	return best
}
