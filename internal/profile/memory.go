package profile

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used in dev mode, when no
// database is configured.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Record)}
}

func (m *MemoryStore) SelectByID(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Insert(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; ok {
		return ErrDuplicate
	}
	m.rows[r.ID] = r
	return nil
}

func (m *MemoryStore) Update(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *MemoryStore) SelectAll(_ context.Context, f Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.rows {
		if f.Deactivated != nil && rec.Deactivated != *f.Deactivated {
			continue
		}
		out = append(out, rec)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
