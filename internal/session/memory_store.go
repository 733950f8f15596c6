package session

import (
	"context"
	"sync"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// MemoryStore holds the snapshot in process memory. Used in tests and in
// single-process dev mode where losing the session on restart is fine.
type MemoryStore struct {
	mu      sync.Mutex
	current *auth.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, nil
	}
	copied := *m.current
	return &copied, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.current = &copied
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}
