package authstate

import (
	"sync"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// CredentialStore holds the latest identity/session snapshot for callers
// that need point-in-time reads without subscribing (request handlers,
// outgoing clients). It is kept in sync by a Store subscription wired at
// composition time.
type CredentialStore struct {
	mu       sync.RWMutex
	identity *auth.Identity
	session  *auth.Session
}

// NewCredentialStore returns an empty credential snapshot holder.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Track subscribes the credential store to st so every published state
// refreshes the snapshot. Returns the unsubscribe function.
func (c *CredentialStore) Track(st *Store) func() {
	return st.Subscribe(func(s auth.State) {
		c.mu.Lock()
		c.identity = s.Identity
		c.session = s.Session
		c.mu.Unlock()
	})
}

// Identity returns the current identity, or nil when anonymous.
func (c *CredentialStore) Identity() *auth.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Session returns the current session, or nil when anonymous.
func (c *CredentialStore) Session() *auth.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}
