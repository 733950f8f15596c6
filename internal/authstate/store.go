// Package authstate owns the in-process auth state: a single mutable
// State value, a subscriber list, and the latest-credential snapshot.
package authstate

import (
	"sync"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// Patch mutates a pending copy of the state. Patches only ever set
// fields; IsAuthenticated is derived after all patches are applied.
type Patch func(*auth.State)

// SetIdentity sets the current identity. Pass nil to clear.
func SetIdentity(id *auth.Identity) Patch {
	return func(s *auth.State) { s.Identity = id }
}

// SetSession sets the current session. Pass nil to clear.
func SetSession(sess *auth.Session) Patch {
	return func(s *auth.State) { s.Session = sess }
}

// SetLoading marks an in-flight transition.
func SetLoading(loading bool) Patch {
	return func(s *auth.State) { s.IsLoading = loading }
}

// SetError records the last operation error. Pass nil to clear.
func SetError(err *auth.Error) Patch {
	return func(s *auth.State) { s.LastError = err }
}

// Store is the single source of truth for auth state. All mutations go
// through Update; subscribers are notified synchronously with each new
// value, and notifications never interleave: an Update issued while a
// prior notification pass is draining is queued behind it.
type Store struct {
	mu        sync.Mutex
	state     auth.State
	subs      map[int]func(auth.State)
	nextSub   int
	notifying bool
	pending   []auth.State
}

// New creates a store in the initial lifecycle state: loading, no
// identity.
func New() *Store {
	return &Store{
		state: auth.State{IsLoading: true},
		subs:  make(map[int]func(auth.State)),
	}
}

// Snapshot returns the current state value.
func (s *Store) Snapshot() auth.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn and immediately delivers the current value,
// then every subsequent value. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(auth.State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	current := s.state
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Update applies the patches as one atomic mutation and notifies all
// subscribers. IsAuthenticated is always recomputed from the resulting
// identity, never accepted from a caller.
func (s *Store) Update(patches ...Patch) {
	s.mu.Lock()

	next := s.state
	for _, p := range patches {
		p(&next)
	}
	next.IsAuthenticated = next.Identity != nil

	s.state = next
	s.pending = append(s.pending, next)

	if s.notifying {
		// A notification pass is draining on another frame; it will
		// pick this value up. Re-entrant updates land here too.
		s.mu.Unlock()
		return
	}
	s.notifying = true

	for len(s.pending) > 0 {
		value := s.pending[0]
		s.pending = s.pending[1:]

		targets := make([]func(auth.State), 0, len(s.subs))
		for _, fn := range s.subs {
			targets = append(targets, fn)
		}

		s.mu.Unlock()
		for _, fn := range targets {
			fn(value)
		}
		s.mu.Lock()
	}

	s.notifying = false
	s.mu.Unlock()
}
