package authstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

func TestNewStartsLoading(t *testing.T) {
	s := New()

	st := s.Snapshot()
	assert.True(t, st.IsLoading)
	assert.Nil(t, st.Identity)
	assert.False(t, st.IsAuthenticated)
}

func TestIsAuthenticatedDerived(t *testing.T) {
	s := New()

	s.Update(SetIdentity(&auth.Identity{ID: "u1"}), SetLoading(false))
	assert.True(t, s.Snapshot().IsAuthenticated)

	s.Update(SetIdentity(nil))
	assert.False(t, s.Snapshot().IsAuthenticated)
}

func TestSubscribeDeliversCurrentValueImmediately(t *testing.T) {
	s := New()
	s.Update(SetIdentity(&auth.Identity{ID: "u1"}), SetLoading(false))

	var got []auth.State
	s.Subscribe(func(st auth.State) { got = append(got, st) })

	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].Identity.ID)
}

func TestSubscribeReceivesSubsequentValues(t *testing.T) {
	s := New()

	var got []auth.State
	s.Subscribe(func(st auth.State) { got = append(got, st) })

	s.Update(SetIdentity(&auth.Identity{ID: "u1"}))
	s.Update(SetIdentity(nil))

	require.Len(t, got, 3)
	assert.True(t, got[1].IsAuthenticated)
	assert.False(t, got[2].IsAuthenticated)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New()

	var count int
	unsub := s.Subscribe(func(auth.State) { count++ })
	unsub()

	s.Update(SetLoading(false))
	assert.Equal(t, 1, count) // only the immediate delivery
}

func TestReentrantUpdateDoesNotInterleave(t *testing.T) {
	s := New()

	// Subscriber reacts to the first authenticated state by clearing the
	// error. The re-entrant update must be queued, not nested.
	var order []string
	s.Subscribe(func(st auth.State) {
		if st.IsAuthenticated && st.LastError != nil {
			order = append(order, "reacting")
			s.Update(SetError(nil))
			order = append(order, "reacted")
		} else if st.IsAuthenticated {
			order = append(order, "clean")
		}
	})

	s.Update(
		SetIdentity(&auth.Identity{ID: "u1"}),
		SetError(auth.E(auth.KindProfileUnavailable, "profile store down")),
	)

	require.Equal(t, []string{"reacting", "reacted", "clean"}, order)
	assert.Nil(t, s.Snapshot().LastError)
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := New()

	var mu sync.Mutex
	var seen []auth.State
	s.Subscribe(func(st auth.State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(SetIdentity(&auth.Identity{ID: "u1"}))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, st := range seen {
		assert.Equal(t, st.Identity != nil, st.IsAuthenticated)
	}
}

func TestCredentialStoreTracksState(t *testing.T) {
	s := New()
	c := NewCredentialStore()
	c.Track(s)

	assert.Nil(t, c.Session())

	sess := &auth.Session{AccessToken: "at", UserID: "u1"}
	s.Update(SetIdentity(&auth.Identity{ID: "u1"}), SetSession(sess))

	require.NotNil(t, c.Session())
	assert.Equal(t, "at", c.Session().AccessToken)
	assert.Equal(t, "u1", c.Identity().ID)

	s.Update(SetIdentity(nil), SetSession(nil))
	assert.Nil(t, c.Session())
	assert.Nil(t, c.Identity())
}
