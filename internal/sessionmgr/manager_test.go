package sessionmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/authstate"
	"github.com/LuisNSantana/hums-authd/internal/profile"
	"github.com/LuisNSantana/hums-authd/internal/provider"
)

// fakeProvider scripts GetSession/GetUser/RefreshSession responses and
// records calls.
type fakeProvider struct {
	mu sync.Mutex

	session    *auth.Session
	sessionErr error
	identity   *auth.Identity
	userErr    error
	refreshed  *auth.Session
	refreshErr error

	refreshCalls int
	events       *provider.Emitter
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: provider.NewEmitter()}
}

func (f *fakeProvider) SignUp(context.Context, provider.SignUpParams) (*auth.Identity, *auth.Session, error) {
	return nil, nil, errors.New("not scripted")
}

func (f *fakeProvider) SignInWithPassword(context.Context, provider.Credentials) (*auth.Session, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeProvider) SignInWithOTP(context.Context, string, string) error { return nil }

func (f *fakeProvider) SignInWithOAuth(context.Context, string, string) (string, error) {
	return "", nil
}

func (f *fakeProvider) SignOut(context.Context) error { return nil }

func (f *fakeProvider) GetSession(context.Context) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeProvider) GetUser(context.Context, string) (*auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, f.userErr
}

func (f *fakeProvider) RefreshSession(context.Context, string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshed, f.refreshErr
}

func (f *fakeProvider) ResetPasswordForEmail(context.Context, string, string) error { return nil }

func (f *fakeProvider) UpdateUser(context.Context, string, provider.UserAttributes) (*auth.Identity, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeProvider) Resend(context.Context, string, string) error { return nil }

func (f *fakeProvider) OnAuthStateChange(fn func(provider.ChangeEvent)) provider.Unsubscribe {
	return f.events.Subscribe(fn)
}

// fakeProfileStore is an in-memory profile.Store for wiring a real
// Reconciler into the manager.
type fakeProfileStore struct {
	mu      sync.Mutex
	rows    map[string]profile.Record
	failAll bool
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{rows: make(map[string]profile.Record)}
}

func (s *fakeProfileStore) SelectByID(_ context.Context, id string) (*profile.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errors.New("store down")
	}
	rec, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeProfileStore) Insert(_ context.Context, rec profile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	if _, ok := s.rows[rec.ID]; ok {
		return profile.ErrDuplicate
	}
	s.rows[rec.ID] = rec
	return nil
}

func (s *fakeProfileStore) Update(_ context.Context, rec profile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.ID] = rec
	return nil
}

func (s *fakeProfileStore) SelectAll(context.Context, profile.Filter) ([]profile.Record, error) {
	return nil, nil
}

func sessionExpiring(in time.Duration) *auth.Session {
	return &auth.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(in).Unix(),
		UserID:       "user-1",
	}
}

func testIdentity() *auth.Identity {
	return &auth.Identity{ID: "user-1", Email: "ann@example.com"}
}

func newTestManager(p provider.Provider, store profile.Store, opts ...Option) (*Manager, *authstate.Store) {
	states := authstate.New()
	m := New(p, states, profile.NewReconciler(store), opts...)
	return m, states
}

func TestInitializeAnonymous(t *testing.T) {
	p := newFakeProvider()
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	require.NoError(t, m.Initialize(context.Background()))

	st := states.Snapshot()
	assert.False(t, st.IsLoading)
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Session)
	assert.Nil(t, st.LastError)
}

func TestInitializeAuthenticated(t *testing.T) {
	p := newFakeProvider()
	p.session = sessionExpiring(time.Hour)
	p.identity = testIdentity()
	store := newFakeProfileStore()
	m, states := newTestManager(p, store)
	defer m.Close()

	require.NoError(t, m.Initialize(context.Background()))

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Equal(t, "user-1", st.Identity.ID)
	assert.Equal(t, "access-1", st.Session.AccessToken)
	assert.Nil(t, st.LastError)

	// Reconciliation created the profile row exactly once.
	rec, err := store.SelectByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestInitializeProviderError(t *testing.T) {
	p := newFakeProvider()
	p.sessionErr = auth.E(auth.KindNetworkUnavailable, "provider unreachable")
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	err := m.Initialize(context.Background())
	require.Error(t, err)

	st := states.Snapshot()
	assert.False(t, st.IsLoading)
	assert.False(t, st.IsAuthenticated)
	require.NotNil(t, st.LastError)
	assert.Equal(t, auth.KindNetworkUnavailable, st.LastError.Kind)
}

func TestReconcileFailOpenOnProfileFailure(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	store := newFakeProfileStore()
	store.failAll = true
	m, states := newTestManager(p, store)
	defer m.Close()

	err := m.ReconcileAndPublish(context.Background(), sessionExpiring(time.Hour))
	require.NoError(t, err, "fail-open: profile degradation does not block auth")

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated)
	require.NotNil(t, st.LastError)
	assert.Equal(t, auth.KindProfileUnavailable, st.LastError.Kind)
}

func TestReconcileFailClosedOnProfileFailure(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	store := newFakeProfileStore()
	store.failAll = true
	m, states := newTestManager(p, store, WithFailClosed(true))
	defer m.Close()

	err := m.ReconcileAndPublish(context.Background(), sessionExpiring(time.Hour))
	require.Error(t, err)

	st := states.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.Identity)
	require.NotNil(t, st.LastError)
	assert.Equal(t, auth.KindProfileUnavailable, st.LastError.Kind)
}

func TestReconcileIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	store := newFakeProfileStore()
	m, states := newTestManager(p, store)
	defer m.Close()

	sess := sessionExpiring(time.Hour)
	require.NoError(t, m.ReconcileAndPublish(context.Background(), sess))
	require.NoError(t, m.ReconcileAndPublish(context.Background(), sess))

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Len(t, store.rows, 1)
}

func TestChangeListenerSignOut(t *testing.T) {
	p := newFakeProvider()
	p.session = sessionExpiring(time.Hour)
	p.identity = testIdentity()
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	require.NoError(t, m.Initialize(context.Background()))
	require.True(t, states.Snapshot().IsAuthenticated)

	p.events.Emit(provider.ChangeEvent{Type: provider.ChangeSignedOut})

	st := states.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Session)
	assert.Nil(t, st.LastError)
}

func TestChangeListenerTokenRefreshed(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	require.NoError(t, m.Initialize(context.Background()))

	next := sessionExpiring(2 * time.Hour)
	next.AccessToken = "access-2"
	p.events.Emit(provider.ChangeEvent{Type: provider.ChangeTokenRefreshed, Session: next})

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "access-2", st.Session.AccessToken)
}

func TestIsNearExpiry(t *testing.T) {
	m, _ := newTestManager(newFakeProvider(), newFakeProfileStore())
	defer m.Close()
	now := time.Now()

	tests := []struct {
		name string
		sess *auth.Session
		want bool
	}{
		{"nil session", nil, false},
		{"well before threshold", sessionExpiring(time.Hour), false},
		{"just outside threshold", sessionExpiring(6 * time.Minute), false},
		{"inside threshold", sessionExpiring(4 * time.Minute), true},
		{"already expired", sessionExpiring(-time.Minute), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.IsNearExpiry(tc.sess, now))
		})
	}
}

func TestRefreshIfNeededSkipsHealthySession(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	require.NoError(t, m.ReconcileAndPublish(context.Background(), sessionExpiring(time.Hour)))
	require.NoError(t, m.RefreshIfNeeded(context.Background()))
	assert.Equal(t, 0, p.refreshCalls)
	assert.Equal(t, "access-1", states.Snapshot().Session.AccessToken)
}

func TestRefreshIfNeededRefreshesNearExpiry(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	p.refreshed = sessionExpiring(time.Hour)
	p.refreshed.AccessToken = "access-2"
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	require.NoError(t, m.ReconcileAndPublish(context.Background(), sessionExpiring(2*time.Minute)))
	require.NoError(t, m.RefreshIfNeeded(context.Background()))

	assert.Equal(t, 1, p.refreshCalls)
	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "access-2", st.Session.AccessToken)
	assert.Nil(t, st.LastError)
}

func TestRefreshFailureKeepsStaleSession(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	p.refreshErr = auth.E(auth.KindNetworkUnavailable, "provider unreachable")
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	require.NoError(t, m.ReconcileAndPublish(context.Background(), sessionExpiring(2*time.Minute)))
	err := m.RefreshIfNeeded(context.Background())
	require.Error(t, err)

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated, "transient refresh failure must not sign the user out")
	assert.Equal(t, "access-1", st.Session.AccessToken)
	require.NotNil(t, st.LastError)
	assert.True(t, auth.Retryable(st.LastError.Kind))
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	m, states := newTestManager(p, newFakeProfileStore())
	defer m.Close()

	sess := sessionExpiring(2 * time.Minute)
	sess.RefreshToken = ""
	require.NoError(t, m.ReconcileAndPublish(context.Background(), sess))

	err := m.RefreshIfNeeded(context.Background())
	require.Error(t, err)
	assert.Equal(t, auth.KindTokenExpiredNoRefresh, auth.KindOf(err))
	assert.Equal(t, 0, p.refreshCalls)

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated, "session stays published until the provider invalidates it")
}

func TestCloseUnsubscribesListener(t *testing.T) {
	p := newFakeProvider()
	p.identity = testIdentity()
	m, states := newTestManager(p, newFakeProfileStore())

	require.NoError(t, m.Initialize(context.Background()))
	m.Close()

	p.events.Emit(provider.ChangeEvent{
		Type:    provider.ChangeSignedIn,
		Session: sessionExpiring(time.Hour),
	})
	assert.False(t, states.Snapshot().IsAuthenticated)
}
