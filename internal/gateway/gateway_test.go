package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/authstate"
	"github.com/LuisNSantana/hums-authd/internal/profile"
	"github.com/LuisNSantana/hums-authd/internal/provider/local"
	"github.com/LuisNSantana/hums-authd/internal/sessionmgr"
)

type memProfileStore struct {
	mu      sync.Mutex
	rows    map[string]profile.Record
	inserts int
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{rows: make(map[string]profile.Record)}
}

func (s *memProfileStore) SelectByID(_ context.Context, id string) (*profile.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memProfileStore) Insert(_ context.Context, rec profile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[rec.ID]; ok {
		return profile.ErrDuplicate
	}
	s.inserts++
	s.rows[rec.ID] = rec
	return nil
}

func (s *memProfileStore) Update(_ context.Context, rec profile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.ID] = rec
	return nil
}

func (s *memProfileStore) SelectAll(context.Context, profile.Filter) ([]profile.Record, error) {
	return nil, nil
}

func (s *memProfileStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

func newTestGateway(t *testing.T) (*Gateway, *local.Provider, *authstate.Store, *memProfileStore) {
	t.Helper()
	p := local.New()
	states := authstate.New()
	store := newMemProfileStore()
	reconciler := profile.NewReconciler(store)
	mgr := sessionmgr.New(p, states, reconciler)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.Initialize(context.Background()))
	return New(p, mgr, states, reconciler), p, states, store
}

func TestSignUpPublishesAuthenticatedState(t *testing.T) {
	gw, _, states, store := newTestGateway(t)

	identity, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", map[string]any{
		"name": "Ann",
	})
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "ann@example.com", identity.Email)

	st := states.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Nil(t, st.LastError)

	rec, err := store.SelectByID(context.Background(), identity.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Ann", rec.DisplayName)
}

func TestSignUpThenSignInEnsuresProfileOnce(t *testing.T) {
	gw, _, _, store := newTestGateway(t)

	_, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", map[string]any{"name": "Ann"})
	require.NoError(t, err)
	require.NoError(t, gw.SignOut(context.Background()))
	require.NoError(t, gw.SignIn(context.Background(), "ann@example.com", "hunter2hunter2"))

	assert.Equal(t, 1, store.insertCount(), "ensure is a no-op when the row exists")
}

func TestSignUpValidationShortCircuits(t *testing.T) {
	gw, _, states, _ := newTestGateway(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing at sign", "annexample.com", "hunter2hunter2"},
		{"empty local part", "@example.com", "hunter2hunter2"},
		{"short password", "ann@example.com", "short"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gw.SignUp(context.Background(), tc.email, tc.password, nil)
			require.Error(t, err)
			assert.Equal(t, auth.KindValidationFailed, auth.KindOf(err))

			st := states.Snapshot()
			assert.False(t, st.IsLoading)
			require.NotNil(t, st.LastError)
			assert.Equal(t, auth.KindValidationFailed, st.LastError.Kind)
		})
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	gw, _, states, _ := newTestGateway(t)

	_, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", nil)
	require.NoError(t, err)
	require.NoError(t, gw.SignOut(context.Background()))

	err = gw.SignIn(context.Background(), "ann@example.com", "wrong-password")
	require.Error(t, err)

	// The failure surfaces both on the return value and on the
	// published state.
	var authErr *auth.Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, auth.KindInvalidCredentials, authErr.Kind)

	st := states.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	require.NotNil(t, st.LastError)
	assert.Equal(t, auth.KindInvalidCredentials, st.LastError.Kind)
}

func TestSignInUnconfirmedEmail(t *testing.T) {
	p := local.New(local.WithAutoConfirm(false))
	states := authstate.New()
	store := newMemProfileStore()
	reconciler := profile.NewReconciler(store)
	mgr := sessionmgr.New(p, states, reconciler)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.Initialize(context.Background()))
	gw := New(p, mgr, states, reconciler)

	identity, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", nil)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.False(t, states.Snapshot().IsAuthenticated, "unconfirmed sign-up yields no session")

	err = gw.SignIn(context.Background(), "ann@example.com", "hunter2hunter2")
	require.Error(t, err)
	assert.Equal(t, auth.KindEmailNotConfirmed, auth.KindOf(err))

	p.Confirm("ann@example.com")
	require.NoError(t, gw.SignIn(context.Background(), "ann@example.com", "hunter2hunter2"))
	assert.True(t, states.Snapshot().IsAuthenticated)
}

func TestSignOutClearsState(t *testing.T) {
	gw, _, states, store := newTestGateway(t)

	identity, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", nil)
	require.NoError(t, err)
	require.True(t, states.Snapshot().IsAuthenticated)

	require.NoError(t, gw.SignOut(context.Background()))

	st := states.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Session)
	assert.Nil(t, st.LastError)

	// Sign-out clears credentials only; the profile row survives.
	rec, err := store.SelectByID(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestSendMagicLink(t *testing.T) {
	gw, p, _, _ := newTestGateway(t)

	require.NoError(t, gw.SendMagicLink(context.Background(), "ann@example.com", "http://localhost/after"))
	assert.Equal(t, "ann@example.com", p.LastOTPEmail)

	err := gw.SendMagicLink(context.Background(), "not-an-email", "")
	assert.Equal(t, auth.KindValidationFailed, auth.KindOf(err))
}

func TestStartOAuth(t *testing.T) {
	gw, _, states, _ := newTestGateway(t)

	url, err := gw.StartOAuth(context.Background(), "google", "http://localhost/after")
	require.NoError(t, err)
	assert.Contains(t, url, "google")
	assert.False(t, states.Snapshot().IsLoading)
}

func TestResetPassword(t *testing.T) {
	gw, p, _, _ := newTestGateway(t)

	_, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", nil)
	require.NoError(t, err)

	require.NoError(t, gw.ResetPassword(context.Background(), "ann@example.com", "http://localhost/reset"))
	assert.Equal(t, "ann@example.com", p.LastRecoverEmail)
}

func TestUpdatePassword(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)

	_, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", nil)
	require.NoError(t, err)

	require.NoError(t, gw.UpdatePassword(context.Background(), "correct-horse-battery"))
	require.NoError(t, gw.SignOut(context.Background()))

	err = gw.SignIn(context.Background(), "ann@example.com", "hunter2hunter2")
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	require.NoError(t, gw.SignIn(context.Background(), "ann@example.com", "correct-horse-battery"))
}

func TestUpdatePasswordWithoutSession(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)

	err := gw.UpdatePassword(context.Background(), "correct-horse-battery")
	require.Error(t, err)
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
}

func TestResendConfirmation(t *testing.T) {
	p := local.New(local.WithAutoConfirm(false))
	states := authstate.New()
	reconciler := profile.NewReconciler(newMemProfileStore())
	mgr := sessionmgr.New(p, states, reconciler)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.Initialize(context.Background()))
	gw := New(p, mgr, states, reconciler)

	_, err := gw.SignUp(context.Background(), "ann@example.com", "hunter2hunter2", nil)
	require.NoError(t, err)

	require.NoError(t, gw.ResendConfirmation(context.Background(), "ann@example.com"))
	assert.Equal(t, "signup:ann@example.com", p.LastResend)
}
