// Package sessionmgr orchestrates the session lifecycle: startup
// restoration, provider-pushed change handling, and silent near-expiry
// refresh.
package sessionmgr

import (
	"context"
	"sync"
	"time"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/authstate"
	"github.com/LuisNSantana/hums-authd/internal/logger"
	"github.com/LuisNSantana/hums-authd/internal/profile"
	"github.com/LuisNSantana/hums-authd/internal/provider"
)

const (
	// DefaultExpiryThreshold is the remaining-lifetime bound below which
	// a session counts as near expiry.
	DefaultExpiryThreshold = 5 * time.Minute

	// DefaultRefreshInterval is how often the background loop re-checks
	// the current session.
	DefaultRefreshInterval = time.Minute

	// defaultOpTimeout bounds provider calls made from background paths
	// (change listener, refresh loop) that have no caller deadline.
	defaultOpTimeout = 15 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithExpiryThreshold overrides the near-expiry threshold.
func WithExpiryThreshold(d time.Duration) Option {
	return func(m *Manager) { m.threshold = d }
}

// WithRefreshInterval overrides the background check interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithFailClosed makes profile reconciliation failures block
// authentication instead of degrading it. The default is fail-open: the
// provider's session is authoritative and the profile store is
// best-effort.
func WithFailClosed(on bool) Option {
	return func(m *Manager) { m.failClosed = on }
}

// Manager drives the auth state machine. All state leaves through the
// state store's single mutation entry point; Manager and the operations
// gateway are its only writers.
type Manager struct {
	provider   provider.Provider
	states     *authstate.Store
	profiles   *profile.Reconciler
	threshold  time.Duration
	interval   time.Duration
	failClosed bool

	unsub    provider.Unsubscribe
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Manager. Call Initialize before Start.
func New(p provider.Provider, states *authstate.Store, profiles *profile.Reconciler, opts ...Option) *Manager {
	m := &Manager{
		provider:  p,
		states:    states,
		profiles:  profiles,
		threshold: DefaultExpiryThreshold,
		interval:  DefaultRefreshInterval,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize registers the provider change listener and restores the
// current session if one exists. The state machine leaves UNINITIALIZED
// exactly here: to authenticated, anonymous, or error.
func (m *Manager) Initialize(ctx context.Context) error {
	m.unsub = m.provider.OnAuthStateChange(m.handleChange)

	sess, err := m.provider.GetSession(ctx)
	if err != nil {
		m.states.Update(
			authstate.SetError(auth.AsError(err)),
			authstate.SetLoading(false),
		)
		return err
	}
	if sess == nil {
		m.states.Update(
			authstate.SetIdentity(nil),
			authstate.SetSession(nil),
			authstate.SetLoading(false),
		)
		return nil
	}
	return m.ReconcileAndPublish(ctx, sess)
}

// handleChange reacts to every externally observed transition,
// including ones this process triggered through other code paths. The
// duplicate invocations race by design; reconciliation is idempotent,
// so no coordination is needed.
func (m *Manager) handleChange(ev provider.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if ev.Session == nil {
		m.states.Update(
			authstate.SetIdentity(nil),
			authstate.SetSession(nil),
			authstate.SetError(nil),
			authstate.SetLoading(false),
		)
		return
	}

	if err := m.ReconcileAndPublish(ctx, ev.Session); err != nil {
		logger.Warn("change-driven reconciliation failed", map[string]any{
			"type":  string(ev.Type),
			"error": err.Error(),
		})
	}
}

// ReconcileAndPublish resolves the session's identity, ensures its
// profile row exists, and publishes the authenticated state. Safe to
// invoke repeatedly for the same transition.
//
// Profile failures do not block authentication unless fail-closed was
// requested: the provider's session is authoritative, and downstream
// consumers see the degradation through LastError.
func (m *Manager) ReconcileAndPublish(ctx context.Context, sess *auth.Session) error {
	identity, err := m.provider.GetUser(ctx, sess.AccessToken)
	if err != nil {
		m.states.Update(
			authstate.SetError(auth.AsError(err)),
			authstate.SetLoading(false),
		)
		return err
	}

	if err := m.profiles.Ensure(ctx, identity); err != nil {
		if m.failClosed {
			m.states.Update(
				authstate.SetIdentity(nil),
				authstate.SetSession(nil),
				authstate.SetError(auth.AsError(err)),
				authstate.SetLoading(false),
			)
			return err
		}

		logger.Warn("profile reconciliation degraded", map[string]any{
			"user_id": identity.ID,
			"error":   err.Error(),
		})
		m.states.Update(
			authstate.SetIdentity(identity),
			authstate.SetSession(sess),
			authstate.SetError(auth.AsError(err)),
			authstate.SetLoading(false),
		)
		return nil
	}

	m.states.Update(
		authstate.SetIdentity(identity),
		authstate.SetSession(sess),
		authstate.SetError(nil),
		authstate.SetLoading(false),
	)
	return nil
}

// IsNearExpiry reports whether the session's remaining lifetime at now
// is below the configured threshold. Pure comparison.
func (m *Manager) IsNearExpiry(sess *auth.Session, now time.Time) bool {
	if sess == nil {
		return false
	}
	return sess.ExpiresIn(now) < m.threshold
}

// RefreshIfNeeded refreshes the current session when it is near expiry.
// A transient refresh failure leaves the stale session in place and only
// records a retryable error; the provider invalidating the session is
// observed through the change listener, never inferred here.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	sess := m.states.Snapshot().Session
	if sess == nil || !m.IsNearExpiry(sess, time.Now()) {
		return nil
	}

	if sess.RefreshToken == "" {
		err := auth.E(auth.KindTokenExpiredNoRefresh, "session near expiry with no refresh token")
		m.states.Update(authstate.SetError(err))
		return err
	}

	refreshed, err := m.provider.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		logger.Warn("session refresh failed, keeping stale session", map[string]any{
			"error": err.Error(),
		})
		m.states.Update(authstate.SetError(auth.AsError(err)))
		return err
	}

	return m.ReconcileAndPublish(ctx, refreshed)
}

// Start runs the near-expiry check loop until Close.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
				_ = m.RefreshIfNeeded(ctx)
				cancel()
			}
		}
	}()
}

// Close stops the refresh loop and unregisters the change listener.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.unsub != nil {
			m.unsub()
		}
	})
}
