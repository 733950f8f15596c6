// Package gateway exposes the directly invoked auth operations. Every
// operation opens a loading transition, surfaces failures both to the
// caller and through the state store's LastError, and delegates
// session-establishing successes to the session manager.
package gateway

import (
	"context"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/authstate"
	"github.com/LuisNSantana/hums-authd/internal/profile"
	"github.com/LuisNSantana/hums-authd/internal/provider"
	"github.com/LuisNSantana/hums-authd/internal/sessionmgr"
)

// Gateway wires the identity provider to the lifecycle manager for
// caller-initiated flows.
type Gateway struct {
	provider provider.Provider
	sessions *sessionmgr.Manager
	states   *authstate.Store
	profiles *profile.Reconciler
}

func New(p provider.Provider, sessions *sessionmgr.Manager, states *authstate.Store, profiles *profile.Reconciler) *Gateway {
	return &Gateway{
		provider: p,
		sessions: sessions,
		states:   states,
		profiles: profiles,
	}
}

// begin opens a state transition: loading set, stale error cleared.
func (g *Gateway) begin() {
	g.states.Update(authstate.SetLoading(true), authstate.SetError(nil))
}

// fail closes the transition with the mapped error and returns it, so
// synchronous callers and reactive consumers observe the same failure.
func (g *Gateway) fail(err error) *auth.Error {
	e := auth.AsError(err)
	g.states.Update(authstate.SetError(e), authstate.SetLoading(false))
	return e
}

// done closes the transition without touching identity or session.
func (g *Gateway) done() {
	g.states.Update(authstate.SetLoading(false))
}

// SignUp registers a new identity and creates its profile row as first
// writer. A profile failure is surfaced loudly to the caller without
// rolling back the identity: reconciliation repairs it on the next
// session establishment. When the provider requires email confirmation
// no session is returned and the state stays anonymous.
func (g *Gateway) SignUp(ctx context.Context, email, password string, data map[string]any) (*auth.Identity, error) {
	g.begin()

	if err := validateEmail(email); err != nil {
		return nil, g.fail(err)
	}
	if err := validatePassword(password); err != nil {
		return nil, g.fail(err)
	}

	identity, sess, err := g.provider.SignUp(ctx, provider.SignUpParams{
		Email:    email,
		Password: password,
		Data:     data,
	})
	if err != nil {
		return nil, g.fail(err)
	}

	if err := g.profiles.Ensure(ctx, identity); err != nil {
		return identity, g.fail(err)
	}

	if sess == nil {
		g.done()
		return identity, nil
	}

	if err := g.sessions.ReconcileAndPublish(ctx, sess); err != nil {
		return identity, auth.AsError(err)
	}
	return identity, nil
}

// SignIn authenticates with email and password.
func (g *Gateway) SignIn(ctx context.Context, email, password string) error {
	g.begin()

	if err := validateEmail(email); err != nil {
		return g.fail(err)
	}
	if err := validatePassword(password); err != nil {
		return g.fail(err)
	}

	sess, err := g.provider.SignInWithPassword(ctx, provider.Credentials{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return g.fail(err)
	}

	if err := g.sessions.ReconcileAndPublish(ctx, sess); err != nil {
		return auth.AsError(err)
	}
	return nil
}

// SignOut revokes the session and publishes the anonymous terminal
// state. Integration connections are untouched: they live their own
// lifecycle.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.begin()

	if err := g.provider.SignOut(ctx); err != nil {
		return g.fail(err)
	}

	g.states.Update(
		authstate.SetIdentity(nil),
		authstate.SetSession(nil),
		authstate.SetError(nil),
		authstate.SetLoading(false),
	)
	return nil
}

// SendMagicLink requests a one-time sign-in link. The resulting session
// is observed through the provider change listener.
func (g *Gateway) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	g.begin()

	if err := validateEmail(email); err != nil {
		return g.fail(err)
	}
	if err := g.provider.SignInWithOTP(ctx, email, redirectTo); err != nil {
		return g.fail(err)
	}

	g.done()
	return nil
}

// StartOAuth builds the provider redirect URL for an OAuth sign-in.
// Completion is observed through the change listener, not here.
func (g *Gateway) StartOAuth(ctx context.Context, providerName, redirectTo string) (string, error) {
	g.begin()

	url, err := g.provider.SignInWithOAuth(ctx, providerName, redirectTo)
	if err != nil {
		return "", g.fail(err)
	}

	g.done()
	return url, nil
}

// ResetPassword sends a recovery email.
func (g *Gateway) ResetPassword(ctx context.Context, email, redirectTo string) error {
	g.begin()

	if err := validateEmail(email); err != nil {
		return g.fail(err)
	}
	if err := g.provider.ResetPasswordForEmail(ctx, email, redirectTo); err != nil {
		return g.fail(err)
	}

	g.done()
	return nil
}

// UpdatePassword changes the current actor's password.
func (g *Gateway) UpdatePassword(ctx context.Context, newPassword string) error {
	g.begin()

	if err := validatePassword(newPassword); err != nil {
		return g.fail(err)
	}

	sess := g.states.Snapshot().Session
	if sess == nil {
		return g.fail(auth.E(auth.KindInvalidCredentials, "no active session"))
	}

	if _, err := g.provider.UpdateUser(ctx, sess.AccessToken, provider.UserAttributes{
		Password: &newPassword,
	}); err != nil {
		return g.fail(err)
	}

	g.done()
	return nil
}

// ResendConfirmation re-sends the sign-up confirmation email.
func (g *Gateway) ResendConfirmation(ctx context.Context, email string) error {
	g.begin()

	if err := validateEmail(email); err != nil {
		return g.fail(err)
	}
	if err := g.provider.Resend(ctx, "signup", email); err != nil {
		return g.fail(err)
	}

	g.done()
	return nil
}
