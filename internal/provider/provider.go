// Package provider defines the identity-provider contract the lifecycle
// manager consumes. Implementations return identity/session facts only;
// profile reconciliation and state publication happen elsewhere.
package provider

import (
	"context"
	"sync"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// ChangeType labels an externally observed auth transition.
type ChangeType string

const (
	ChangeSignedIn       ChangeType = "signed_in"
	ChangeSignedOut      ChangeType = "signed_out"
	ChangeTokenRefreshed ChangeType = "token_refreshed"
	ChangeUserUpdated    ChangeType = "user_updated"
)

// ChangeEvent is pushed to registered listeners for every auth state
// transition the provider observes, including ones triggered by other
// processes. Session is nil for sign-out events.
type ChangeEvent struct {
	Type    ChangeType    `json:"type"`
	Session *auth.Session `json:"session,omitempty"`
}

// Unsubscribe removes a previously registered change listener.
type Unsubscribe func()

// SignUpParams carries registration input. Data is opaque user metadata
// stored with the identity (display name, avatar, preferences).
type SignUpParams struct {
	Email    string
	Password string
	Data     map[string]any
}

// Credentials is a password sign-in request.
type Credentials struct {
	Email    string
	Password string
}

// UserAttributes carries mutable identity fields for UpdateUser. Nil
// fields are left untouched.
type UserAttributes struct {
	Password *string
	Data     map[string]any
}

// Provider is the identity-provider client contract. Every method that
// crosses the process boundary takes a context with a bounded deadline.
type Provider interface {
	SignUp(ctx context.Context, p SignUpParams) (*auth.Identity, *auth.Session, error)
	SignInWithPassword(ctx context.Context, c Credentials) (*auth.Session, error)
	SignInWithOTP(ctx context.Context, email, redirectTo string) error
	SignInWithOAuth(ctx context.Context, providerName, redirectTo string) (authURL string, err error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*auth.Session, error)
	GetUser(ctx context.Context, accessToken string) (*auth.Identity, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*auth.Identity, error)
	Resend(ctx context.Context, kind, email string) error
	OnAuthStateChange(fn func(ChangeEvent)) Unsubscribe
}

// Emitter fans change events out to registered listeners. Listeners are
// invoked synchronously; implementations share it so every provider
// delivers events the same way.
type Emitter struct {
	mu   sync.Mutex
	subs map[int]func(ChangeEvent)
	next int
}

// NewEmitter returns an empty listener set.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]func(ChangeEvent))}
}

// Subscribe registers fn and returns its unsubscribe function.
func (e *Emitter) Subscribe(fn func(ChangeEvent)) Unsubscribe {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to every listener registered at call time.
func (e *Emitter) Emit(ev ChangeEvent) {
	e.mu.Lock()
	targets := make([]func(ChangeEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		targets = append(targets, fn)
	}
	e.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}
