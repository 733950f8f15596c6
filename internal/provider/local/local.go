// Package local implements the identity-provider contract entirely in
// process memory. It backs dev mode and every provider-facing test:
// bcrypt-hashed passwords, uuid identities, expiring token pairs, and
// synchronous change events.
package local

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/provider"
	"github.com/LuisNSantana/hums-authd/internal/utils"
)

const (
	// DefaultTokenTTL is the issued access-token lifetime.
	DefaultTokenTTL = time.Hour

	minPasswordLength = 8
)

type user struct {
	id           string
	email        string
	passwordHash string
	confirmed    bool
	createdAt    time.Time
	metadata     map[string]any
}

type issuedSession struct {
	userID    string
	expiresAt time.Time
}

// Provider is the in-memory identity provider.
type Provider struct {
	mu       sync.Mutex
	users    map[string]*user          // by lowercased email
	byID     map[string]*user          // by id
	access   map[string]issuedSession  // by access token
	refresh  map[string]string         // refresh token -> user id
	current  *auth.Session             // the provider-held session snapshot
	events   *provider.Emitter
	tokenTTL time.Duration

	// AutoConfirm marks new identities email-confirmed at sign-up,
	// matching providers with confirmation disabled.
	AutoConfirm bool

	// LastOTPEmail / LastRecoverEmail / LastResend record the most recent
	// mail-sending requests so tests can assert on them without a mail
	// transport.
	LastOTPEmail     string
	LastRecoverEmail string
	LastResend       string
}

// Option configures the local provider.
type Option func(*Provider)

// WithTokenTTL overrides the issued access-token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.tokenTTL = ttl }
}

// WithAutoConfirm controls whether sign-up confirms emails immediately.
func WithAutoConfirm(on bool) Option {
	return func(p *Provider) { p.AutoConfirm = on }
}

// New creates an empty local provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		users:       make(map[string]*user),
		byID:        make(map[string]*user),
		access:      make(map[string]issuedSession),
		refresh:     make(map[string]string),
		events:      provider.NewEmitter(),
		tokenTTL:    DefaultTokenTTL,
		AutoConfirm: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) OnAuthStateChange(fn func(provider.ChangeEvent)) provider.Unsubscribe {
	return p.events.Subscribe(fn)
}

func (p *Provider) identityOf(u *user) *auth.Identity {
	id := &auth.Identity{
		ID:             u.id,
		Email:          u.email,
		EmailConfirmed: u.confirmed,
		CreatedAt:      u.createdAt,
		Metadata:       u.metadata,
		Preferences:    provider.ParsePreferences(u.metadata),
	}
	if v, ok := u.metadata["display_name"].(string); ok {
		id.DisplayName = v
	}
	if v, ok := u.metadata["avatar_url"].(string); ok {
		id.AvatarURL = v
	}
	return id
}

// issueSession mints a token pair for u. Caller holds the lock.
func (p *Provider) issueSession(u *user) *auth.Session {
	accessToken := utils.RandomString(32)
	refreshToken := utils.RandomString(32)
	expiresAt := time.Now().Add(p.tokenTTL)

	p.access[accessToken] = issuedSession{userID: u.id, expiresAt: expiresAt}
	p.refresh[refreshToken] = u.id

	sess := &auth.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.Unix(),
		UserID:       u.id,
	}
	p.current = sess
	return sess
}

func (p *Provider) SignUp(ctx context.Context, params provider.SignUpParams) (*auth.Identity, *auth.Session, error) {
	if len(params.Password) < minPasswordLength {
		return nil, nil, auth.E(auth.KindValidationFailed, "password too short")
	}

	p.mu.Lock()

	key := strings.ToLower(params.Email)
	if _, exists := p.users[key]; exists {
		p.mu.Unlock()
		return nil, nil, auth.E(auth.KindConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		p.mu.Unlock()
		return nil, nil, auth.Wrap(auth.KindProviderRejected, "password hashing failed", err)
	}

	md := params.Data
	if md == nil {
		md = map[string]any{}
	}
	u := &user{
		id:           uuid.NewString(),
		email:        params.Email,
		passwordHash: string(hash),
		confirmed:    p.AutoConfirm,
		createdAt:    time.Now(),
		metadata:     md,
	}
	p.users[key] = u
	p.byID[u.id] = u

	if !u.confirmed {
		identity := p.identityOf(u)
		p.mu.Unlock()
		return identity, nil, nil
	}

	identity := p.identityOf(u)
	sess := p.issueSession(u)
	p.mu.Unlock()

	p.events.Emit(provider.ChangeEvent{Type: provider.ChangeSignedIn, Session: sess})
	return identity, sess, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, creds provider.Credentials) (*auth.Session, error) {
	p.mu.Lock()

	u, ok := p.users[strings.ToLower(creds.Email)]
	if !ok {
		p.mu.Unlock()
		// Do not reveal whether the account exists.
		return nil, auth.E(auth.KindInvalidCredentials, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(creds.Password)); err != nil {
		p.mu.Unlock()
		return nil, auth.E(auth.KindInvalidCredentials, "invalid credentials")
	}
	if !u.confirmed {
		p.mu.Unlock()
		return nil, auth.E(auth.KindEmailNotConfirmed, "email not confirmed")
	}

	sess := p.issueSession(u)
	p.mu.Unlock()

	p.events.Emit(provider.ChangeEvent{Type: provider.ChangeSignedIn, Session: sess})
	return sess, nil
}

func (p *Provider) SignInWithOTP(ctx context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastOTPEmail = email
	return nil
}

func (p *Provider) SignInWithOAuth(ctx context.Context, providerName, redirectTo string) (string, error) {
	return "http://localhost/oauth/" + providerName, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if p.current != nil {
		delete(p.access, p.current.AccessToken)
		delete(p.refresh, p.current.RefreshToken)
		p.current = nil
	}
	p.mu.Unlock()

	p.events.Emit(provider.ChangeEvent{Type: provider.ChangeSignedOut})
	return nil
}

func (p *Provider) GetSession(ctx context.Context) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	sess := *p.current
	return &sess, nil
}

func (p *Provider) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	issued, ok := p.access[accessToken]
	if !ok {
		return nil, auth.E(auth.KindInvalidCredentials, "unknown access token")
	}
	u, ok := p.byID[issued.userID]
	if !ok {
		return nil, auth.E(auth.KindInvalidCredentials, "unknown user")
	}
	return p.identityOf(u), nil
}

func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	p.mu.Lock()

	userID, ok := p.refresh[refreshToken]
	if !ok {
		p.mu.Unlock()
		return nil, auth.E(auth.KindInvalidCredentials, "unknown refresh token")
	}
	u := p.byID[userID]

	// Refresh tokens are single use.
	delete(p.refresh, refreshToken)
	sess := p.issueSession(u)
	p.mu.Unlock()

	p.events.Emit(provider.ChangeEvent{Type: provider.ChangeTokenRefreshed, Session: sess})
	return sess, nil
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastRecoverEmail = email
	return nil
}

func (p *Provider) UpdateUser(ctx context.Context, accessToken string, attrs provider.UserAttributes) (*auth.Identity, error) {
	p.mu.Lock()

	issued, ok := p.access[accessToken]
	if !ok {
		p.mu.Unlock()
		return nil, auth.E(auth.KindInvalidCredentials, "unknown access token")
	}
	u := p.byID[issued.userID]

	if attrs.Password != nil {
		if len(*attrs.Password) < minPasswordLength {
			p.mu.Unlock()
			return nil, auth.E(auth.KindValidationFailed, "password too short")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*attrs.Password), bcrypt.DefaultCost)
		if err != nil {
			p.mu.Unlock()
			return nil, auth.Wrap(auth.KindProviderRejected, "password hashing failed", err)
		}
		u.passwordHash = string(hash)
	}
	for k, v := range attrs.Data {
		u.metadata[k] = v
	}

	identity := p.identityOf(u)
	sess := p.current
	p.mu.Unlock()

	if sess != nil {
		p.events.Emit(provider.ChangeEvent{Type: provider.ChangeUserUpdated, Session: sess})
	}
	return identity, nil
}

func (p *Provider) Resend(ctx context.Context, kind, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastResend = kind + ":" + email
	return nil
}

// Confirm marks an identity email-confirmed, standing in for the user
// clicking the confirmation link.
func (p *Provider) Confirm(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[strings.ToLower(email)]; ok {
		u.confirmed = true
	}
}

// ExpireCurrent rewinds the current session's expiry for tests that
// exercise the near-expiry path.
func (p *Provider) ExpireCurrent(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.ExpiresAt = at.Unix()
	}
}
