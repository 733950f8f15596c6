package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/logger"
	"github.com/LuisNSantana/hums-authd/internal/session"
)

// DefaultHTTPTimeout bounds every provider request.
const DefaultHTTPTimeout = 15 * time.Second

// HTTPClient talks to a GoTrue-compatible identity provider over
// JSON/HTTPS. It persists the current session through a session.Store so
// GetSession survives restarts, and it broadcasts every observed
// transition to change listeners (and to the cross-process feed when one
// is attached).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sessions   session.Store
	events     *Emitter
	feed       *Feed
}

// HTTPOption configures the HTTP provider client.
type HTTPOption func(*HTTPClient)

// WithHTTPClient injects the shared HTTP client owned by the composition
// root. All provider-facing components must share one client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a provider client for the given base URL.
func NewHTTPClient(baseURL, apiKey string, sessions session.Store, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		sessions:   sessions,
		events:     NewEmitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AttachFeed connects the cross-process auth event feed: local
// transitions are published to it, and remote events (another process
// signing the actor out, refreshing tokens) are delivered to local
// change listeners. Returns a stop function for shutdown.
func (c *HTTPClient) AttachFeed(ctx context.Context, feed *Feed) (func(), error) {
	c.feed = feed
	return feed.Subscribe(ctx, func(ev ChangeEvent) {
		c.events.Emit(ev)
	})
}

func (c *HTTPClient) OnAuthStateChange(fn func(ChangeEvent)) Unsubscribe {
	return c.events.Subscribe(fn)
}

// broadcast delivers ev to local listeners and, when a feed is attached,
// to every other process. The feed echoes events back; reconciliation is
// idempotent so duplicate delivery is tolerated by contract.
func (c *HTTPClient) broadcast(ctx context.Context, ev ChangeEvent) {
	c.events.Emit(ev)
	if c.feed != nil {
		if err := c.feed.Publish(ctx, ev); err != nil {
			logger.Warn("auth event feed publish failed", map[string]any{
				"type":  string(ev.Type),
				"error": err.Error(),
			})
		}
	}
}

// sessionPayload is the provider's token-grant response shape.
type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

func (p *sessionPayload) toSession() *auth.Session {
	expiresAt := p.ExpiresAt
	if expiresAt == 0 && p.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + p.ExpiresIn
	}
	s := &auth.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if p.User != nil {
		s.UserID = p.User.ID
	}
	return s
}

// userPayload is the provider's user representation.
type userPayload struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (p *userPayload) toIdentity() *auth.Identity {
	id := &auth.Identity{
		ID:             p.ID,
		Email:          p.Email,
		EmailConfirmed: p.EmailConfirmedAt != nil,
		CreatedAt:      p.CreatedAt,
		Metadata:       p.UserMetadata,
		Preferences:    ParsePreferences(p.UserMetadata),
	}
	if v, ok := p.UserMetadata["display_name"].(string); ok {
		id.DisplayName = v
	}
	if v, ok := p.UserMetadata["avatar_url"].(string); ok {
		id.AvatarURL = v
	}
	return id
}

// ParsePreferences extracts the validated preference subset from raw
// user metadata; unknown keys inside the preferences object pass through
// in Extra.
func ParsePreferences(md map[string]any) auth.Preferences {
	var p auth.Preferences
	raw, ok := md["preferences"].(map[string]any)
	if !ok {
		return p
	}
	for k, v := range raw {
		switch k {
		case "theme":
			if s, ok := v.(string); ok {
				p.Theme = s
			}
		case "locale":
			if s, ok := v.(string); ok {
				p.Locale = s
			}
		case "notifications":
			if b, ok := v.(bool); ok {
				p.Notifications = b
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[k] = v
		}
	}
	return p
}

func (c *HTTPClient) SignUp(ctx context.Context, p SignUpParams) (*auth.Identity, *auth.Session, error) {
	body := map[string]any{
		"email":    p.Email,
		"password": p.Password,
	}
	if len(p.Data) > 0 {
		body["data"] = p.Data
	}

	var resp struct {
		sessionPayload
		// Providers with confirmation enabled return the bare user
		// instead of a session.
		userPayload
	}
	if err := c.do(ctx, http.MethodPost, "/signup", body, "", &resp); err != nil {
		return nil, nil, err
	}

	if resp.AccessToken == "" {
		// Confirmation pending: identity exists, no session yet.
		return resp.userPayload.toIdentity(), nil, nil
	}

	sess := resp.sessionPayload.toSession()
	if err := c.sessions.Save(ctx, sess); err != nil {
		logger.Warn("session snapshot save failed", map[string]any{"error": err.Error()})
	}
	c.broadcast(ctx, ChangeEvent{Type: ChangeSignedIn, Session: sess})

	user := resp.User
	if user == nil {
		user = &resp.userPayload
	}
	return user.toIdentity(), sess, nil
}

func (c *HTTPClient) SignInWithPassword(ctx context.Context, creds Credentials) (*auth.Session, error) {
	body := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	}

	var resp sessionPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", body, "", &resp); err != nil {
		return nil, err
	}

	sess := resp.toSession()
	if err := c.sessions.Save(ctx, sess); err != nil {
		logger.Warn("session snapshot save failed", map[string]any{"error": err.Error()})
	}
	c.broadcast(ctx, ChangeEvent{Type: ChangeSignedIn, Session: sess})

	return sess, nil
}

func (c *HTTPClient) SignInWithOTP(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{
		"email":       email,
		"create_user": true,
	}
	if redirectTo != "" {
		body["redirect_to"] = redirectTo
	}
	return c.do(ctx, http.MethodPost, "/otp", body, "", nil)
}

// SignInWithOAuth builds the provider's authorization redirect URL. The
// resulting session is observed later through the change listener, not
// returned here.
func (c *HTTPClient) SignInWithOAuth(ctx context.Context, providerName, redirectTo string) (string, error) {
	if providerName == "" {
		return "", auth.E(auth.KindValidationFailed, "oauth provider name required")
	}
	u, err := url.Parse(c.baseURL + "/authorize")
	if err != nil {
		return "", auth.Wrap(auth.KindProviderRejected, "invalid provider base url", err)
	}
	q := u.Query()
	q.Set("provider", providerName)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *HTTPClient) SignOut(ctx context.Context) error {
	snap, err := c.sessions.Load(ctx)
	if err != nil {
		return auth.Wrap(auth.KindNetworkUnavailable, "session snapshot load failed", err)
	}

	if snap != nil {
		// Best-effort remote revocation; local sign-out proceeds even if
		// the provider call fails.
		if err := c.do(ctx, http.MethodPost, "/logout", nil, snap.AccessToken, nil); err != nil {
			logger.Warn("provider logout failed", map[string]any{"error": err.Error()})
		}
	}

	if err := c.sessions.Clear(ctx); err != nil {
		return auth.Wrap(auth.KindNetworkUnavailable, "session snapshot clear failed", err)
	}
	c.broadcast(ctx, ChangeEvent{Type: ChangeSignedOut})
	return nil
}

// GetSession returns the current session, silently refreshing an expired
// one when a refresh token exists. Returns (nil, nil) when anonymous.
func (c *HTTPClient) GetSession(ctx context.Context) (*auth.Session, error) {
	snap, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, auth.Wrap(auth.KindNetworkUnavailable, "session snapshot load failed", err)
	}
	if snap == nil {
		return nil, nil
	}

	if snap.ExpiresIn(time.Now()) > 0 {
		return snap, nil
	}
	if snap.RefreshToken == "" {
		_ = c.sessions.Clear(ctx)
		return nil, nil
	}
	return c.RefreshSession(ctx, snap.RefreshToken)
}

func (c *HTTPClient) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	var resp userPayload
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, &resp); err != nil {
		return nil, err
	}
	return resp.toIdentity(), nil
}

func (c *HTTPClient) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	body := map[string]any{"refresh_token": refreshToken}

	var resp sessionPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", body, "", &resp); err != nil {
		return nil, err
	}

	sess := resp.toSession()
	if err := c.sessions.Save(ctx, sess); err != nil {
		logger.Warn("session snapshot save failed", map[string]any{"error": err.Error()})
	}
	c.broadcast(ctx, ChangeEvent{Type: ChangeTokenRefreshed, Session: sess})

	return sess, nil
}

func (c *HTTPClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{"email": email}
	if redirectTo != "" {
		body["redirect_to"] = redirectTo
	}
	return c.do(ctx, http.MethodPost, "/recover", body, "", nil)
}

func (c *HTTPClient) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*auth.Identity, error) {
	body := map[string]any{}
	if attrs.Password != nil {
		body["password"] = *attrs.Password
	}
	if len(attrs.Data) > 0 {
		body["data"] = attrs.Data
	}

	var resp userPayload
	if err := c.do(ctx, http.MethodPut, "/user", body, accessToken, &resp); err != nil {
		return nil, err
	}

	identity := resp.toIdentity()
	if snap, err := c.sessions.Load(ctx); err == nil && snap != nil {
		c.broadcast(ctx, ChangeEvent{Type: ChangeUserUpdated, Session: snap})
	}
	return identity, nil
}

func (c *HTTPClient) Resend(ctx context.Context, kind, email string) error {
	body := map[string]any{
		"type":  kind,
		"email": email,
	}
	return c.do(ctx, http.MethodPost, "/resend", body, "", nil)
}

// errorPayload is the provider's error response shape; field names vary
// by endpoint generation.
type errorPayload struct {
	Message          string `json:"msg"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p errorPayload) text() string {
	switch {
	case p.Message != "":
		return p.Message
	case p.ErrorDescription != "":
		return p.ErrorDescription
	case p.ErrorField != "":
		return p.ErrorField
	}
	return "provider request failed"
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return auth.Wrap(auth.KindValidationFailed, "request encoding failed", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return auth.Wrap(auth.KindValidationFailed, "request build failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.Wrap(auth.KindNetworkUnavailable, "response read failed", err)
	}

	if resp.StatusCode >= 400 {
		return mapStatusError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return auth.Wrap(auth.KindProviderRejected, "response decoding failed", err)
		}
	}
	return nil
}

func mapTransportError(err error) *auth.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return auth.Wrap(auth.KindTimeout, "provider request timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return auth.Wrap(auth.KindTimeout, "provider request timed out", err)
	}
	return auth.Wrap(auth.KindNetworkUnavailable, "provider unreachable", err)
}

func mapStatusError(status int, body []byte) *auth.Error {
	var payload errorPayload
	_ = json.Unmarshal(body, &payload)
	msg := payload.text()

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not confirmed"):
		return auth.E(auth.KindEmailNotConfirmed, msg)
	case status == http.StatusUnauthorized:
		return auth.E(auth.KindInvalidCredentials, msg)
	case status == http.StatusBadRequest && strings.Contains(lower, "invalid"):
		return auth.E(auth.KindInvalidCredentials, msg)
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return auth.E(auth.KindValidationFailed, msg)
	case status == http.StatusConflict:
		return auth.E(auth.KindConflict, msg)
	}
	return auth.E(auth.KindProviderRejected, fmt.Sprintf("%s (status %d)", msg, status))
}
