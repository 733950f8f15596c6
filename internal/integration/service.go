package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// Service describes one connectable third-party service: its OAuth
// endpoints, scopes, and an optional OIDC verifier used to learn which
// remote account was connected.
type Service struct {
	name     string
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewService builds a service from a ready oauth2 config. Used for
// non-OIDC services and in tests with fake token endpoints.
func NewService(name string, cfg *oauth2.Config) *Service {
	return &Service{name: name, oauth: cfg}
}

// NewGoogleService builds a Google-backed service (calendar, drive)
// using OIDC discovery for endpoints and id_token verification.
func NewGoogleService(ctx context.Context, name, clientID, clientSecret, redirectURL string, scopes []string) (*Service, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, fmt.Errorf("integration: %s oauth config missing required fields", name)
	}

	oidcProvider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("integration: failed to init google oidc provider: %w", err)
	}

	allScopes := append([]string{oidc.ScopeOpenID, "email"}, scopes...)

	return &Service{
		name: name,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       allScopes,
		},
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Name returns the service identifier used by the registry.
func (s *Service) Name() string {
	return s.name
}

// AuthCodeURL builds the authorization URL with PKCE parameters and
// offline access so a refresh token is issued.
func (s *Service) AuthCodeURL(state, codeChallenge string) string {
	return s.oauth.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code for a token and, when a
// verifier is configured, extracts the connected account's email from
// the id_token.
func (s *Service) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, string, error) {
	token, err := s.oauth.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, "", mapExchangeError(err)
	}

	email := ""
	if s.verifier != nil {
		rawIDToken, ok := token.Extra("id_token").(string)
		if ok && rawIDToken != "" {
			idToken, err := s.verifier.Verify(ctx, rawIDToken)
			if err != nil {
				return nil, "", auth.Wrap(auth.KindTokenExchangeFailed, "id_token verification failed", err)
			}
			var claims struct {
				Email string `json:"email"`
			}
			if err := idToken.Claims(&claims); err == nil {
				email = claims.Email
			}
		}
	}

	return token, email, nil
}

// ExchangeRefreshToken obtains a fresh access token from the service's
// token endpoint.
func (s *Service) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, mapExchangeError(err)
	}
	return token, nil
}

// GrantedScopes reads the granted scope list from a token response,
// falling back to the configured scopes when the endpoint omits it.
func (s *Service) GrantedScopes(token *oauth2.Token) []string {
	if raw, ok := token.Extra("scope").(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	return s.oauth.Scopes
}

func mapExchangeError(err error) *auth.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return auth.Wrap(auth.KindTimeout, "token endpoint timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return auth.Wrap(auth.KindTimeout, "token endpoint timed out", err)
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return auth.Wrap(auth.KindTokenExchangeFailed, "token exchange rejected", err)
	}
	return auth.Wrap(auth.KindNetworkUnavailable, "token endpoint unreachable", err)
}

// Registry holds the configured services and allows lookup by name. It
// performs no credential logic itself.
type Registry struct {
	services map[string]*Service
}

// NewRegistry registers the given services by name. Names must be
// unique.
func NewRegistry(list ...*Service) *Registry {
	m := make(map[string]*Service)
	for _, s := range list {
		m[s.Name()] = s
	}
	return &Registry{services: m}
}

// Get returns the service by name or an error if not registered.
func (r *Registry) Get(name string) (*Service, error) {
	s, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("integration: unknown service: %s", name)
	}
	return s, nil
}
