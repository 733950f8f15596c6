package integration

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/logger"
)

// refreshTimeout bounds a detached token refresh round trip.
const refreshTimeout = 15 * time.Second

// Broker mediates access to per-identity service credentials. It hands
// out valid access tokens, refreshing them behind a single-flight group
// so concurrent callers share one refresh round trip.
type Broker struct {
	store    ConnectionStore
	services *Registry
	group    singleflight.Group
	margin   time.Duration
}

// BrokerOption customizes a Broker.
type BrokerOption func(*Broker)

// WithExpiryMargin overrides how early before expiry a token is treated
// as expired.
func WithExpiryMargin(m time.Duration) BrokerOption {
	return func(b *Broker) { b.margin = m }
}

// NewBroker builds a broker over the given connection store and service
// registry.
func NewBroker(store ConnectionStore, services *Registry, opts ...BrokerOption) *Broker {
	b := &Broker{
		store:    store,
		services: services,
		margin:   DefaultExpiryMargin,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AuthorizationURL returns the URL the identity should visit to grant
// access to the named service.
func (b *Broker) AuthorizationURL(service, state, codeChallenge string) (string, error) {
	svc, err := b.services.Get(service)
	if err != nil {
		return "", err
	}
	return svc.AuthCodeURL(state, codeChallenge), nil
}

// CompleteAuthorizationCallback exchanges the authorization code and
// persists the resulting connection for the identity.
func (b *Broker) CompleteAuthorizationCallback(ctx context.Context, userID, service, code, codeVerifier string) (*Connection, error) {
	svc, err := b.services.Get(service)
	if err != nil {
		return nil, err
	}

	token, email, err := svc.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return nil, err
	}

	conn := Connection{
		UserID:       userID,
		Service:      service,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scopes:       svc.GrantedScopes(token),
		AccountEmail: email,
		Connected:    true,
		UpdatedAt:    time.Now(),
	}
	if err := b.store.Upsert(ctx, conn); err != nil {
		return nil, auth.Wrap(auth.KindProviderRejected, "failed to persist connection", err)
	}

	logger.Info("integration connected", map[string]any{
		"user_id": userID,
		"service": service,
		"account": email,
	})
	return &conn, nil
}

// Connection returns the stored connection state for the identity and
// service, or ErrNotConnected.
func (b *Broker) Connection(ctx context.Context, userID, service string) (*Connection, error) {
	conn, err := b.store.SelectByIdentityAndService(ctx, userID, service)
	if err != nil {
		return nil, err
	}
	if conn == nil || !conn.Connected {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// GetValidAccessToken returns a usable access token for the identity
// and service, refreshing through the service's token endpoint when the
// stored one is expired or about to expire. Concurrent callers for the
// same identity and service share a single refresh.
func (b *Broker) GetValidAccessToken(ctx context.Context, userID, service string) (string, error) {
	conn, err := b.Connection(ctx, userID, service)
	if err != nil {
		return "", err
	}

	if !conn.Expired(time.Now(), b.margin) {
		return conn.AccessToken, nil
	}

	if conn.RefreshToken == "" {
		return "", auth.E(auth.KindTokenExpiredNoRefresh, "connection expired and no refresh token stored")
	}

	key := userID + "/" + service
	v, err, _ := b.group.Do(key, func() (any, error) {
		// The refresh serves every coalesced caller and may burn a
		// single-use refresh token, so it must not be aborted when the
		// request that happened to start it goes away. Detach from the
		// caller's cancellation and run under the broker's own deadline.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return b.refreshConnection(refreshCtx, userID, service)
	})
	if err != nil {
		return "", err
	}
	return v.(*Connection).AccessToken, nil
}

// refreshConnection runs inside the single-flight group. It re-reads
// the stored connection first: a caller that lost the race to start the
// flight may find the token already renewed.
func (b *Broker) refreshConnection(ctx context.Context, userID, service string) (*Connection, error) {
	conn, err := b.Connection(ctx, userID, service)
	if err != nil {
		return nil, err
	}
	if !conn.Expired(time.Now(), b.margin) {
		return conn, nil
	}

	svc, err := b.services.Get(service)
	if err != nil {
		return nil, err
	}

	token, err := svc.ExchangeRefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		logger.Warn("integration token refresh failed", map[string]any{
			"user_id": userID,
			"service": service,
			"error":   err.Error(),
		})
		return nil, err
	}

	updated := applyToken(*conn, token)
	if err := b.store.Upsert(ctx, updated); err != nil {
		return nil, auth.Wrap(auth.KindProviderRejected, "failed to persist refreshed connection", err)
	}
	return &updated, nil
}

// applyToken merges a fresh token into the stored connection. Endpoints
// that do not rotate refresh tokens omit them from refresh responses,
// so the previous refresh token is kept in that case.
func applyToken(conn Connection, token *oauth2.Token) Connection {
	conn.AccessToken = token.AccessToken
	conn.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		conn.RefreshToken = token.RefreshToken
	}
	conn.UpdatedAt = time.Now()
	return conn
}

// Disconnect clears the stored tokens for the identity and service. The
// row is retained with connected=false so re-connecting later keeps its
// history. Disconnecting an absent connection is a no-op.
func (b *Broker) Disconnect(ctx context.Context, userID, service string) error {
	conn, err := b.store.SelectByIdentityAndService(ctx, userID, service)
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}

	conn.AccessToken = ""
	conn.RefreshToken = ""
	conn.ExpiresAt = time.Time{}
	conn.Connected = false
	conn.UpdatedAt = time.Now()
	if err := b.store.Upsert(ctx, *conn); err != nil {
		return auth.Wrap(auth.KindProviderRejected, "failed to persist disconnect", err)
	}

	logger.Info("integration disconnected", map[string]any{
		"user_id": userID,
		"service": service,
	})
	return nil
}
