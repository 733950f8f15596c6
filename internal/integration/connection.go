// Package integration manages OAuth credentials for third-party service
// connectors (calendar/drive-style). It runs a lifecycle parallel to the
// session manager's but scoped per (identity, service) key.
package integration

import (
	"context"
	"errors"
	"time"
)

// DefaultExpiryMargin pads expiry checks against clock skew and network
// latency.
const DefaultExpiryMargin = 30 * time.Second

// ErrNotConnected is returned when no usable connection exists for the
// requested (identity, service) key.
var ErrNotConnected = errors.New("integration: not connected")

// Connection is the durable OAuth credential state for one service,
// scoped to one identity. At most one row exists per key; disconnecting
// clears tokens but retains the row.
type Connection struct {
	UserID       string
	Service      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	AccountEmail string
	Connected    bool
	UpdatedAt    time.Time
}

// Expired reports whether the access token is expired, or will be
// within margin. Tokens without a recorded expiry never expire.
func (c *Connection) Expired(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(margin).After(c.ExpiresAt)
}

// ConnectionStore is the durable connection table contract.
// SelectByIdentityAndService returns (nil, nil) when no row exists;
// Upsert inserts or updates the single row for the key.
type ConnectionStore interface {
	SelectByIdentityAndService(ctx context.Context, userID, service string) (*Connection, error)
	Upsert(ctx context.Context, c Connection) error
}
