// Package profile owns the durable profile record for each identity and
// the reconciler that lazily creates it exactly once.
package profile

import (
	"context"
	"errors"
	"time"
)

// Record is the application's durable counterpart of an Identity. At
// most one row exists per identity id; rows are never deleted, only
// soft-deactivated.
type Record struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
	Deactivated bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows SelectAll results.
type Filter struct {
	Deactivated *bool
	Limit       int
	Offset      int
}

// ErrDuplicate is returned by Insert when a row for the id already
// exists. Callers racing on first insert treat it as success.
var ErrDuplicate = errors.New("profile: duplicate id")

// Store is the durable profile table contract. SelectByID returns
// (nil, nil) when no row exists.
type Store interface {
	SelectByID(ctx context.Context, id string) (*Record, error)
	Insert(ctx context.Context, r Record) error
	Update(ctx context.Context, r Record) error
	SelectAll(ctx context.Context, f Filter) ([]Record, error)
}
