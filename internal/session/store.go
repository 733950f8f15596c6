// Package session persists the current session snapshot so a restarted
// process can resume an authenticated lifecycle without a fresh sign-in.
package session

import (
	"context"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// Store persists at most one session snapshot: the current actor's.
// Load returns (nil, nil) when no snapshot exists. Implementations must
// remain opaque about storage details.
type Store interface {
	Load(ctx context.Context) (*auth.Session, error)
	Save(ctx context.Context, s *auth.Session) error
	Clear(ctx context.Context) error
}
