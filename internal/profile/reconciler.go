package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/LuisNSantana/hums-authd/internal/auth"
	"github.com/LuisNSantana/hums-authd/internal/logger"
)

// Reconciler ensures exactly one profile row exists per identity. It is
// safe to call concurrently and repeatedly: a uniqueness race with
// another caller counts as success.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Ensure creates the profile row for identity if none exists. Found
// rows are a no-op; a lost insert race is absorbed; any other store
// failure comes back as a recoverable profile_unavailable error, never
// retried here.
func (r *Reconciler) Ensure(ctx context.Context, identity *auth.Identity) error {
	if identity == nil || identity.ID == "" {
		return auth.E(auth.KindValidationFailed, "identity missing id")
	}

	existing, err := r.store.SelectByID(ctx, identity.ID)
	if err != nil {
		return auth.Wrap(auth.KindProfileUnavailable, "profile lookup failed", err)
	}
	if existing != nil {
		return nil
	}

	rec := Record{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: DisplayNameFor(identity),
		AvatarURL:   AvatarURLFor(identity),
	}

	err = r.store.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		// A concurrent caller won the race; the row exists, which is all
		// Ensure promises.
		logger.Debug("profile insert lost race", map[string]any{"id": identity.ID})
		return nil
	}
	if err != nil {
		return auth.Wrap(auth.KindProfileUnavailable, "profile insert failed", err)
	}

	logger.Info("profile created", map[string]any{
		"id":           identity.ID,
		"display_name": rec.DisplayName,
	})
	return nil
}

// Deactivate soft-deletes the profile row; the row itself is retained.
func (r *Reconciler) Deactivate(ctx context.Context, id string) error {
	rec, err := r.store.SelectByID(ctx, id)
	if err != nil {
		return auth.Wrap(auth.KindProfileUnavailable, "profile lookup failed", err)
	}
	if rec == nil {
		return nil
	}
	rec.Deactivated = true
	if err := r.store.Update(ctx, *rec); err != nil {
		return auth.Wrap(auth.KindProfileUnavailable, "profile update failed", err)
	}
	return nil
}

// metadataString probes identity metadata for a non-empty string key.
func metadataString(id *auth.Identity, key string) string {
	if v, ok := id.Metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// displayNameExtractors are evaluated in priority order until one yields
// a non-empty value.
var displayNameExtractors = []func(*auth.Identity) string{
	func(id *auth.Identity) string { return metadataString(id, "name") },
	func(id *auth.Identity) string { return metadataString(id, "full_name") },
	func(id *auth.Identity) string { return metadataString(id, "user_name") },
	func(id *auth.Identity) string { return metadataString(id, "display_name") },
	func(id *auth.Identity) string { return strings.TrimSpace(id.DisplayName) },
	emailLocalPart,
}

func emailLocalPart(id *auth.Identity) string {
	at := strings.Index(id.Email, "@")
	if at <= 0 {
		return ""
	}
	return id.Email[:at]
}

// DisplayNameFor resolves the profile display name from provider
// metadata, falling back to the email local-part and finally a literal
// placeholder.
func DisplayNameFor(id *auth.Identity) string {
	for _, extract := range displayNameExtractors {
		if v := extract(id); v != "" {
			return v
		}
	}
	return "Unknown User"
}

var avatarExtractors = []func(*auth.Identity) string{
	func(id *auth.Identity) string { return metadataString(id, "avatar_url") },
	func(id *auth.Identity) string { return metadataString(id, "picture") },
	func(id *auth.Identity) string { return metadataString(id, "image_url") },
	func(id *auth.Identity) string { return strings.TrimSpace(id.AvatarURL) },
}

// AvatarURLFor resolves the avatar URL across provider-specific keys;
// empty when no provider supplied one.
func AvatarURLFor(id *auth.Identity) string {
	for _, extract := range avatarExtractors {
		if v := extract(id); v != "" {
			return v
		}
	}
	return ""
}
