package auth

import "time"

// Preferences holds the validated core subset of user preferences.
// Unknown keys sent by clients are preserved in Extra and passed through
// untouched.
type Preferences struct {
	Theme         string         `json:"theme,omitempty"`
	Locale        string         `json:"locale,omitempty"`
	Notifications bool           `json:"notifications"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Identity represents the provider-issued view of an authenticated actor.
// It contains facts only, no decisions.
type Identity struct {
	ID             string      `json:"id"`
	Email          string      `json:"email"`
	EmailConfirmed bool        `json:"email_confirmed"`
	DisplayName    string      `json:"display_name,omitempty"`
	AvatarURL      string      `json:"avatar_url,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	Preferences    Preferences `json:"preferences"`

	// Metadata carries raw provider user metadata. Profile reconciliation
	// probes it for display name and avatar fallbacks.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session is a time-bounded credential pair tied to an Identity.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
	UserID       string `json:"user_id"`
}

// ExpiresIn returns the remaining session lifetime relative to now.
// Negative for already-expired sessions.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}
