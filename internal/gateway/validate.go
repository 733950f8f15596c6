package gateway

import (
	"strings"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

const minPasswordLength = 8

// validateEmail rejects obviously malformed addresses before any
// network call; the provider remains the authority on deliverability.
func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return auth.E(auth.KindValidationFailed, "invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return auth.E(auth.KindValidationFailed, "password must be at least 8 characters")
	}
	return nil
}
