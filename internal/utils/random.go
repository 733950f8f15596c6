package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// RandomString returns a URL-safe random string built from n random
// bytes. Used for tokens, OAuth state, and PKCE verifiers.
func RandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure means the process cannot mint secrets.
		panic("utils: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// PKCEChallenge derives the S256 code challenge for a verifier.
func PKCEChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
