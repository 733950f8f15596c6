package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LuisNSantana/hums-authd/internal/authstate"
)

const userIDKey = "user_id"

// UserID extracts the authenticated identity ID set by RequireAuth.
func UserID(c *gin.Context) (string, bool) {
	id, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}

// RequireAuth rejects requests whose bearer token does not match the
// current session. Auth decisions read the synchronous credential
// snapshot, never the provider.
func RequireAuth(creds *authstate.CredentialStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		sess := creds.Session()
		if sess == nil || sess.AccessToken != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		identity := creds.Identity()
		if identity == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(userIDKey, identity.ID)
		c.Next()
	}
}
