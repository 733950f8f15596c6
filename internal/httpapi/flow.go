package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LuisNSantana/hums-authd/internal/utils"
)

const (
	stateCookieName = "__connect_state"
	pkceCookieName  = "__connect_pkce"
	flowTTL         = 5 * time.Minute
)

// beginConnectFlow issues the state and PKCE verifier cookies for an
// integration authorization redirect and returns (state, challenge).
func beginConnectFlow(c *gin.Context) (string, string) {
	state := utils.RandomString(32)
	verifier := utils.RandomString(32)
	challenge := utils.PKCEChallenge(verifier)

	for name, value := range map[string]string{
		stateCookieName: state,
		pkceCookieName:  verifier,
	} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(flowTTL.Seconds()),
		})
	}

	return state, challenge
}

// finishConnectFlow validates the callback state against the cookie and
// returns the PKCE verifier. Empty verifier means the flow is invalid.
func finishConnectFlow(c *gin.Context) string {
	state := c.Query("state")
	if state == "" {
		return ""
	}
	stateCookie, err := c.Request.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		return ""
	}

	pkceCookie, err := c.Request.Cookie(pkceCookieName)
	if err != nil {
		return ""
	}
	return pkceCookie.Value
}
