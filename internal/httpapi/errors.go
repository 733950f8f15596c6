package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

// statusFor maps lifecycle error kinds onto HTTP statuses.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidationFailed:
		return http.StatusBadRequest
	case auth.KindInvalidCredentials, auth.KindTokenExpiredNoRefresh:
		return http.StatusUnauthorized
	case auth.KindEmailNotConfirmed:
		return http.StatusForbidden
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindTimeout:
		return http.StatusGatewayTimeout
	case auth.KindNetworkUnavailable, auth.KindTokenExchangeFailed:
		return http.StatusBadGateway
	case auth.KindProfileUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func respondError(c *gin.Context, err error) {
	e := auth.AsError(err)
	c.JSON(statusFor(e.Kind), gin.H{
		"error": string(e.Kind),
		"msg":   e.Message,
	})
}
