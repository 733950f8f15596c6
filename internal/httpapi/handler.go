package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LuisNSantana/hums-authd/internal/authstate"
	"github.com/LuisNSantana/hums-authd/internal/gateway"
	"github.com/LuisNSantana/hums-authd/internal/integration"
	"github.com/LuisNSantana/hums-authd/internal/logger"
	"github.com/LuisNSantana/hums-authd/internal/profile"
)

// Handler exposes the lifecycle operations over HTTP. It is a thin
// adapter: all semantics live in the gateway, the session manager, and
// the integration broker.
type Handler struct {
	gateway    *gateway.Gateway
	states     *authstate.Store
	creds      *authstate.CredentialStore
	profiles   profile.Store
	reconciler *profile.Reconciler
	broker     *integration.Broker
}

// NewHandler wires the HTTP adapter. broker may be nil when no
// integration services are configured; the integration routes then
// respond 404.
func NewHandler(
	gw *gateway.Gateway,
	states *authstate.Store,
	creds *authstate.CredentialStore,
	profiles profile.Store,
	reconciler *profile.Reconciler,
	broker *integration.Broker,
) *Handler {
	return &Handler{
		gateway:    gw,
		states:     states,
		creds:      creds,
		profiles:   profiles,
		reconciler: reconciler,
		broker:     broker,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/signup", h.signUp)
	r.POST("/auth/signin", h.signIn)
	r.POST("/auth/magiclink", h.magicLink)
	r.GET("/auth/oauth/:provider", h.oauthRedirect)
	r.POST("/auth/recover", h.recover)
	r.POST("/auth/resend", h.resend)
	r.GET("/auth/state", h.state)

	authed := r.Group("/", RequireAuth(h.creds))
	authed.POST("/auth/signout", h.signOut)
	authed.PUT("/auth/password", h.updatePassword)
	authed.GET("/profiles", h.listProfiles)
	authed.DELETE("/profiles/:id", h.deactivateProfile)

	if h.broker != nil {
		authed.GET("/integrations/:service", h.integrationStatus)
		authed.GET("/integrations/:service/connect", h.integrationConnect)
		authed.GET("/integrations/:service/callback", h.integrationCallback)
		authed.GET("/integrations/:service/token", h.integrationToken)
		authed.DELETE("/integrations/:service", h.integrationDisconnect)
	}

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := h.gateway.SignUp(c.Request.Context(), req.Email, req.Password, req.Data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identity": identity,
		"state":    h.states.Snapshot(),
	})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.gateway.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.states.Snapshot())
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.gateway.SignOut(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type emailRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

func (h *Handler) magicLink(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.gateway.SendMagicLink(c.Request.Context(), req.Email, req.RedirectTo); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handler) oauthRedirect(c *gin.Context) {
	url, err := h.gateway.StartOAuth(c.Request.Context(), c.Param("provider"), c.Query("redirect_to"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (h *Handler) recover(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.gateway.ResetPassword(c.Request.Context(), req.Email, req.RedirectTo); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) updatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.gateway.UpdatePassword(c.Request.Context(), req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) resend(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.gateway.ResendConfirmation(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.states.Snapshot())
}

func (h *Handler) listProfiles(c *gin.Context) {
	var filter profile.Filter
	if v := c.Query("deactivated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deactivated filter"})
			return
		}
		filter.Deactivated = &b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		filter.Offset = n
	}

	records, err := h.profiles.SelectAll(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": records})
}

func (h *Handler) deactivateProfile(c *gin.Context) {
	if err := h.reconciler.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) integrationStatus(c *gin.Context) {
	userID, _ := UserID(c)
	conn, err := h.broker.Connection(c.Request.Context(), userID, c.Param("service"))
	if err == integration.ErrNotConnected {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected":     true,
		"account_email": conn.AccountEmail,
		"scopes":        conn.Scopes,
		"expires_at":    conn.ExpiresAt,
	})
}

func (h *Handler) integrationConnect(c *gin.Context) {
	state, challenge := beginConnectFlow(c)
	url, err := h.broker.AuthorizationURL(c.Param("service"), state, challenge)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (h *Handler) integrationCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("integration callback returned error", map[string]any{
			"service": c.Param("service"),
			"error":   errParam,
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": errParam})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	verifier := finishConnectFlow(c)
	if verifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid state"})
		return
	}

	userID, _ := UserID(c)
	conn, err := h.broker.CompleteAuthorizationCallback(c.Request.Context(), userID, c.Param("service"), code, verifier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected":     true,
		"account_email": conn.AccountEmail,
	})
}

func (h *Handler) integrationToken(c *gin.Context) {
	userID, _ := UserID(c)
	token, err := h.broker.GetValidAccessToken(c.Request.Context(), userID, c.Param("service"))
	if err == integration.ErrNotConnected {
		c.JSON(http.StatusNotFound, gin.H{"error": "not connected"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

func (h *Handler) integrationDisconnect(c *gin.Context) {
	userID, _ := UserID(c)
	if err := h.broker.Disconnect(c.Request.Context(), userID, c.Param("service")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
