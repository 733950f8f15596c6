package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LuisNSantana/hums-authd/internal/authstate"
	"github.com/LuisNSantana/hums-authd/internal/config"
	"github.com/LuisNSantana/hums-authd/internal/gateway"
	"github.com/LuisNSantana/hums-authd/internal/httpapi"
	"github.com/LuisNSantana/hums-authd/internal/integration"
	"github.com/LuisNSantana/hums-authd/internal/logger"
	"github.com/LuisNSantana/hums-authd/internal/profile"
	"github.com/LuisNSantana/hums-authd/internal/provider"
	"github.com/LuisNSantana/hums-authd/internal/provider/local"
	"github.com/LuisNSantana/hums-authd/internal/session"
	"github.com/LuisNSantana/hums-authd/internal/sessionmgr"
)

// components carries everything built during setup whose lifetime App
// has to manage; Shutdown walks these in reverse startup order.
type components struct {
	manager    *sessionmgr.Manager
	credsUnsub func()
	feedStop   func()
	infra      *Infra
}

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, components, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, components{}, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	var sessionStore session.Store
	if infra.Redis != nil {
		sessionStore = session.NewRedisStore(infra.Redis.Client)
	} else {
		sessionStore = session.NewMemoryStore()
	}

	var prov provider.Provider
	var feedStop func()
	if cfg.UseLocalProvider() {
		logger.Warn("no PROVIDER_URL, using built-in local provider", nil)
		prov = local.New()
	} else {
		httpProvider := provider.NewHTTPClient(
			cfg.ProviderURL,
			cfg.ProviderKey,
			sessionStore,
			provider.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		)
		if infra.Redis != nil {
			feed := provider.NewFeed(infra.Redis.Client)
			stop, err := httpProvider.AttachFeed(ctx, feed)
			if err != nil {
				return nil, components{}, err
			}
			feedStop = stop
			logger.Info("auth event feed attached", nil)
		}
		prov = httpProvider
	}

	var profileStore profile.Store
	if infra.DB != nil {
		profileStore = profile.NewPostgresStore(infra.DB)
	} else {
		profileStore = profile.NewMemoryStore()
	}
	reconciler := profile.NewReconciler(profileStore)

	states := authstate.New()
	creds := authstate.NewCredentialStore()
	credsUnsub := creds.Track(states)

	manager := sessionmgr.New(
		prov,
		states,
		reconciler,
		sessionmgr.WithExpiryThreshold(cfg.ExpiryThreshold),
		sessionmgr.WithRefreshInterval(cfg.RefreshInterval),
		sessionmgr.WithFailClosed(cfg.ProfileFailClosed),
	)

	// A failed restore publishes the error state and the service keeps
	// serving; the provider may come back.
	if err := manager.Initialize(ctx); err != nil {
		logger.Warn("session restore failed", map[string]any{"error": err.Error()})
	}
	manager.Start()

	broker, err := setupIntegrations(ctx, cfg, infra)
	if err != nil {
		return nil, components{}, err
	}

	authGateway := gateway.New(prov, manager, states, reconciler)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	httpapi.NewHandler(authGateway, states, creds, profileStore, reconciler, broker).
		RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router, components{
		manager:    manager,
		credsUnsub: credsUnsub,
		feedStop:   feedStop,
		infra:      infra,
	}, nil
}

// setupIntegrations builds the credential broker when both a database
// and the Google OAuth app are configured. Returns nil otherwise; the
// HTTP layer then omits the integration routes.
func setupIntegrations(ctx context.Context, cfg config.Config, infra *Infra) (*integration.Broker, error) {
	if infra.DB == nil || !cfg.IntegrationsEnabled() {
		logger.Info("integrations disabled", nil)
		return nil, nil
	}

	calendar, err := integration.NewGoogleService(
		ctx,
		"calendar",
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		[]string{"https://www.googleapis.com/auth/calendar.readonly"},
	)
	if err != nil {
		return nil, err
	}

	drive, err := integration.NewGoogleService(
		ctx,
		"drive",
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		[]string{"https://www.googleapis.com/auth/drive.readonly"},
	)
	if err != nil {
		return nil, err
	}

	return integration.NewBroker(
		integration.NewPostgresStore(infra.DB),
		integration.NewRegistry(calendar, drive),
	), nil
}
