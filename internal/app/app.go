// Package app is the composition root: it wires configuration, infra,
// the identity provider, the lifecycle manager, and the HTTP surface
// into one runnable service.
package app

import (
	"context"
	"net/http"

	"github.com/LuisNSantana/hums-authd/internal/config"
	"github.com/LuisNSantana/hums-authd/internal/sessionmgr"
)

type App struct {
	httpServer *http.Server

	manager    *sessionmgr.Manager
	credsUnsub func()
	feedStop   func()
	infra      *Infra
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	router, parts, err := setupHTTP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router,
	}

	return &App{
		httpServer: server,
		manager:    parts.manager,
		credsUnsub: parts.credsUnsub,
		feedStop:   parts.feedStop,
		infra:      parts.infra,
	}, nil
}

func (a *App) Run() error {
	return a.httpServer.ListenAndServe()
}

// Shutdown tears the service down in reverse startup order: drain HTTP,
// stop the refresh loop and change listener, detach credential tracking
// and the event feed, then close the backends.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	a.manager.Close()
	a.credsUnsub()
	if a.feedStop != nil {
		a.feedStop()
	}
	return a.infra.close()
}
