package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/keycache"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates one resource service with all its dependencies
type Application struct {
	cfg    Config
	def    Definition
	logger *slog.Logger

	cache  *keycache.Cache
	server *http.Server
	router *Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config, def Definition) (*Application, error) {
	app := &Application{
		cfg: cfg,
		def: def,
		logger: slogx.New(slogx.Config{
			Service: def.Name,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	issuerClient := authsdk.NewSDKClient(cfg.IssuerURL)
	app.cache = keycache.New(issuerClient.JWKSFetcher(), cfg.KeyCacheTTL)

	verifier, err := jwtx.NewVerifier(cfg.Algorithm, app.cache, cfg.IssuerName, cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to build verifier: %w", err)
	}

	router := NewRouter(def, verifier, app.cache, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.warmKeyCache()

	app.logger.Info("resource service starting",
		"service", app.def.Name,
		"port", app.cfg.Port,
		"version", BuildVersion,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down resource service...", "service", app.def.Name)

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.logger.Info("resource service stopped", "service", app.def.Name)
	return nil
}

// warmKeyCache pre-fetches the issuer keys. Failure is fine: the issuer
// may still be starting, and the cache fetches on demand.
func (app *Application) warmKeyCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.cache.Warm(ctx); err != nil {
		app.logger.Warn("key cache warmup failed, will fetch on demand", "err", err)
	}
}
