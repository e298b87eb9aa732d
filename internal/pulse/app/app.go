package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/blob"
	httpapi "github.com/aussiebroadwan/pulse/internal/pulse/http"
	"github.com/aussiebroadwan/pulse/internal/pulse/metrics"
	"github.com/aussiebroadwan/pulse/internal/pulse/notify"
	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
	"github.com/aussiebroadwan/pulse/pkg/ratelimit"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X ...".
var BuildVersion = "v0.1.0"

// Application owns every long-lived component of the server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	blobs   blob.Store
	media   http.Handler
	metrics *metrics.Metrics
	limiter *ratelimit.Limiter
	hub     *notify.Hub // nil when realtime is disabled

	tokenService        *service.TokenService
	authService         *service.AuthService
	userService         *service.UserService
	avatarService       *service.AvatarService
	housekeepingService *service.HousekeepingService

	// stopWorkers is set by start and cancels the hub sweeper.
	stopWorkers context.CancelFunc

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "pulse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	db, err := OpenStore(ctx, cfg.Database, app.logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	blobs, media, err := OpenAvatarStore(ctx, cfg.Avatar)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize avatar storage: %w", err)
	}
	app.blobs, app.media = blobs, media

	if err := app.initServices(); err != nil {
		_ = db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler is the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until ctx ends, a shutdown signal
// arrives or the server fails.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.start()

	app.logger.Info("pulse starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"realtime", app.hub != nil,
		"avatar_driver", app.cfg.Avatar.Driver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		app.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// start launches the background workers.
func (app *Application) start() {
	app.housekeepingService.Start()

	sweepCtx, cancel := context.WithCancel(context.Background())
	app.stopWorkers = cancel
	if app.hub != nil {
		go app.hub.RunSweeper(sweepCtx, app.cfg.Notify.SweepInterval)
	}
}

// Shutdown stops the HTTP server, closes every realtime connection, stops
// the background workers and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down pulse...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.stopWorkers != nil {
		app.stopWorkers()
	}
	if app.hub != nil {
		if err := app.hub.Shutdown(ctx); err != nil {
			app.logger.Error("realtime hub did not drain", "error", err)
		}
	}

	if app.stopWorkers != nil {
		app.housekeepingService.Stop()
		app.stopWorkers = nil
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("pulse stopped")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	signer, verifier, err := InitTokenKeys(app.cfg.Auth)
	if err != nil {
		return err
	}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		Signer:     signer,
		Verifier:   verifier,
		Issuer:     app.cfg.Auth.Issuer,
		AccessTTL:  app.cfg.Auth.AccessTTL,
		RefreshTTL: app.cfg.Auth.RefreshTTL,
	}
	app.authService = &service.AuthService{Tokens: app.tokenService}

	// The hub authenticates through the auth service and is in turn the
	// user service's notifier, so it sits between the two.
	var notifier service.Notifier
	if app.cfg.Notify.Enabled {
		app.hub = notify.NewHub(app.authService, app.logger, app.metrics, notify.Config{
			SendBuffer:   app.cfg.Notify.SendBuffer,
			WriteTimeout: app.cfg.Notify.WriteTimeout,
		})
		app.tokenService.OnRevoke(app.hub)
		notifier = app.hub
	}

	app.userService = service.NewUserService(app.db, notifier)
	app.authService.Users = app.userService

	app.avatarService = &service.AvatarService{
		Blobs:    app.blobs,
		Users:    app.userService,
		MaxBytes: app.cfg.Avatar.MaxBytes,
	}

	app.limiter = ratelimit.New([]ratelimit.Bucket{
		{Name: ratelimit.BucketGeneral, Limit: app.cfg.RateLimit.GeneralRequests, Window: app.cfg.RateLimit.GeneralWindow},
		{Name: ratelimit.BucketAuth, Limit: app.cfg.RateLimit.AuthRequests, Window: app.cfg.RateLimit.AuthWindow},
	})

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, app.logger, BuildVersion)

	router.AuthService = app.authService
	router.UserService = app.userService
	router.AvatarService = app.avatarService
	router.Hub = app.hub
	router.WSOrigins = app.cfg.Notify.Origins
	router.Limiter = app.limiter
	router.ClientKey = httpx.ClientKeyExtractor(httpx.ClientKeyConfig{
		IPv6Prefix: app.cfg.RateLimit.IPv6Prefix,
		TrustProxy: app.cfg.RateLimit.TrustProxy,
	})
	router.Metrics = app.metrics
	router.Media = app.media
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
