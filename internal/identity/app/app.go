package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aussiebroadwan/propulse/internal/identity/blob"
	httpapi "github.com/aussiebroadwan/propulse/internal/identity/http"
	"github.com/aussiebroadwan/propulse/internal/identity/mail"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/internal/identity/session"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	serviceName = "identity-service"
)

// Application wires the identity service together and owns its lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	sessions   session.Store
	redis      *redis.Client // nil with the memory session store
	blobs      blob.Presigner

	shutdownTracing func(context.Context) error

	// Services
	accountService      *service.AccountService
	externalService     *service.ExternalLoginService
	twoFactorService    *service.TwoFactorService
	manageService       *service.ManageService
	contentService      *service.ContentService
	clientService       *service.ClientService
	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	userInfoService     *service.UserInfoService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: serviceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}
	ctx := slogx.WithContext(context.Background(), app.logger)

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	shutdownTracing, err := initTracing(ctx, cfg.OTLPEndpoint, serviceName, BuildVersion)
	if err != nil {
		return nil, err
	}
	app.shutdownTracing = shutdownTracing

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	keyManager, err := InitKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initSessions(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initBlobs(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()

	if err := app.seedClients(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("identity service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"issuer", app.cfg.Issuer,
		"session_store", app.cfg.SessionStore,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

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

// Shutdown drains the HTTP server and releases every dependency.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.shutdownTracing(ctx); err != nil {
		app.logger.Error("error flushing traces", "error", err)
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// Handler exposes the instrumented router, mainly for tests.
func (app *Application) Handler() http.Handler {
	return app.server.Handler
}

// initDatabase opens the database, applies migrations and seeds roles and
// the first administrator.
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully")

	if _, err := service.SeedDatabase(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to seed database: %w", err)
	}
	return nil
}

func (app *Application) initSessions(ctx context.Context) error {
	switch app.cfg.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.redis = rdb
		app.sessions = session.NewRedisStore(rdb, "propulse:session:")
		app.logger.Info("redis session store enabled", "addr", app.cfg.RedisAddr)

	case "memory", "":
		app.sessions = session.NewMemoryStore()
		app.logger.Warn("in-memory session store enabled, sessions are lost on restart")

	default:
		return fmt.Errorf("unknown session store %q (supported: memory, redis)", app.cfg.SessionStore)
	}
	return nil
}

// initBlobs enables attachments when a bucket is configured.
func (app *Application) initBlobs(ctx context.Context) error {
	if app.cfg.S3Bucket == "" {
		app.logger.Info("object storage not configured, attachments disabled")
		return nil
	}

	presigner, err := blob.NewS3Presigner(ctx, blob.S3Config{
		Region:       app.cfg.S3Region,
		Endpoint:     app.cfg.S3Endpoint,
		Bucket:       app.cfg.S3Bucket,
		AccessKey:    app.cfg.S3AccessKey,
		SecretKey:    app.cfg.S3SecretKey,
		UsePathStyle: app.cfg.S3UsePathStyle,
		Expiry:       app.cfg.S3PresignTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	app.blobs = presigner
	app.logger.Info("object storage enabled", "bucket", app.cfg.S3Bucket, "endpoint", app.cfg.S3Endpoint)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.accountService = &service.AccountService{
		Store:                   app.db,
		Mailer:                  &mail.LoggingSender{Renderer: mail.NewRenderer(nil)},
		PublicURL:               app.cfg.PublicURL,
		RequireConfirmedAccount: app.cfg.RequireConfirmedAccount,
		MaxFailedAttempts:       app.cfg.MaxFailedAttempts,
		LockoutDuration:         app.cfg.LockoutDuration,
		UserTokenTTL:            app.cfg.UserTokenTTL,
	}
	app.externalService = &service.ExternalLoginService{
		Store:      app.db,
		Providers:  app.cfg.Providers,
		HTTPClient: &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		StateTTL:   service.DefaultExternalStateTTL,
	}
	for name := range app.cfg.Providers {
		app.logger.Info("external login provider enabled", "provider", name)
	}

	app.twoFactorService = &service.TwoFactorService{Store: app.db, Issuer: "Propulse"}
	app.manageService = &service.ManageService{Store: app.db}
	app.contentService = &service.ContentService{Store: app.db, Blobs: app.blobs}
	app.clientService = &service.ClientService{
		Store:          app.db,
		BootstrapToken: app.cfg.BootstrapToken,
	}
	app.authorizeService = &service.AuthorizeService{
		Store:   app.db,
		CodeTTL: app.cfg.CodeTTL,
	}
	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		IDTokenTTL: app.cfg.IDTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}
	app.userInfoService = &service.UserInfoService{Store: app.db}
}

// seedClients registers the clients listed in IDENTITY_CLIENTS.
func (app *Application) seedClients(ctx context.Context) error {
	for _, reg := range app.cfg.Clients {
		if err := app.clientService.Ensure(ctx, reg); err != nil {
			return fmt.Errorf("failed to seed client %q: %w", reg.ID, err)
		}
	}
	return nil
}

// initHTTP initializes the HTTP router, server and housekeeping
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.sessions,
		app.logger,
	)

	router.AllowedOrigins = []string{app.cfg.PublicURL, app.cfg.Issuer}
	router.Cookies = &httpapi.Cookies{
		Sessions:      app.sessions,
		Secure:        app.cfg.SecureCookies,
		TTL:           app.cfg.SessionTTL,
		PersistentTTL: app.cfg.PersistentSession,
	}
	router.AccountService = app.accountService
	router.ExternalService = app.externalService
	router.TwoFactorService = app.twoFactorService
	router.ManageService = app.manageService
	router.ContentService = app.contentService
	router.ClientService = app.clientService
	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.UserInfoService = app.userInfoService
	router.ApplyRoutes()

	app.router = router

	sweepers := []service.Sweeper{app.externalService}
	for _, rl := range router.Limiters() {
		sweepers = append(sweepers, rl)
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
		sweepers...,
	)

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           otelhttp.NewHandler(router, serviceName),
		ReadHeaderTimeout: 3 * time.Second,
	}
}
