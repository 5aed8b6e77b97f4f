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

	httpapi "github.com/openphotolib/photolib/internal/auth/http"
	"github.com/openphotolib/photolib/internal/auth/registry"
	"github.com/openphotolib/photolib/internal/auth/service"
	"github.com/openphotolib/photolib/internal/auth/store"
	"github.com/openphotolib/photolib/internal/auth/store/drivers/sqlite"
	"github.com/openphotolib/photolib/pkg/cryptox"
	"github.com/openphotolib/photolib/pkg/httpx"
	"github.com/openphotolib/photolib/pkg/jwtx"
	"github.com/openphotolib/photolib/pkg/kv"
	"github.com/openphotolib/photolib/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	registry *registry.Registry
	kvStore  kv.Store
	signer   *jwtx.HS256

	// Services
	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	userService         *service.UserService
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
			Service: "photolib",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	users := &service.UserService{Store: app.db}
	if err := users.EnsureDefaultAdmin(ctx); err != nil {
		return nil, fmt.Errorf("failed to provision default admin: %w", err)
	}
	app.userService = users

	reg, err := registry.LoadFile(cfg.ClientsFile)
	if err != nil {
		return nil, err
	}
	app.registry = reg
	app.logger.Info("client registry loaded", "clients", reg.Len(), "file", cfg.ClientsFile)

	if err := app.initSigner(); err != nil {
		return nil, err
	}

	if err := app.initKV(ctx); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("photolib auth service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down photolib auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.kvStore.Close(); err != nil {
		app.logger.Error("error closing key-value store", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("photolib auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSigner builds the HS256 signer. Without a configured secret a
// random one is drawn, which invalidates all access tokens on restart.
func (app *Application) initSigner() error {
	secret := app.cfg.JWTSecret
	if secret == "" {
		generated, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}
		secret = generated
		app.logger.Warn("AUTH_JWT_SECRET not set, using an ephemeral signing secret")
	}

	signer, err := jwtx.NewHS256([]byte(secret), app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.signer = signer
	return nil
}

// initKV selects the key-value backend for the ban list: Redis when an
// address is configured, otherwise in-process memory.
func (app *Application) initKV(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.kvStore = kv.NewMemory()
		return nil
	}

	rdb, err := kv.NewRedis(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.kvStore = rdb
	app.logger.Info("ban list backed by redis", "addr", app.cfg.RedisAddr)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.authorizeService = &service.AuthorizeService{
		Store:    app.db,
		Registry: app.registry,
		CodeTTL:  app.cfg.CodeTTL,
	}

	app.tokenService = &service.TokenService{
		Store:     app.db,
		Registry:  app.registry,
		Signer:    app.signer,
		Verifier:  app.signer,
		Issuer:    app.cfg.Issuer,
		AccessTTL: app.cfg.AccessTokenTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.TokenRetention,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.BanList = httpx.NewBanList(app.kvStore, app.cfg.BanThreshold, app.cfg.BanTTL)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
