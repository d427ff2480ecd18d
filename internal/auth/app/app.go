package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/sessionauth/internal/auth/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/postgres"
	redisstore "github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// BuildVersion is overridden at link time with -ldflags "-X ...".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db            store.Store
	refreshTokens store.RefreshTokens
	closers       []io.Closer
	codec         *jwtx.HS256Codec
	hasher        *cryptox.PasswordHasher

	// Services
	sessionService      *service.SessionService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService // nil when disabled

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency opened and migrated. On
// error anything already opened is closed again.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sessionauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.init(ctx); err != nil {
		app.closeStores()
		return nil, err
	}
	return app, nil
}

func (app *Application) init(ctx context.Context) error {
	// Crypto first so a bad secret or cost fails before touching storage.
	codec, err := jwtx.NewHS256Codec(jwtx.HS256Config{
		Secret: []byte(app.cfg.SigningSecret),
		Issuer: app.cfg.Issuer,
		TTL:    app.cfg.AccessTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	hasher, err := cryptox.NewPasswordHasher(app.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	app.hasher = hasher

	if err := app.initDatabase(ctx); err != nil {
		return err
	}
	if err := app.initRefreshStore(ctx); err != nil {
		return err
	}

	app.initServices()

	if err := app.bootstrap(ctx); err != nil {
		return err
	}

	return app.initHTTP()
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"store", app.cfg.StoreDriver,
		"refresh_store", app.refreshStoreName(),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
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

// Shutdown stops the HTTP server, then the reaper, then closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
		app.housekeepingService = nil
	}

	err := app.closeStores()
	app.logger.Info("auth service stopped")
	return err
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) closeStores() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error("error closing store", "error", err)
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// initDatabase opens the user store and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.StoreDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.PostgresDSN)
	default:
		db, err = sqlite.NewStore(sqliteDSN(app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

func (app *Application) initRefreshStore(ctx context.Context) error {
	if !app.cfg.UsesRedis() {
		app.refreshTokens = app.db.RefreshTokens()
		return nil
	}

	rs, err := redisstore.Open(ctx, redisstore.Options{
		Addr:      app.cfg.Redis.Addr,
		Password:  app.cfg.Redis.Password,
		DB:        app.cfg.Redis.DB,
		KeyPrefix: app.cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize refresh token store: %w", err)
	}
	app.refreshTokens = rs
	app.closers = append(app.closers, rs)
	return nil
}

func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Users:         app.db.Users(),
		RefreshTokens: service.NewRefreshTokenStore(app.refreshTokens, app.cfg.RefreshTokenTTL),
		Tokens:        app.codec,
		Passwords:     app.hasher,
	}

	app.bootstrapService = &service.BootstrapService{
		Users:     app.db.Users(),
		Passwords: app.hasher,
	}

	if app.cfg.HousekeepingInterval > 0 {
		app.housekeepingService = service.NewHousekeepingService(
			app.refreshTokens,
			app.logger,
			app.cfg.HousekeepingInterval,
		)
	}
}

// bootstrap seeds the configured admin once. A populated directory is not an
// error so restarts with the same env keep working.
func (app *Application) bootstrap(ctx context.Context) error {
	if !app.cfg.Bootstrap.Enabled() {
		return nil
	}

	ctx = slogx.WithContext(ctx, app.logger)
	id, err := app.bootstrapService.Bootstrap(ctx, domain.BootstrapData{
		AdminEmail:    app.cfg.Bootstrap.Email,
		AdminName:     app.cfg.Bootstrap.Name,
		AdminPassword: app.cfg.Bootstrap.Password,
	})
	switch {
	case errors.Is(err, service.ErrBootstrapAlready):
		app.logger.Info("bootstrap skipped, directory already has users")
		return nil
	case err != nil:
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	app.logger.Info("bootstrap admin created", "user_id", id)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	trusted, err := httpx.ParseTrustedProxies(app.cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	router := httpapi.NewRouter(app.sessionService, app.codec, httpapi.RateLimits{
		Credential:     app.cfg.LoginRateLimit,
		Session:        app.cfg.SessionRateLimit,
		TrustedProxies: trusted,
	}, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}

func (app *Application) refreshStoreName() string {
	if app.cfg.UsesRedis() {
		return DriverRedis
	}
	return app.cfg.StoreDriver
}

// sqliteDSN turns a file path into a modernc DSN with FKs, WAL and a busy
// timeout. In-memory databases are passed through.
func sqliteDSN(file string) string {
	if file == ":memory:" {
		return file
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", file)
}
