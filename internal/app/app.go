package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ifiokjr/verily/internal/adapter/httpapi"
	"github.com/ifiokjr/verily/internal/adapter/scheduler"
	"github.com/ifiokjr/verily/internal/auth"
	"github.com/ifiokjr/verily/internal/config"
	"github.com/ifiokjr/verily/internal/platform/crypto"
	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/platform/logger"
	"github.com/ifiokjr/verily/internal/platform/metrics"
	"github.com/ifiokjr/verily/internal/platform/pg"
	"github.com/ifiokjr/verily/internal/shared"
)

const healthTimeout = 5 * time.Second

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "verily",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Close flushes the log file.
func (a *App) Close() error { return logger.Close(a.log) }

// Migrate applies the embedded schema and closes the database again.
func (a *App) Migrate(ctx context.Context) (database.MigrationInfo, error) {
	h, info, err := a.openDatabase(ctx)
	if err != nil {
		return info, err
	}
	return info, h.Close()
}

// openDatabase waits for a Postgres server to come up, opens the pool and
// applies pending migrations.
func (a *App) openDatabase(ctx context.Context) (database.Handle, database.MigrationInfo, error) {
	dsn := a.cfg.Database.URL
	if pg.IsDSN(dsn) {
		a.log.Info("waiting for database", "database", pg.Redact(dsn))
		opts := pg.DefaultHealthCheckOptions()
		opts.OnRetry = func(attempt int, err error, wait time.Duration) {
			a.log.Warn("database not ready", "attempt", attempt, "wait", wait, logger.ErrorAttr(err))
		}
		if err := pg.WaitForDB(ctx, dsn, opts); err != nil {
			return database.Handle{}, database.MigrationInfo{}, shared.DbConnectionError(err)
		}
	}

	h, err := database.TryNew(ctx, dsn)
	if err != nil {
		return database.Handle{}, database.MigrationInfo{}, err
	}
	info, err := database.MigrateEmbedded(ctx, h)
	if err != nil {
		_ = h.Close()
		return database.Handle{}, info, shared.Wrapf(err, "migrate %s schema", h.Dialect())
	}
	issues, err := h.SchemaIssues(ctx, database.Schema)
	if err != nil {
		_ = h.Close()
		return database.Handle{}, info, shared.Wrap(err, "check schema")
	}
	for _, issue := range issues {
		a.log.Warn("schema drift", "issue", issue.String(), "blocking", issue.Blocking())
	}
	if err := database.SchemaError(issues); err != nil {
		_ = h.Close()
		return database.Handle{}, info, err
	}

	a.log.Info("database ready",
		"dialect", h.Dialect(),
		"version", info.FinalVersion,
		"applied", info.Applied,
	)
	return h, info, nil
}

// sessionCipher builds the cipher sealing session client descriptions. It
// is nil when ENCRYPTION_KEY is unset, and sessions then store none.
func (a *App) sessionCipher() (*crypto.Cipher, error) {
	if a.cfg.Auth.EncryptionKey == "" {
		a.log.Info("ENCRYPTION_KEY is unset; session clients are not stored")
		return nil, nil
	}
	key, err := crypto.ParseKey(a.cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return crypto.NewCipher(key)
}

// Run serves HTTP until ctx is done or the process receives SIGINT or
// SIGTERM, then shuts down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting", "env", a.cfg.Env, "addr", a.cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, _, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			a.log.Warn("close database", logger.ErrorAttr(err))
		}
	}()

	cipher, err := a.sessionCipher()
	if err != nil {
		return err
	}
	m := metrics.New()
	tokens := auth.NewTokens([]byte(a.cfg.Auth.JWTSecret), a.cfg.Auth.AccessTokenTTL)
	svc := auth.NewService(h, tokens, a.cfg.Auth.RefreshTokenTTL, auth.WithCipher(cipher))

	_, stopJobs, err := scheduler.Start(ctx, a.log, scheduler.Jobs{
		DB:             h,
		Metrics:        m,
		HealthSchedule: a.cfg.Health.Schedule,
		HealthTimeout:  healthTimeout,
	})
	if err != nil {
		return err
	}
	defer stopJobs(a.cfg.HTTP.ShutdownTimeout)

	if !a.cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := httpapi.NewRouter(httpapi.Options{
		DB:          h,
		Auth:        svc,
		Metrics:     m,
		Log:         a.log,
		Development: a.cfg.IsDev(),
	})

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
