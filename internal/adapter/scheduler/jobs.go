package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/platform/logger"
	"github.com/ifiokjr/verily/internal/platform/metrics"
	"github.com/ifiokjr/verily/internal/shared"
	"github.com/ifiokjr/verily/internal/store"
)

const (
	healthJob     = "db-health"
	purgeJob      = "refresh-token-purge"
	purgeSchedule = "@hourly"
	// purgeGrace keeps dead refresh tokens around long enough to recognise
	// a replayed token as revoked rather than unknown.
	purgeGrace = 7 * 24 * time.Hour
)

// Jobs configures the background work of the server.
type Jobs struct {
	DB             database.Handle
	Metrics        *metrics.Metrics
	HealthSchedule string
	HealthTimeout  time.Duration
}

// HealthCheck pings the database. A failure is logged with its wire
// discriminant and whether a retry may help, and recorded in metrics.
func HealthCheck(h database.Handle, m *metrics.Metrics, log *slog.Logger, timeout time.Duration) JobFunc {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		err := h.Ping(ctx)
		if m != nil {
			m.RecordHealthCheck(err == nil)
		}
		if err == nil {
			log.Debug("database healthy", "open_connections", h.Stats().OpenConnections)
			return nil
		}

		appErr := shared.Policy{Trusted: true}.Classify(err)
		if m != nil {
			m.RecordError(appErr.Kind.String(), "health")
		}
		log.Warn("database unhealthy", "retryable", appErr.IsRetryable(), logger.ErrorAttr(err))
		return err
	}
}

// PurgeRefreshTokens deletes refresh tokens that died more than grace ago.
func PurgeRefreshTokens(tokens *store.RefreshTokens, log *slog.Logger, grace time.Duration, now func() time.Time) JobFunc {
	return func(ctx context.Context) error {
		n, err := tokens.PurgeExpired(ctx, now().Add(-grace))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("purged refresh tokens", "count", n)
		}
		return nil
	}
}

// Start creates a scheduler with the server jobs registered and started.
// The returned function stops it within timeout.
func Start(ctx context.Context, log *slog.Logger, jobs Jobs) (*Scheduler, func(timeout time.Duration), error) {
	hooks := JobHooks{
		OnJobFinish: func(name string, duration time.Duration, err error) {
			if err == nil {
				log.Debug("job finished", "job", name, "duration", duration)
			}
		},
	}
	s := NewWithContext(ctx, Config{Logger: log.With("component", "scheduler"), JobHooks: hooks})

	if _, err := s.AddCronJobWithOptions(jobs.HealthSchedule,
		HealthCheck(jobs.DB, jobs.Metrics, log, jobs.HealthTimeout),
		JobOptions{Name: healthJob, Timeout: jobs.HealthTimeout, OverlapPolicy: SkipIfRunning},
	); err != nil {
		s.Stop()
		return nil, nil, err
	}

	if _, err := s.AddCronJobWithOptions(purgeSchedule,
		PurgeRefreshTokens(store.NewRefreshTokens(jobs.DB), log, purgeGrace, time.Now),
		JobOptions{Name: purgeJob, Timeout: time.Minute, OverlapPolicy: SkipIfRunning},
	); err != nil {
		s.Stop()
		return nil, nil, err
	}

	s.Start()

	stop := func(timeout time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.StopContext(ctx); err != nil {
			log.Warn("scheduler stop deadline exceeded", logger.ErrorAttr(err))
		}
	}
	return s, stop, nil
}
