package pg

import (
	"context"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions holds settings for a PostgreSQL connection pool. Settings
// given as pool_* parameters in the DSN take precedence.
type PoolOptions struct {
	MaxConns              int32
	MinConns              int32
	HealthCheckPeriod     time.Duration
	MaxConnLifetime       time.Duration
	MaxConnLifetimeJitter time.Duration
	MaxConnIdleTime       time.Duration
	// ApplicationName is reported in pg_stat_activity unless the DSN sets
	// application_name.
	ApplicationName string
	// PingTimeout bounds the connectivity check performed on creation.
	PingTimeout time.Duration
}

// DefaultPoolOptions sizes the pool for request handlers: four connections
// per usable CPU, between 8 and 32. Lifetimes are jittered so a fleet of
// instances does not reconnect at once after a failover.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:              maxConnsFor(runtime.GOMAXPROCS(0)),
		MinConns:              1,
		HealthCheckPeriod:     time.Minute,
		MaxConnLifetime:       30 * time.Minute,
		MaxConnLifetimeJitter: 5 * time.Minute,
		MaxConnIdleTime:       5 * time.Minute,
		ApplicationName:       "verily",
		PingTimeout:           5 * time.Second,
	}
}

func maxConnsFor(procs int) int32 {
	return int32(min(max(4*procs, 8), 32))
}

// NewPool creates a pool with DefaultPoolOptions.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return NewPoolWithOptions(ctx, dsn, DefaultPoolOptions())
}

// NewPoolWithOptions creates a pool and pings the server once.
func NewPoolWithOptions(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func poolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	set := func(param string) bool {
		_, ok := parsed.ExtraParams[param]
		return ok
	}

	if !set("pool_max_conns") {
		cfg.MaxConns = opts.MaxConns
	}
	if !set("pool_min_conns") {
		cfg.MinConns = min(opts.MinConns, cfg.MaxConns)
	}
	if !set("pool_health_check_period") {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	if !set("pool_max_conn_lifetime") {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if !set("pool_max_conn_lifetime_jitter") {
		cfg.MaxConnLifetimeJitter = opts.MaxConnLifetimeJitter
	}
	if !set("pool_max_conn_idle_time") {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if parsed.ApplicationName == "" && opts.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}
	return cfg, nil
}
