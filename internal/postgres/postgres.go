package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	DSN      string
	MaxConns int32
	// AppName shows up in pg_stat_activity.
	AppName string
	// ConnectAttempts bounds the startup ping retries. Zero means 5.
	ConnectAttempts int
}

// New opens a pool and waits for the server to answer, retrying with a
// linear backoff while it starts up.
func New(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	const op = "postgres.New"

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if cfg.AppName == "" {
		cfg.AppName = "slotgo"
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	// hold expiry is compared against timestamptz columns
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 5
	}

	for i := 1; ; i++ {
		ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = pool.Ping(ctxPing)
		cancel()
		if err == nil {
			return pool, nil
		}
		if i >= attempts {
			break
		}

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(time.Duration(i) * time.Second):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("%s: ping after %d attempts: %w", op, attempts, err)
}
