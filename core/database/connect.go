package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/topicrelay/core/logger"
)

const (
	defaultPoolSize = 10
	pingTimeout     = 5 * time.Second
	pingInterval    = 2 * time.Second
	connMaxIdleTime = 5 * time.Minute
)

// Connect opens a pooled postgres handle and pings it. With WaitSeconds set
// it keeps pinging until the server answers or the wait runs out.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx := context.Background()
	db, err := sqlx.Open(DriverPostgres, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	start := time.Now()
	if err := pingUntil(ctx, db, time.Duration(cfg.WaitSeconds)*time.Second); err != nil {
		_ = db.Close()
		logger.Error(ctx, logger.ComponentDB, "db.connect", append(target(cfg),
			slog.String("status", "fail"),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if pool <= 0 {
		pool = defaultPoolSize
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	logger.Info(ctx, logger.ComponentDB, "db.connect", append(target(cfg),
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)...)
	return db, nil
}

// pingUntil pings db once, or repeatedly for up to wait when wait > 0.
func pingUntil(ctx context.Context, db *sqlx.DB, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if wait <= 0 || time.Now().Add(pingInterval).After(deadline) {
			return fmt.Errorf("ping after %d attempt(s): %w", attempt, err)
		}
		logger.Debug(ctx, logger.ComponentDB, "db.wait",
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pingInterval):
		}
	}
}

func target(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("driver", DriverPostgres),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
}
