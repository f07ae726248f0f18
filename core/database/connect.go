package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/intakebot/core/logger"
)

const (
	// readyTimeout bounds the wait for a database container that is still
	// starting.
	readyTimeout = 30 * time.Second
	readyPoll    = 2 * time.Second
	pingTimeout  = 5 * time.Second
)

func init() {
	// sqlx does not know the modernc driver name; queries use '?' placeholders.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens the pool and returns once the database answers a ping.
// Postgres gets readyTimeout to come up; a SQLite file is created on demand
// and must answer at once.
func Connect(cfg Config) (*sqlx.DB, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("db config: %w", err)
	}
	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	wait := pingTimeout
	if cfg.Driver == DriverPostgres {
		wait = readyTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	start := time.Now()
	attempts, err := waitReady(ctx, db)
	attrs := []slog.Attr{
		slog.String("driver", cfg.Driver),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", describe(cfg)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		_ = db.Close()
		logger.Error(ctx, "db", "db.connect", append(attrs, slog.String("status", "fail"), logger.Err(err))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	logger.Info(ctx, "db", "db.connect", append(attrs,
		slog.String("status", "ok"),
		slog.Int("pool_open", cfg.MaxConnections),
	)...)
	return db, nil
}

// waitReady pings db every readyPoll until it answers or ctx expires.
func waitReady(ctx context.Context, db *sqlx.DB) (int, error) {
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			return attempt, nil
		}
		t := time.NewTimer(readyPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt, fmt.Errorf("database not ready: %w", err)
		case <-t.C:
		}
	}
}

func describe(cfg Config) string {
	if cfg.Driver == DriverSQLite {
		return cfg.Path
	}
	return cfg.Name
}
