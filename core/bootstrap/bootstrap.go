package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/intakebot/core/config"
	coredatabase "github.com/m3rciful/intakebot/core/database"
	"github.com/m3rciful/intakebot/core/logger"
)

// Options control the generic bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// Migrations holds one directory of migrations per driver.
	Migrations fs.FS

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config, fs.FS) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

func (o Options) withDefaults() Options {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
	return o
}

// Run initializes the logger, connects to the database and applies the
// migrations, in that order. The connection is closed again when migrating
// fails.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	opts = opts.withDefaults()
	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	ctx := context.Background()
	start := time.Now()
	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	connected := time.Now()

	if opts.Migrations != nil {
		if err := opts.Migrate(opts.Database, opts.Migrations); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				logger.Warn(ctx, "bootstrap", "db.close", logger.Err(closeErr))
			}
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	logger.Info(ctx, "bootstrap", "infra.ready",
		slog.String("status", "ok"),
		slog.String("driver", opts.Database.Driver),
		slog.Bool("migrated", opts.Migrations != nil),
		slog.Duration("connect_duration", connected.Sub(start)),
		slog.Duration("duration", time.Since(start)),
	)
	return &Result{DB: db}, nil
}
