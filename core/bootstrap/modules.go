package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/intakebot/core/logger"
)

// Seeder prepares data the bot needs before it starts serving events.
type Seeder interface {
	Seed(ctx context.Context) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error {
	return f(ctx)
}

// Named attaches a label used in logs to a seeder.
type Named struct {
	Name   string
	Seeder Seeder
}

// Modules groups optional start-up hooks.
type Modules struct {
	Seeders []Named
}

// Seed runs every seeder in order. A failing seeder does not stop the others;
// the failures are returned joined.
func (m Modules) Seed(ctx context.Context) error {
	var errs []error
	for _, s := range m.Seeders {
		if s.Seeder == nil {
			continue
		}
		start := time.Now()
		err := s.Seeder.Seed(ctx)
		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("op", s.Name),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", s.Name, err))
			attrs[0] = slog.String("status", "fail")
			attrs = append(attrs, logger.Err(err))
		}
		logger.Info(ctx, "bootstrap", "seed", attrs...)
	}
	return errors.Join(errs...)
}
