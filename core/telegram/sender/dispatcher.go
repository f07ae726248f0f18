// Package sender runs outbound Bot API calls that must not block the update
// loop, such as admin notifications, on a small worker pool with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/intakebot/core/logger"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options configures NewDispatcher. Zero values select the defaults.
type Options struct {
	QueueSize    int           // 256
	Workers      int           // 4
	MaxRetries   int           // 0
	RetryBackoff time.Duration // 2s, multiplied by the attempt number
	// MaxDuration bounds all attempts of one job; 12s.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// RunFunc performs one outbound call. It may run several times, so it must be
// safe to repeat.
type RunFunc func(ctx context.Context) error

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      RunFunc
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("op", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, extra...)
}

// Dispatcher executes queued jobs. Pending counts jobs accepted and not yet
// finished; the health endpoint reports it.
type Dispatcher struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	pending atomic.Int64
	failed  atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:  opts,
		jobs:  make(chan job, opts.QueueSize),
		sleep: sleepCtx,
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.process(j)
				d.pending.Add(-1)
			}
		}()
	}
	return d
}

// Enqueue hands run to a worker without waiting for it. The values of ctx are
// kept for logging; its cancellation is not.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run RunFunc) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	d.pending.Add(1)
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		d.pending.Add(-1)
		return ErrQueueFull
	}
}

// Pending returns the number of accepted jobs that have not finished yet.
func (d *Dispatcher) Pending() int { return int(d.pending.Load()) }

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 { return d.failed.Load() }

// Close rejects new jobs and waits until the queued ones are done.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) process(j job) {
	start := time.Now()
	attempts, err := d.deliver(j)
	elapsed := time.Since(start)
	if err == nil {
		logger.Debug(j.ctx, "tg.sender", "send.success",
			j.attrs(slog.Int("attempts", attempts), slog.Duration("elapsed", elapsed))...)
		return
	}
	d.failed.Add(1)
	logger.Error(j.ctx, "tg.sender", "send.fail", j.attrs(
		slog.String("status", "fail"),
		slog.String("err", redactToken(err)),
		slog.String("err_code", classifyError(err)),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", elapsed),
	)...)
}

// deliver runs j until it succeeds, fails permanently, runs out of attempts
// or exceeds MaxDuration.
func (d *Dispatcher) deliver(j job) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.opts.MaxDuration)
	defer cancel()

	limit := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		err := j.run(ctx)
		if err == nil {
			return attempt, nil
		}
		wait, retry := retryDelay(err, d.opts.RetryBackoff*time.Duration(attempt))
		if !retry || attempt == limit {
			return attempt, err
		}
		logger.Debug(j.ctx, "tg.sender", "send.retry",
			j.attrs(
				slog.String("status", "retry"),
				slog.Int("attempts", attempt),
				slog.Duration("backoff", wait),
				slog.String("err_code", classifyError(err)),
			)...)
		if sleepErr := d.sleep(ctx, wait); sleepErr != nil {
			return attempt, errors.Join(err, sleepErr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
