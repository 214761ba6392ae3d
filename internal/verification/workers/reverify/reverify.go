package reverify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bobinator/internal/verification/batch"
)

const DefaultInterval = 24 * time.Hour

// Runner re-verifies the whole provider population once.
type Runner interface {
	VerifyAll(ctx context.Context) ([]batch.ReportEntry, error)
}

// Worker periodically re-verifies every provider.
type Worker struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Worker)

// WithInterval overrides the run interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func New(runner Runner, opts ...Option) (*Worker, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	w := &Worker{
		runner:   runner,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start runs a re-verification every interval until ctx is cancelled. The
// first run happens one interval after Start.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Failures are logged by RunOnce; the next tick tries again.
			_, _ = w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single re-verification and summarizes it.
func (w *Worker) RunOnce(ctx context.Context) (batch.Summary, error) {
	start := time.Now()
	report, err := w.runner.VerifyAll(ctx)
	sum := batch.Summarize(report)

	if err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		w.logger.Log(ctx, level, "reverify_run_failed",
			"error", err,
			"total", sum.Total,
			"failed", sum.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return sum, fmt.Errorf("re-verify providers: %w", err)
	}

	w.logger.InfoContext(ctx, "reverify_run_completed",
		"total", sum.Total,
		"ok", sum.OK,
		"failed", sum.Failed,
		"fully_verified", sum.Verified,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}
