// Package batch re-verifies every provider on file with bounded concurrency.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/models"
	"bobinator/internal/verification/tracer"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
)

const DefaultConcurrency = 4

// Verifier runs all checks for one provider.
type Verifier interface {
	VerifyProvider(ctx context.Context, providerID id.ProviderID) (*models.CombinedResult, error)
}

// ProviderLister lists the population to re-verify, in a stable order.
type ProviderLister interface {
	ListProviders(ctx context.Context) ([]models.Provider, error)
}

// ReportEntry is the outcome for one provider. Error is set when verifying the
// provider failed unexpectedly; Results may still hold the checks that ran.
type ReportEntry struct {
	ProviderID   id.ProviderID          `json:"provider_id"`
	Name         string                 `json:"name"`
	BusinessName string                 `json:"business_name,omitempty"`
	Results      *models.CombinedResult `json:"results,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

func (e ReportEntry) OK() bool { return e.Error == "" }

type Summary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Failed   int `json:"failed"`
	Verified int `json:"fully_verified"`
}

// Summarize counts entries. Verified counts providers whose three checks all succeeded.
func Summarize(entries []ReportEntry) Summary {
	sum := Summary{Total: len(entries)}
	for _, e := range entries {
		if !e.OK() {
			sum.Failed++
			continue
		}
		sum.OK++
		if e.Results != nil && e.Results.AllSucceeded() {
			sum.Verified++
		}
	}
	return sum
}

type Runner struct {
	verifier    Verifier
	lister      ProviderLister
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
}

type Option func(*Runner)

// WithConcurrency bounds how many providers are verified at once. Values <= 0 are ignored.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

func New(verifier Verifier, lister ProviderLister, opts ...Option) *Runner {
	r := &Runner{
		verifier:    verifier,
		lister:      lister,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// VerifyAll verifies every listed provider and returns one entry per provider
// in listing order. A failure or panic for one provider is recorded on its
// entry and never affects the others.
//
// When ctx is cancelled no further providers are started. Verifications
// already running finish on a context detached from ctx, and VerifyAll
// returns the entries produced so far together with ctx.Err().
func (r *Runner) VerifyAll(ctx context.Context) ([]ReportEntry, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, tracer.SpanVerifyAll)

	providers, err := r.lister.ListProviders(ctx)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to list providers")
		span.End(err)
		return nil, err
	}
	span.SetAttributes(tracer.Int(tracer.AttrBatchSize, len(providers)))

	entries := make([]ReportEntry, len(providers))
	detached := context.WithoutCancel(ctx)
	sem := semaphore.NewWeighted(int64(r.concurrency))

	var g errgroup.Group
	scheduled := 0
	for i, p := range providers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		// Acquire may succeed on an already cancelled context.
		if ctx.Err() != nil {
			sem.Release(1)
			break
		}
		scheduled = i + 1
		g.Go(func() error {
			defer sem.Release(1)
			entries[i] = r.verifyOne(detached, p)
			return nil
		})
	}
	_ = g.Wait()

	entries = entries[:scheduled]
	sum := Summarize(entries)
	outcome := "completed"
	runErr := ctx.Err()
	if runErr != nil {
		outcome = "cancelled"
	}
	if r.metrics != nil {
		r.metrics.RecordBatchRun(outcome, sum.Failed, time.Since(start).Seconds())
	}
	r.logger.InfoContext(detached, "verify_all_finished",
		"outcome", outcome,
		"population", len(providers),
		"processed", sum.Total,
		"failed", sum.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	span.End(runErr)
	return entries, runErr
}

func (r *Runner) verifyOne(ctx context.Context, p models.Provider) (entry ReportEntry) {
	entry = ReportEntry{ProviderID: p.ID, Name: p.Name, BusinessName: p.BusinessName}
	defer func() {
		if rec := recover(); rec != nil {
			entry.Results = nil
			entry.Error = fmt.Sprintf("panic: %v", rec)
			r.logger.ErrorContext(ctx, "verify_provider_panicked",
				"provider_id", p.ID.String(),
				"panic", rec,
			)
		}
	}()

	r.logger.InfoContext(ctx, "verifying_provider", "provider_id", p.ID.String(), "name", p.Name)
	res, err := r.verifier.VerifyProvider(ctx, p.ID)
	entry.Results = res
	if err != nil {
		entry.Error = err.Error()
		r.logger.ErrorContext(ctx, "verify_provider_failed",
			"provider_id", p.ID.String(),
			"error", err,
		)
	}
	return entry
}
