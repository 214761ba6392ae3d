// Package search answers directory searches against the registries, caching
// results per jurisdiction and query.
package search

import (
	"context"
	"log/slog"
	"strings"

	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/registry/cache"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/tracer"
	dErrors "bobinator/pkg/domain-errors"
	"bobinator/pkg/validation"
)

type Service struct {
	registry *providers.Registry
	cache    cache.SearchCache
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New builds a search service. A nil cache disables caching.
func New(registry *providers.Registry, c cache.SearchCache, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		cache:    c,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns at most limit hits for query in jurisdiction j. limit <= 0
// means the default; larger than the maximum is clamped.
func (s *Service) Search(ctx context.Context, j providers.Jurisdiction, query string, limit int) ([]providers.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "search query is required")
	}
	if len(query) > validation.MaxQueryLength {
		return nil, dErrors.New(dErrors.CodeBadRequest, "search query is too long")
	}
	switch {
	case limit <= 0:
		limit = validation.DefaultSearchLimit
	case limit > validation.MaxSearchLimit:
		limit = validation.MaxSearchLimit
	}

	adapter, ok := s.registry.Get(j)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnsupported, "unsupported jurisdiction: "+string(j))
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanRegistrySearch, tracer.String(tracer.AttrJurisdiction, string(j)))
	defer span.End(nil)

	key := cache.Key(j, query, limit)
	if s.cache != nil {
		hits, found, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "search cache read failed", "error", err)
		}
		if found {
			s.recordCache(span, true)
			if hits == nil {
				hits = []providers.SearchHit{}
			}
			return hits, nil
		}
		s.recordCache(span, false)
	}

	hits := adapter.Search(ctx, query, limit)
	if hits == nil {
		hits = []providers.SearchHit{}
	}
	// Empty results are not cached: adapters report failures as empty.
	if s.cache != nil && len(hits) > 0 {
		if err := s.cache.Set(ctx, key, hits); err != nil {
			s.logger.WarnContext(ctx, "search cache write failed", "error", err)
		}
	}
	return hits, nil
}

type lookupInput struct {
	LicenseNumber string `validate:"required,notblank,max=64,licensenumber"`
}

// Lookup fetches one license straight from the registry. Nothing is
// persisted; a failed lookup comes back as an unsuccessful result.
func (s *Service) Lookup(ctx context.Context, j providers.Jurisdiction, licenseNumber string) (*providers.LookupResult, error) {
	licenseNumber = strings.TrimSpace(licenseNumber)
	if err := validation.Validate(lookupInput{LicenseNumber: licenseNumber}); err != nil {
		return nil, err
	}
	adapter, ok := s.registry.Get(j)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnsupported, "unsupported jurisdiction: "+string(j))
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanRegistryLookup, tracer.String(tracer.AttrJurisdiction, string(j)))
	defer span.End(nil)

	res := adapter.Lookup(ctx, licenseNumber)
	if res == nil {
		res = providers.Failed(j, licenseNumber, providers.ErrorInternal, "registry returned no result")
	}
	if !res.Success {
		span.SetAttributes(tracer.String(tracer.AttrErrorCategory, string(res.Category)))
	}
	return res, nil
}

func (s *Service) recordCache(span tracer.Span, hit bool) {
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, hit))
	if s.metrics != nil {
		s.metrics.RecordSearchCache(hit)
	}
}
