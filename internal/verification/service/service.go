// Package service runs credential checks for providers and records every
// outcome in the verification log.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bobinator/internal/verification/events"
	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/store"
	"bobinator/internal/verification/tracer"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
	platformsync "bobinator/pkg/platform/sync"
)

const (
	msgNoLicense             = "No license on file"
	msgNoInsurance           = "No insurance on file"
	msgNoBond                = "No bond on file"
	msgUnsupportedRegistry   = "unsupported jurisdiction"
	msgRegistryReturnedEmpty = "registry returned no result"

	dateLayout = "2006-01-02"
)

// Store is the repository plus a transaction boundary. Writes made inside
// RunInTx either all land or none do.
type Store interface {
	store.Repository
	RunInTx(ctx context.Context, fn func(tx store.Repository) error) error
}

// Service verifies provider credentials. Registry lookups happen outside any
// transaction; the snapshot update and log append for one check commit
// together under a per-provider lock.
type Service struct {
	store     Store
	registry  *providers.Registry
	publisher events.Publisher
	locks     *platformsync.ShardedMutex
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	now       func() time.Time
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

// WithPublisher sets where committed log entries are announced.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the clock used for CheckedAt and expiry comparisons.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New panics on a nil store or registry; both are wired once at startup.
func New(st Store, registry *providers.Registry, opts ...Option) *Service {
	if st == nil {
		panic("service.New: store is required")
	}
	if registry == nil {
		panic("service.New: registry is required")
	}
	s := &Service{
		store:     st,
		registry:  registry,
		publisher: events.NoopPublisher{},
		locks:     platformsync.NewShardedMutex(),
		logger:    slog.Default(),
		tracer:    tracer.NewNoop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyProvider runs the license, insurance and bond checks concurrently.
// One failing check never cancels the others: every result that completed is
// returned alongside the joined errors of the ones that did not.
func (s *Service) VerifyProvider(ctx context.Context, providerID id.ProviderID) (*models.CombinedResult, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyProvider,
		tracer.String(tracer.AttrProviderID, providerID.String()),
	)
	if err := s.requireProvider(ctx, providerID); err != nil {
		span.End(err)
		return nil, err
	}

	// Each goroutine owns its own fields.
	var (
		license, insurance, bond          *models.CheckResult
		licenseErr, insuranceErr, bondErr error
		g                                 errgroup.Group
	)
	g.Go(func() error {
		license, licenseErr = s.observe(ctx, models.CredentialLicense, providerID, s.verifyLicense)
		return nil
	})
	g.Go(func() error {
		insurance, insuranceErr = s.observe(ctx, models.CredentialInsurance, providerID, s.checkInsurance)
		return nil
	})
	g.Go(func() error {
		bond, bondErr = s.observe(ctx, models.CredentialBond, providerID, s.checkBond)
		return nil
	})
	_ = g.Wait()

	combined := &models.CombinedResult{
		ProviderID: providerID,
		License:    license,
		Insurance:  insurance,
		Bond:       bond,
	}
	err := errors.Join(licenseErr, insuranceErr, bondErr)
	span.SetAttributes(tracer.Bool(tracer.AttrResult, combined.AllSucceeded()))
	span.End(err)
	return combined, err
}

// VerifyLicense looks up the provider's primary license in its registry and
// records the outcome. A failed lookup is a result, not an error.
func (s *Service) VerifyLicense(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error) {
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.observe(ctx, models.CredentialLicense, providerID, s.verifyLicense)
}

// CheckInsurance compares the stored policy's expiration date with today.
func (s *Service) CheckInsurance(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error) {
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.observe(ctx, models.CredentialInsurance, providerID, s.checkInsurance)
}

// CheckBond compares the stored bond's expiration date with today.
func (s *Service) CheckBond(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error) {
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.observe(ctx, models.CredentialBond, providerID, s.checkBond)
}

// History returns the provider's log entries, newest first.
func (s *Service) History(ctx context.Context, providerID id.ProviderID, limit int) ([]models.LogEntry, error) {
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListLogs(ctx, providerID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification log")
	}
	return entries, nil
}

type checkFunc func(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error)

func (s *Service) observe(ctx context.Context, kind models.CredentialType, providerID id.ProviderID, check checkFunc) (*models.CheckResult, error) {
	ctx, span := s.tracer.Start(ctx, spanFor(kind),
		tracer.String(tracer.AttrProviderID, providerID.String()),
		tracer.String(tracer.AttrCredentialType, string(kind)),
	)
	start := time.Now()
	res, err := runCheck(ctx, kind, providerID, check)
	label := resultLabel(res, err)

	if s.metrics != nil {
		s.metrics.RecordCheck(string(kind), label, time.Since(start).Seconds())
	}
	span.SetAttributes(tracer.String(tracer.AttrResult, label))
	span.End(err)

	if err != nil {
		s.logger.ErrorContext(ctx, "credential_check_failed",
			"provider_id", providerID.String(),
			"credential_type", kind,
			"error", err,
		)
		return nil, err
	}
	s.logger.InfoContext(ctx, "credential_checked",
		"provider_id", providerID.String(),
		"credential_type", kind,
		"result", label,
	)
	return res, nil
}

// runCheck turns a panic inside a check, typically from a registry adapter,
// into an internal error so sibling checks and batch runs carry on.
func runCheck(ctx context.Context, kind models.CredentialType, providerID id.ProviderID, check checkFunc) (res *models.CheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = dErrors.New(dErrors.CodeInternal, fmt.Sprintf("%s check panicked: %v", kind, r))
		}
	}()
	return check(ctx, providerID)
}

func (s *Service) verifyLicense(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error) {
	lic, err := s.store.PrimaryLicense(ctx, providerID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Failure(msgNoLicense), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load license")
	}

	lookup := s.lookup(ctx, lic)
	checkedAt := s.now()

	entry := models.LogEntry{
		ID:             id.NewLogEntryID(),
		ProviderID:     providerID,
		CredentialType: models.CredentialLicense,
		Result:         models.ResultFailed,
		Details:        lookup.Error,
		CheckedAt:      checkedAt,
	}
	if lookup.Success {
		entry.Result = models.ResultVerified
		entry.Details = lookup.Status
	}

	err = s.commit(ctx, providerID, &entry, func(tx store.Repository) error {
		if !lookup.Success {
			return nil
		}
		// An overlapping check may have committed a later snapshot while this
		// lookup was in flight. Keep it; this check still gets its log entry.
		current, err := tx.PrimaryLicense(ctx, providerID)
		if err != nil {
			return err
		}
		if last := current.Snapshot.LastVerifiedAt; current.ID == lic.ID && last != nil && last.After(checkedAt) {
			s.logger.InfoContext(ctx, "license_snapshot_superseded",
				"provider_id", providerID.String(),
				"license_number", lic.LicenseNumber,
			)
			return nil
		}
		return tx.UpdateLicenseSnapshot(ctx, lic.ID, models.SnapshotFrom(lookup, checkedAt))
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record license verification")
	}

	return &models.CheckResult{
		Success: lookup.Success,
		Error:   lookup.Error,
		Lookup:  lookup,
	}, nil
}

// lookup never fails: a missing adapter or a nil result becomes an
// unsuccessful LookupResult so it still reaches the log.
func (s *Service) lookup(ctx context.Context, lic *models.License) *providers.LookupResult {
	adapter, ok := s.registry.Get(lic.Jurisdiction)
	if !ok {
		return providers.Failed(lic.Jurisdiction, lic.LicenseNumber, providers.ErrorInternal, msgUnsupportedRegistry)
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanRegistryLookup,
		tracer.String(tracer.AttrJurisdiction, lic.Jurisdiction.String()),
	)
	res := adapter.Lookup(ctx, lic.LicenseNumber)
	if res == nil {
		res = providers.Failed(lic.Jurisdiction, lic.LicenseNumber, providers.ErrorInternal, msgRegistryReturnedEmpty)
	}
	if !res.Success {
		span.SetAttributes(tracer.String(tracer.AttrErrorCategory, string(res.Category)))
	}
	span.End(nil)
	return res
}

func (s *Service) checkInsurance(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error) {
	rec, err := s.store.GetInsurance(ctx, providerID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Failure(msgNoInsurance), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load insurance")
	}
	return s.checkExpiry(ctx, providerID, models.CredentialInsurance, rec.ExpirationDate,
		func(tx store.Repository, verified bool) error {
			return tx.SetInsuranceVerified(ctx, rec.ID, verified)
		})
}

func (s *Service) checkBond(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error) {
	rec, err := s.store.GetBond(ctx, providerID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Failure(msgNoBond), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load bond")
	}
	return s.checkExpiry(ctx, providerID, models.CredentialBond, rec.ExpirationDate,
		func(tx store.Repository, verified bool) error {
			return tx.SetBondVerified(ctx, rec.ID, verified)
		})
}

func (s *Service) checkExpiry(
	ctx context.Context,
	providerID id.ProviderID,
	kind models.CredentialType,
	expiration string,
	setVerified func(tx store.Repository, verified bool) error,
) (*models.CheckResult, error) {
	now := s.now()
	result := ExpiryResult(expiration, now)

	entry := models.LogEntry{
		ID:             id.NewLogEntryID(),
		ProviderID:     providerID,
		CredentialType: kind,
		Result:         result,
		Details:        "Expires: " + expiration,
		CheckedAt:      now,
	}
	err := s.commit(ctx, providerID, &entry, func(tx store.Repository) error {
		return setVerified(tx, result == models.ResultValid)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record "+string(kind)+" check")
	}

	return &models.CheckResult{
		Success:        true,
		Result:         result,
		ExpirationDate: expiration,
	}, nil
}

// ExpiryResult reports expired when expiration is a date strictly before
// today in UTC. An empty expiration never expires.
func ExpiryResult(expiration string, now time.Time) models.Result {
	today := now.UTC().Format(dateLayout)
	if expiration != "" && expiration < today {
		return models.ResultExpired
	}
	return models.ResultValid
}

// commit applies fn and appends entry in one transaction while holding the
// provider's lock, then publishes the entry once it is durable.
func (s *Service) commit(ctx context.Context, providerID id.ProviderID, entry *models.LogEntry, fn func(tx store.Repository) error) error {
	err := s.locks.WithLock(providerID.String(), func() error {
		return s.store.RunInTx(ctx, func(tx store.Repository) error {
			if err := fn(tx); err != nil {
				return err
			}
			return tx.AppendLog(ctx, entry)
		})
	})
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, *entry); err != nil {
		if s.metrics != nil {
			s.metrics.RecordEventDropped()
		}
		s.logger.WarnContext(ctx, "verification_event_dropped",
			"provider_id", providerID.String(),
			"log_entry_id", entry.ID.String(),
			"error", err,
		)
	}
	return nil
}

func (s *Service) requireProvider(ctx context.Context, providerID id.ProviderID) error {
	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		if store.IsNotFound(err) {
			return dErrors.New(dErrors.CodeNotFound, "provider not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load provider")
	}
	return nil
}

func spanFor(kind models.CredentialType) string {
	switch kind {
	case models.CredentialInsurance:
		return tracer.SpanCheckInsurance
	case models.CredentialBond:
		return tracer.SpanCheckBond
	default:
		return tracer.SpanVerifyLicense
	}
}

// resultLabel names an outcome for metrics and spans.
func resultLabel(res *models.CheckResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Result != "":
		return string(res.Result)
	case res.Lookup != nil && res.Lookup.Success:
		return string(models.ResultVerified)
	case res.Lookup != nil:
		return string(models.ResultFailed)
	default:
		return "missing"
	}
}
