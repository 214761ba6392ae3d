package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bobinator/internal/verification/models"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
)

// Memory is an in-process Repository. A transaction works on a copy of the
// data and replaces the live data only when it succeeds, so readers see either
// none or all of its writes.
type Memory struct {
	mu   sync.RWMutex
	data memoryData
	now  func() time.Time
}

type memoryData struct {
	providers     map[id.ProviderID]models.Provider
	providerOrder []id.ProviderID
	licenses      []models.License
	insurance     map[id.ProviderID]models.InsuranceRecord
	bonds         map[id.ProviderID]models.BondRecord
	logs          []models.LogEntry
}

type MemoryOption func(*Memory)

// WithMemoryClock sets the clock used to stamp CreatedAt on new rows.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		data: memoryData{
			providers: make(map[id.ProviderID]models.Provider),
			insurance: make(map[id.ProviderID]models.InsuranceRecord),
			bonds:     make(map[id.ProviderID]models.BondRecord),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunInTx runs fn against a private copy of the data while holding the write
// lock, and publishes the copy only if fn returns nil. fn must use tx, not m.
func (m *Memory) RunInTx(ctx context.Context, fn func(tx Repository) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.data.clone()
	if err := fn(memoryTx{d: &working, now: m.now}); err != nil {
		return err
	}
	m.data = working
	return nil
}

func (d memoryData) clone() memoryData {
	out := memoryData{
		providers:     make(map[id.ProviderID]models.Provider, len(d.providers)),
		providerOrder: append([]id.ProviderID(nil), d.providerOrder...),
		licenses:      append([]models.License(nil), d.licenses...),
		insurance:     make(map[id.ProviderID]models.InsuranceRecord, len(d.insurance)),
		bonds:         make(map[id.ProviderID]models.BondRecord, len(d.bonds)),
		logs:          append([]models.LogEntry(nil), d.logs...),
	}
	for k, v := range d.providers {
		out.providers[k] = v
	}
	for k, v := range d.insurance {
		out.insurance[k] = v
	}
	for k, v := range d.bonds {
		out.bonds[k] = v
	}
	return out
}

// view exposes the live data. Callers hold mu.
func (m *Memory) view() memoryTx { return memoryTx{d: &m.data, now: m.now} }

func (m *Memory) CreateProvider(ctx context.Context, p *models.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateProvider(ctx, p)
}

func (m *Memory) GetProvider(ctx context.Context, providerID id.ProviderID) (*models.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetProvider(ctx, providerID)
}

func (m *Memory) ListProviders(ctx context.Context) ([]models.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListProviders(ctx)
}

func (m *Memory) AddLicense(ctx context.Context, l *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AddLicense(ctx, l)
}

func (m *Memory) PrimaryLicense(ctx context.Context, providerID id.ProviderID) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().PrimaryLicense(ctx, providerID)
}

func (m *Memory) UpdateLicenseSnapshot(ctx context.Context, licenseID id.LicenseID, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateLicenseSnapshot(ctx, licenseID, snap)
}

func (m *Memory) SaveInsurance(ctx context.Context, rec *models.InsuranceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveInsurance(ctx, rec)
}

func (m *Memory) GetInsurance(ctx context.Context, providerID id.ProviderID) (*models.InsuranceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetInsurance(ctx, providerID)
}

func (m *Memory) SetInsuranceVerified(ctx context.Context, recordID id.CredentialID, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SetInsuranceVerified(ctx, recordID, verified)
}

func (m *Memory) SaveBond(ctx context.Context, rec *models.BondRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveBond(ctx, rec)
}

func (m *Memory) GetBond(ctx context.Context, providerID id.ProviderID) (*models.BondRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetBond(ctx, providerID)
}

func (m *Memory) SetBondVerified(ctx context.Context, recordID id.CredentialID, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SetBondVerified(ctx, recordID, verified)
}

func (m *Memory) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AppendLog(ctx, entry)
}

func (m *Memory) ListLogs(ctx context.Context, providerID id.ProviderID, limit int) ([]models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListLogs(ctx, providerID, limit)
}

// memoryTx operates on memoryData without locking. The caller holds Memory.mu.
type memoryTx struct {
	d   *memoryData
	now func() time.Time
}

var _ Repository = memoryTx{}

func (t memoryTx) CreateProvider(_ context.Context, p *models.Provider) error {
	if p.ID.IsNil() {
		p.ID = id.NewProviderID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now()
	}
	if _, exists := t.d.providers[p.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "provider already exists")
	}
	for _, existing := range t.d.providers {
		if p.Email != "" && existing.Email == p.Email {
			return dErrors.New(dErrors.CodeConflict, "provider email already registered")
		}
	}
	t.d.providers[p.ID] = *p
	t.d.providerOrder = append(t.d.providerOrder, p.ID)
	return nil
}

func (t memoryTx) GetProvider(_ context.Context, providerID id.ProviderID) (*models.Provider, error) {
	p, ok := t.d.providers[providerID]
	if !ok {
		return nil, errProviderNotFound
	}
	return &p, nil
}

func (t memoryTx) ListProviders(_ context.Context) ([]models.Provider, error) {
	out := make([]models.Provider, 0, len(t.d.providerOrder))
	for _, pid := range t.d.providerOrder {
		out = append(out, t.d.providers[pid])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t memoryTx) AddLicense(_ context.Context, l *models.License) error {
	if _, ok := t.d.providers[l.ProviderID]; !ok {
		return errProviderNotFound
	}
	for _, existing := range t.d.licenses {
		if existing.ProviderID == l.ProviderID && existing.LicenseNumber == l.LicenseNumber {
			return dErrors.New(dErrors.CodeConflict, "license already on file for provider")
		}
	}
	if l.ID.IsNil() {
		l.ID = id.NewLicenseID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now()
	}
	t.d.licenses = append(t.d.licenses, *l)
	return nil
}

func (t memoryTx) PrimaryLicense(_ context.Context, providerID id.ProviderID) (*models.License, error) {
	var primary *models.License
	for i := range t.d.licenses {
		l := t.d.licenses[i]
		if l.ProviderID != providerID {
			continue
		}
		if primary == nil || l.CreatedAt.Before(primary.CreatedAt) {
			primary = &l
		}
	}
	if primary == nil {
		return nil, errLicenseNotFound
	}
	return primary, nil
}

func (t memoryTx) UpdateLicenseSnapshot(_ context.Context, licenseID id.LicenseID, snap models.Snapshot) error {
	for i := range t.d.licenses {
		if t.d.licenses[i].ID == licenseID {
			t.d.licenses[i].Snapshot = snap
			return nil
		}
	}
	return errLicenseNotFound
}

func (t memoryTx) SaveInsurance(_ context.Context, rec *models.InsuranceRecord) error {
	if _, ok := t.d.providers[rec.ProviderID]; !ok {
		return errProviderNotFound
	}
	if existing, ok := t.d.insurance[rec.ProviderID]; ok {
		rec.ID = existing.ID
	} else if uuidNil(rec.ID) {
		rec.ID = id.NewCredentialID()
	}
	t.d.insurance[rec.ProviderID] = *rec
	return nil
}

func (t memoryTx) GetInsurance(_ context.Context, providerID id.ProviderID) (*models.InsuranceRecord, error) {
	rec, ok := t.d.insurance[providerID]
	if !ok {
		return nil, errInsuranceNotFound
	}
	return &rec, nil
}

func (t memoryTx) SetInsuranceVerified(_ context.Context, recordID id.CredentialID, verified bool) error {
	for pid, rec := range t.d.insurance {
		if rec.ID == recordID {
			rec.Verified = verified
			t.d.insurance[pid] = rec
			return nil
		}
	}
	return errInsuranceNotFound
}

func (t memoryTx) SaveBond(_ context.Context, rec *models.BondRecord) error {
	if _, ok := t.d.providers[rec.ProviderID]; !ok {
		return errProviderNotFound
	}
	if existing, ok := t.d.bonds[rec.ProviderID]; ok {
		rec.ID = existing.ID
	} else if uuidNil(rec.ID) {
		rec.ID = id.NewCredentialID()
	}
	t.d.bonds[rec.ProviderID] = *rec
	return nil
}

func (t memoryTx) GetBond(_ context.Context, providerID id.ProviderID) (*models.BondRecord, error) {
	rec, ok := t.d.bonds[providerID]
	if !ok {
		return nil, errBondNotFound
	}
	return &rec, nil
}

func (t memoryTx) SetBondVerified(_ context.Context, recordID id.CredentialID, verified bool) error {
	for pid, rec := range t.d.bonds {
		if rec.ID == recordID {
			rec.Verified = verified
			t.d.bonds[pid] = rec
			return nil
		}
	}
	return errBondNotFound
}

func (t memoryTx) AppendLog(_ context.Context, entry *models.LogEntry) error {
	if _, ok := t.d.providers[entry.ProviderID]; !ok {
		return errProviderNotFound
	}
	if entry.ID == (id.LogEntryID{}) {
		entry.ID = id.NewLogEntryID()
	}
	if entry.CheckedAt.IsZero() {
		entry.CheckedAt = t.now()
	}
	t.d.logs = append(t.d.logs, *entry)
	return nil
}

func (t memoryTx) ListLogs(_ context.Context, providerID id.ProviderID, limit int) ([]models.LogEntry, error) {
	out := []models.LogEntry{}
	for i := len(t.d.logs) - 1; i >= 0; i-- {
		if t.d.logs[i].ProviderID != providerID {
			continue
		}
		out = append(out, t.d.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	return out, nil
}

func uuidNil(c id.CredentialID) bool {
	return c == id.CredentialID{}
}
