package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
)

const (
	uniqueViolation = "23505"

	// defaultTxTimeout bounds transactions whose context has no deadline.
	defaultTxTimeout = 5 * time.Second
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres is a Repository over database/sql with the pgx driver.
type Postgres struct {
	db  *sql.DB
	q   queryer
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db, now: func() time.Time { return time.Now().UTC() }}
}

// RunInTx runs fn inside one SQL transaction, committing only if fn succeeds.
// Calling it on a store already bound to a transaction reuses that transaction.
func (s *Postgres) RunInTx(ctx context.Context, fn func(tx Repository) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	bound := &Postgres{db: s.db, q: tx, now: s.now}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

func (s *Postgres) CreateProvider(ctx context.Context, p *models.Provider) error {
	if p.ID.IsNil() {
		p.ID = id.NewProviderID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	query := `
		INSERT INTO providers (id, name, business_name, email, phone, trade, city, county, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.q.ExecContext(ctx, query,
		p.ID.String(), p.Name, p.BusinessName, p.Email, p.Phone, p.Trade, p.City, p.County, p.State, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "provider email already registered")
		}
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

const providerColumns = `id, name, business_name, email, phone, trade, city, county, state, created_at`

func (s *Postgres) GetProvider(ctx context.Context, providerID id.ProviderID) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	p, err := scanProvider(s.q.QueryRowContext(ctx, query, providerID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errProviderNotFound
		}
		return nil, fmt.Errorf("find provider: %w", err)
	}
	return p, nil
}

func (s *Postgres) ListProviders(ctx context.Context) ([]models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY created_at, id`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return out, nil
}

func (s *Postgres) AddLicense(ctx context.Context, l *models.License) error {
	if l.ID.IsNil() {
		l.ID = id.NewLicenseID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	query := `
		INSERT INTO licenses (id, provider_id, license_number, jurisdiction, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.q.ExecContext(ctx, query, l.ID.String(), l.ProviderID.String(), l.LicenseNumber, string(l.Jurisdiction), l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "license already on file for provider")
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (s *Postgres) PrimaryLicense(ctx context.Context, providerID id.ProviderID) (*models.License, error) {
	query := `
		SELECT id, provider_id, license_number, jurisdiction,
			license_class, status, expiration_date, initial_date, holder_name, firm_type,
			specialties, address, violations, raw_source, last_verified_at, created_at
		FROM licenses
		WHERE provider_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`
	var (
		l            models.License
		licenseID    string
		ownerID      string
		jurisdiction string
		verifiedAt   sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, query, providerID.String()).Scan(
		&licenseID, &ownerID, &l.LicenseNumber, &jurisdiction,
		&l.Snapshot.Class, &l.Snapshot.Status, &l.Snapshot.ExpirationDate, &l.Snapshot.InitialDate,
		&l.Snapshot.HolderName, &l.Snapshot.FirmType, &l.Snapshot.Specialties, &l.Snapshot.Address,
		&l.Snapshot.Violations, &l.Snapshot.RawSource, &verifiedAt, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errLicenseNotFound
		}
		return nil, fmt.Errorf("find license: %w", err)
	}
	if err := l.ID.UnmarshalText([]byte(licenseID)); err != nil {
		return nil, fmt.Errorf("parse license id: %w", err)
	}
	if err := l.ProviderID.UnmarshalText([]byte(ownerID)); err != nil {
		return nil, fmt.Errorf("parse provider id: %w", err)
	}
	l.Jurisdiction = providers.Jurisdiction(jurisdiction)
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		l.Snapshot.LastVerifiedAt = &t
	}
	return &l, nil
}

// UpdateLicenseSnapshot overwrites every snapshot column in one statement.
func (s *Postgres) UpdateLicenseSnapshot(ctx context.Context, licenseID id.LicenseID, snap models.Snapshot) error {
	query := `
		UPDATE licenses SET
			license_class = $2, status = $3, expiration_date = $4, initial_date = $5,
			holder_name = $6, firm_type = $7, specialties = $8, address = $9,
			violations = $10, raw_source = $11, last_verified_at = $12
		WHERE id = $1
	`
	var verifiedAt sql.NullTime
	if snap.LastVerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *snap.LastVerifiedAt, Valid: true}
	}
	res, err := s.q.ExecContext(ctx, query,
		licenseID.String(), snap.Class, snap.Status, snap.ExpirationDate, snap.InitialDate,
		snap.HolderName, snap.FirmType, snap.Specialties, snap.Address,
		snap.Violations, snap.RawSource, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("update license snapshot: %w", err)
	}
	return requireRow(res, errLicenseNotFound)
}

func (s *Postgres) SaveInsurance(ctx context.Context, rec *models.InsuranceRecord) error {
	if uuidNil(rec.ID) {
		rec.ID = id.NewCredentialID()
	}
	query := `
		INSERT INTO insurance_records (id, provider_id, carrier, policy_number, coverage_amount, expiration_date, proof_uploaded, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id) DO UPDATE SET
			carrier = EXCLUDED.carrier,
			policy_number = EXCLUDED.policy_number,
			coverage_amount = EXCLUDED.coverage_amount,
			expiration_date = EXCLUDED.expiration_date,
			proof_uploaded = EXCLUDED.proof_uploaded,
			verified = EXCLUDED.verified
		RETURNING id
	`
	var recordID string
	err := s.q.QueryRowContext(ctx, query,
		rec.ID.String(), rec.ProviderID.String(), rec.Carrier, rec.PolicyNumber,
		rec.CoverageAmount, rec.ExpirationDate, rec.ProofUploaded, rec.Verified,
	).Scan(&recordID)
	if err != nil {
		return fmt.Errorf("save insurance: %w", err)
	}
	return rec.ID.UnmarshalText([]byte(recordID))
}

func (s *Postgres) GetInsurance(ctx context.Context, providerID id.ProviderID) (*models.InsuranceRecord, error) {
	query := `
		SELECT id, provider_id, carrier, policy_number, coverage_amount, expiration_date, proof_uploaded, verified
		FROM insurance_records
		WHERE provider_id = $1
	`
	var (
		rec      models.InsuranceRecord
		recordID string
		ownerID  string
	)
	err := s.q.QueryRowContext(ctx, query, providerID.String()).Scan(
		&recordID, &ownerID, &rec.Carrier, &rec.PolicyNumber,
		&rec.CoverageAmount, &rec.ExpirationDate, &rec.ProofUploaded, &rec.Verified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errInsuranceNotFound
		}
		return nil, fmt.Errorf("find insurance: %w", err)
	}
	if err := parseIDs(&rec.ID, &rec.ProviderID, recordID, ownerID); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Postgres) SetInsuranceVerified(ctx context.Context, recordID id.CredentialID, verified bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE insurance_records SET verified = $2 WHERE id = $1`, recordID.String(), verified)
	if err != nil {
		return fmt.Errorf("update insurance verified: %w", err)
	}
	return requireRow(res, errInsuranceNotFound)
}

func (s *Postgres) SaveBond(ctx context.Context, rec *models.BondRecord) error {
	if uuidNil(rec.ID) {
		rec.ID = id.NewCredentialID()
	}
	query := `
		INSERT INTO bond_records (id, provider_id, bond_company, bond_number, amount, expiration_date, proof_uploaded, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id) DO UPDATE SET
			bond_company = EXCLUDED.bond_company,
			bond_number = EXCLUDED.bond_number,
			amount = EXCLUDED.amount,
			expiration_date = EXCLUDED.expiration_date,
			proof_uploaded = EXCLUDED.proof_uploaded,
			verified = EXCLUDED.verified
		RETURNING id
	`
	var recordID string
	err := s.q.QueryRowContext(ctx, query,
		rec.ID.String(), rec.ProviderID.String(), rec.BondCompany, rec.BondNumber,
		rec.Amount, rec.ExpirationDate, rec.ProofUploaded, rec.Verified,
	).Scan(&recordID)
	if err != nil {
		return fmt.Errorf("save bond: %w", err)
	}
	return rec.ID.UnmarshalText([]byte(recordID))
}

func (s *Postgres) GetBond(ctx context.Context, providerID id.ProviderID) (*models.BondRecord, error) {
	query := `
		SELECT id, provider_id, bond_company, bond_number, amount, expiration_date, proof_uploaded, verified
		FROM bond_records
		WHERE provider_id = $1
	`
	var (
		rec      models.BondRecord
		recordID string
		ownerID  string
	)
	err := s.q.QueryRowContext(ctx, query, providerID.String()).Scan(
		&recordID, &ownerID, &rec.BondCompany, &rec.BondNumber,
		&rec.Amount, &rec.ExpirationDate, &rec.ProofUploaded, &rec.Verified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errBondNotFound
		}
		return nil, fmt.Errorf("find bond: %w", err)
	}
	if err := parseIDs(&rec.ID, &rec.ProviderID, recordID, ownerID); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Postgres) SetBondVerified(ctx context.Context, recordID id.CredentialID, verified bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE bond_records SET verified = $2 WHERE id = $1`, recordID.String(), verified)
	if err != nil {
		return fmt.Errorf("update bond verified: %w", err)
	}
	return requireRow(res, errBondNotFound)
}

func (s *Postgres) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	if entry.ID == (id.LogEntryID{}) {
		entry.ID = id.NewLogEntryID()
	}
	if entry.CheckedAt.IsZero() {
		entry.CheckedAt = s.now()
	}
	query := `
		INSERT INTO verification_log (id, provider_id, credential_type, result, details, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.q.ExecContext(ctx, query,
		entry.ID.String(), entry.ProviderID.String(), string(entry.CredentialType), string(entry.Result), entry.Details, entry.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("append verification log: %w", err)
	}
	return nil
}

func (s *Postgres) ListLogs(ctx context.Context, providerID id.ProviderID, limit int) ([]models.LogEntry, error) {
	query := `
		SELECT id, provider_id, credential_type, result, details, checked_at
		FROM verification_log
		WHERE provider_id = $1
		ORDER BY checked_at DESC, id
	`
	args := []any{providerID.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verification log: %w", err)
	}
	defer rows.Close()

	out := []models.LogEntry{}
	for rows.Next() {
		var (
			e              models.LogEntry
			entryID        string
			ownerID        string
			credentialType string
			result         string
		)
		if err := rows.Scan(&entryID, &ownerID, &credentialType, &result, &e.Details, &e.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan verification log: %w", err)
		}
		if err := e.ID.UnmarshalText([]byte(entryID)); err != nil {
			return nil, fmt.Errorf("parse log id: %w", err)
		}
		if err := e.ProviderID.UnmarshalText([]byte(ownerID)); err != nil {
			return nil, fmt.Errorf("parse provider id: %w", err)
		}
		e.CredentialType = models.CredentialType(credentialType)
		e.Result = models.Result(result)
		e.CheckedAt = e.CheckedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification log: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	var (
		p          models.Provider
		providerID string
	)
	if err := row.Scan(&providerID, &p.Name, &p.BusinessName, &p.Email, &p.Phone,
		&p.Trade, &p.City, &p.County, &p.State, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := p.ID.UnmarshalText([]byte(providerID)); err != nil {
		return nil, fmt.Errorf("parse provider id: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func parseIDs(recordID *id.CredentialID, ownerID *id.ProviderID, rawRecord, rawOwner string) error {
	if err := recordID.UnmarshalText([]byte(rawRecord)); err != nil {
		return fmt.Errorf("parse record id: %w", err)
	}
	if err := ownerID.UnmarshalText([]byte(rawOwner)); err != nil {
		return fmt.Errorf("parse provider id: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
