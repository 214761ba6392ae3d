// Package store persists providers, their credentials and the verification
// log. Memory backs development and tests; Postgres backs production.
package store

import (
	"context"

	"bobinator/internal/verification/models"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
)

// Repository is the set of reads and writes verification needs. Missing rows
// are reported as domain errors with CodeNotFound; uniqueness violations as
// CodeConflict.
type Repository interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, providerID id.ProviderID) (*models.Provider, error)
	// ListProviders returns every provider in creation order.
	ListProviders(ctx context.Context) ([]models.Provider, error)

	AddLicense(ctx context.Context, l *models.License) error
	// PrimaryLicense returns the provider's earliest-created license.
	PrimaryLicense(ctx context.Context, providerID id.ProviderID) (*models.License, error)
	UpdateLicenseSnapshot(ctx context.Context, licenseID id.LicenseID, snap models.Snapshot) error

	SaveInsurance(ctx context.Context, rec *models.InsuranceRecord) error
	GetInsurance(ctx context.Context, providerID id.ProviderID) (*models.InsuranceRecord, error)
	SetInsuranceVerified(ctx context.Context, recordID id.CredentialID, verified bool) error

	SaveBond(ctx context.Context, rec *models.BondRecord) error
	GetBond(ctx context.Context, providerID id.ProviderID) (*models.BondRecord, error)
	SetBondVerified(ctx context.Context, recordID id.CredentialID, verified bool) error

	AppendLog(ctx context.Context, entry *models.LogEntry) error
	// ListLogs returns up to limit entries for a provider, newest first. limit <= 0 means all.
	ListLogs(ctx context.Context, providerID id.ProviderID, limit int) ([]models.LogEntry, error)
}

var (
	errProviderNotFound  = dErrors.New(dErrors.CodeNotFound, "provider not found")
	errLicenseNotFound   = dErrors.New(dErrors.CodeNotFound, "license not found")
	errInsuranceNotFound = dErrors.New(dErrors.CodeNotFound, "insurance record not found")
	errBondNotFound      = dErrors.New(dErrors.CodeNotFound, "bond record not found")
)

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeNotFound)
}
