// Package models holds the verification domain records: providers, their
// credentials and the append-only verification log.
package models

import (
	"time"

	"bobinator/internal/verification/registry/providers"
	id "bobinator/pkg/domain"
)

// CredentialType names the kind of credential a log entry is about.
type CredentialType string

const (
	CredentialLicense   CredentialType = "license"
	CredentialInsurance CredentialType = "insurance"
	CredentialBond      CredentialType = "bond"
)

// ParseCredentialType accepts the lower-case credential names used in URLs.
func ParseCredentialType(s string) (CredentialType, bool) {
	switch c := CredentialType(s); c {
	case CredentialLicense, CredentialInsurance, CredentialBond:
		return c, true
	}
	return "", false
}

// Result is the outcome recorded in the verification log. Licenses are
// verified or failed; insurance and bonds are valid or expired.
type Result string

const (
	ResultVerified Result = "verified"
	ResultFailed   Result = "failed"
	ResultValid    Result = "valid"
	ResultExpired  Result = "expired"
)

// Provider is a contractor whose credentials are verified.
type Provider struct {
	ID           id.ProviderID `json:"id"`
	Name         string        `json:"name"`
	BusinessName string        `json:"business_name"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	Trade        string        `json:"trade"`
	City         string        `json:"city"`
	County       string        `json:"county"`
	State        string        `json:"state"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Snapshot is the registry data last seen for a license. It is either empty
// (LastVerifiedAt nil) or a copy of one successful lookup.
type Snapshot struct {
	Class          string     `json:"license_class,omitempty"`
	Status         string     `json:"status,omitempty"`
	ExpirationDate string     `json:"expiration_date,omitempty"`
	InitialDate    string     `json:"initial_date,omitempty"`
	HolderName     string     `json:"holder_name,omitempty"`
	FirmType       string     `json:"firm_type,omitempty"`
	Specialties    string     `json:"specialties,omitempty"`
	Address        string     `json:"address,omitempty"`
	Violations     string     `json:"violations,omitempty"`
	RawSource      string     `json:"-"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// SnapshotFrom copies a successful lookup into a snapshot stamped at verifiedAt.
func SnapshotFrom(res *providers.LookupResult, verifiedAt time.Time) Snapshot {
	at := verifiedAt.UTC()
	return Snapshot{
		Class:          res.LicenseClass,
		Status:         res.Status,
		ExpirationDate: res.ExpirationDate,
		InitialDate:    res.InitialDate,
		HolderName:     res.HolderName,
		FirmType:       res.FirmType,
		Specialties:    res.Specialties,
		Address:        res.Address,
		Violations:     res.Violations,
		RawSource:      res.RawSource,
		LastVerifiedAt: &at,
	}
}

type License struct {
	ID            id.LicenseID           `json:"id"`
	ProviderID    id.ProviderID          `json:"provider_id"`
	LicenseNumber string                 `json:"license_number"`
	Jurisdiction  providers.Jurisdiction `json:"jurisdiction"`
	Snapshot      Snapshot               `json:"snapshot"`
	CreatedAt     time.Time              `json:"created_at"`
}

// InsuranceRecord is a provider's liability policy. Only Verified is written
// by verification.
type InsuranceRecord struct {
	ID             id.CredentialID `json:"id"`
	ProviderID     id.ProviderID   `json:"provider_id"`
	Carrier        string          `json:"carrier"`
	PolicyNumber   string          `json:"policy_number"`
	CoverageAmount int64           `json:"coverage_amount"`
	ExpirationDate string          `json:"expiration_date"`
	ProofUploaded  bool            `json:"proof_uploaded"`
	Verified       bool            `json:"verified"`
}

// BondRecord is a provider's surety bond. Only Verified is written by verification.
type BondRecord struct {
	ID             id.CredentialID `json:"id"`
	ProviderID     id.ProviderID   `json:"provider_id"`
	BondCompany    string          `json:"bond_company"`
	BondNumber     string          `json:"bond_number"`
	Amount         int64           `json:"amount"`
	ExpirationDate string          `json:"expiration_date"`
	ProofUploaded  bool            `json:"proof_uploaded"`
	Verified       bool            `json:"verified"`
}

// LogEntry is one append-only verification outcome.
type LogEntry struct {
	ID             id.LogEntryID  `json:"id"`
	ProviderID     id.ProviderID  `json:"provider_id"`
	CredentialType CredentialType `json:"credential_type"`
	Result         Result         `json:"result"`
	Details        string         `json:"details"`
	CheckedAt      time.Time      `json:"checked_at"`
}

// CheckResult is the outcome of one credential check.
type CheckResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// License checks.
	Lookup *providers.LookupResult `json:"lookup,omitempty"`

	// Insurance and bond checks.
	Result         Result `json:"result,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// Failure builds an unsuccessful CheckResult.
func Failure(msg string) *CheckResult {
	return &CheckResult{Success: false, Error: msg}
}

// CombinedResult groups the three checks run for one provider. A nil member
// means that check hit an unexpected fault; see the accompanying error.
type CombinedResult struct {
	ProviderID id.ProviderID `json:"provider_id"`
	License    *CheckResult  `json:"license"`
	Insurance  *CheckResult  `json:"insurance"`
	Bond       *CheckResult  `json:"bond"`
}

// AllSucceeded reports whether every check ran and succeeded.
func (c *CombinedResult) AllSucceeded() bool {
	for _, r := range []*CheckResult{c.License, c.Insurance, c.Bond} {
		if r == nil || !r.Success {
			return false
		}
	}
	return true
}
