package testutil

import (
	"time"

	"github.com/google/uuid"

	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	id "bobinator/pkg/domain"
)

// TestIDs are fixed ids for tests that need deterministic output.
var TestIDs = struct {
	ProviderID1 id.ProviderID
	ProviderID2 id.ProviderID
}{
	ProviderID1: id.ProviderID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	ProviderID2: id.ProviderID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// ProviderBuilder builds test providers. The ID is left unset so stores assign one.
type ProviderBuilder struct {
	provider models.Provider
}

func NewProviderBuilder() *ProviderBuilder {
	return &ProviderBuilder{
		provider: models.Provider{
			Name:         "John Smith",
			BusinessName: "K & A Roofing Inc",
			Email:        "john@karoofing.com",
			Phone:        "804-555-0101",
			Trade:        "roofer",
			City:         "Richmond",
			County:       "Henrico",
			State:        "VA",
		},
	}
}

func (b *ProviderBuilder) WithID(providerID id.ProviderID) *ProviderBuilder {
	b.provider.ID = providerID
	return b
}

func (b *ProviderBuilder) WithName(name, business string) *ProviderBuilder {
	b.provider.Name = name
	b.provider.BusinessName = business
	return b
}

func (b *ProviderBuilder) WithEmail(email string) *ProviderBuilder {
	b.provider.Email = email
	return b
}

func (b *ProviderBuilder) CreatedAt(t time.Time) *ProviderBuilder {
	b.provider.CreatedAt = t
	return b
}

// Build returns a fresh copy so one builder can seed several providers.
func (b *ProviderBuilder) Build() *models.Provider {
	p := b.provider
	return &p
}

// License returns a license for providerID with an empty snapshot.
func License(providerID id.ProviderID, number string, j providers.Jurisdiction) *models.License {
	return &models.License{
		ProviderID:    providerID,
		LicenseNumber: number,
		Jurisdiction:  j,
	}
}

// Insurance returns an unverified policy expiring on expiration (YYYY-MM-DD).
func Insurance(providerID id.ProviderID, expiration string) *models.InsuranceRecord {
	return &models.InsuranceRecord{
		ProviderID:     providerID,
		Carrier:        "State Farm",
		PolicyNumber:   "INS-TEST-001",
		CoverageAmount: 1000000,
		ExpirationDate: expiration,
	}
}

// Bond returns an unverified surety bond expiring on expiration (YYYY-MM-DD).
func Bond(providerID id.ProviderID, expiration string) *models.BondRecord {
	return &models.BondRecord{
		ProviderID:     providerID,
		BondCompany:    "Travelers",
		BondNumber:     "BND-TEST-001",
		Amount:         50000,
		ExpirationDate: expiration,
	}
}
