// Package seeder loads the demo contractors used for local runs and smoke tests.
package seeder

import (
	"context"
	"fmt"
	"log/slog"

	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/store"
	dErrors "bobinator/pkg/domain-errors"
)

// Store is the transactional slice of the repository the seeder writes through.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx store.Repository) error) error
}

// Contractor is one demo provider with its optional credentials.
type Contractor struct {
	Provider      models.Provider
	LicenseNumber string
	Insurance     *models.InsuranceRecord
	Bond          *models.BondRecord
}

// Result counts what SeedAll wrote.
type Result struct {
	Created int
	Skipped int
}

type Seeder struct {
	store  Store
	logger *slog.Logger
}

func New(st Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: st, logger: logger}
}

// SeedAll writes the default demo contractors.
func (s *Seeder) SeedAll(ctx context.Context) (Result, error) {
	return s.Seed(ctx, DemoContractors())
}

// Seed creates each contractor with its license, insurance and bond in one
// transaction. Contractors whose email is already registered are skipped.
func (s *Seeder) Seed(ctx context.Context, contractors []Contractor) (Result, error) {
	var res Result
	for _, c := range contractors {
		p := c.Provider
		err := s.store.RunInTx(ctx, func(tx store.Repository) error {
			return seedOne(ctx, tx, &p, c)
		})
		switch {
		case err == nil:
			res.Created++
			s.logger.InfoContext(ctx, "seeded_provider",
				"provider_id", p.ID.String(),
				"business_name", p.BusinessName,
			)
		case dErrors.HasCode(err, dErrors.CodeConflict):
			res.Skipped++
			s.logger.InfoContext(ctx, "seed_provider_exists", "email", c.Provider.Email)
		default:
			return res, fmt.Errorf("seed %s: %w", c.Provider.Email, err)
		}
	}
	s.logger.InfoContext(ctx, "demo data seeded", "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

func seedOne(ctx context.Context, tx store.Repository, p *models.Provider, c Contractor) error {
	if err := tx.CreateProvider(ctx, p); err != nil {
		return err
	}

	if c.LicenseNumber != "" {
		if err := tx.AddLicense(ctx, &models.License{
			ProviderID:    p.ID,
			LicenseNumber: c.LicenseNumber,
			Jurisdiction:  providers.JurisdictionVA,
		}); err != nil {
			return err
		}
	}
	if c.Insurance != nil {
		ins := *c.Insurance
		ins.ProviderID = p.ID
		if err := tx.SaveInsurance(ctx, &ins); err != nil {
			return err
		}
	}
	if c.Bond != nil {
		bond := *c.Bond
		bond.ProviderID = p.ID
		if err := tx.SaveBond(ctx, &bond); err != nil {
			return err
		}
	}
	return nil
}

// DemoContractors returns Virginia roofers and painters. The licensed ones
// carry real DPOR license numbers; two have no license on file.
func DemoContractors() []Contractor {
	demo := []struct {
		name, business, email, phone, trade, city, county, license string
	}{
		{"John Smith", "K & A Roofing Inc", "john@karoofing.com", "804-555-0101", "roofer", "Richmond", "Henrico", "2705081693"},
		{"Mike Johnson", "Colbert Roofing Corp", "mike@colbertroofing.com", "703-555-0102", "roofer", "Newport News", "Newport News", "2701013163"},
		{"Sarah Davis", "McNabb Roofing Co", "sarah@mcnabbroofing.com", "703-555-0103", "roofer", "Haymarket", "Prince William", "2705014734"},
		{"Bob Painter", "Bob's Quality Painting LLC", "bob@bobpainting.com", "804-555-0201", "painter", "Richmond", "Richmond", "2705999999"},
		{"Alice Roofer", "Top Notch Roofing", "alice@topnotch.com", "757-555-0301", "roofer", "Virginia Beach", "Virginia Beach", ""},
		{"Carlos Martinez", "Martinez Painting Services", "carlos@martinezpaint.com", "571-555-0401", "painter", "Fairfax", "Fairfax", ""},
	}

	out := make([]Contractor, 0, len(demo))
	for _, d := range demo {
		out = append(out, Contractor{
			Provider: models.Provider{
				Name:         d.name,
				BusinessName: d.business,
				Email:        d.email,
				Phone:        d.phone,
				Trade:        d.trade,
				City:         d.city,
				County:       d.county,
				State:        "VA",
			},
			LicenseNumber: d.license,
		})
	}

	out[0].Insurance = &models.InsuranceRecord{
		Carrier:        "State Farm",
		PolicyNumber:   "INS-2026-001",
		CoverageAmount: 1000000,
		ExpirationDate: "2027-01-15",
		ProofUploaded:  true,
		Verified:       true,
	}
	out[0].Bond = &models.BondRecord{
		BondCompany:    "Travelers",
		BondNumber:     "BND-2026-001",
		Amount:         50000,
		ExpirationDate: "2027-03-01",
	}
	return out
}
