package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
	"bobinator/pkg/testutil"
)

type txRepository interface {
	Repository
	RunInTx(ctx context.Context, fn func(tx Repository) error) error
}

// RepositorySuite exercises behaviour every Repository implementation shares.
type RepositorySuite struct {
	suite.Suite
	newStore func() txRepository
	store    txRepository
	ctx      context.Context
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *RepositorySuite) createProvider(email string, createdAt time.Time) *models.Provider {
	p := testutil.NewProviderBuilder().WithEmail(email).CreatedAt(createdAt).Build()
	s.Require().NoError(s.store.CreateProvider(s.ctx, p))
	s.Require().False(p.ID.IsNil())
	return p
}

func (s *RepositorySuite) TestProviders() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := s.createProvider("b@example.com", base.Add(time.Hour))
	first := s.createProvider("a@example.com", base)

	s.Run("get", func() {
		got, err := s.store.GetProvider(s.ctx, first.ID)
		s.Require().NoError(err)
		s.Equal("a@example.com", got.Email)
		s.Equal("K & A Roofing Inc", got.BusinessName)
	})

	s.Run("missing provider is not found", func() {
		_, err := s.store.GetProvider(s.ctx, id.NewProviderID())
		s.True(IsNotFound(err))
	})

	s.Run("list is in creation order", func() {
		all, err := s.store.ListProviders(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal(first.ID, all[0].ID)
		s.Equal(second.ID, all[1].ID)
	})

	s.Run("duplicate email conflicts", func() {
		err := s.store.CreateProvider(s.ctx, &models.Provider{Name: "Dup", Email: "a@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *RepositorySuite) TestLicenses() {
	p := s.createProvider("lic@example.com", time.Time{})
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	later := &models.License{ProviderID: p.ID, LicenseNumber: "2705014734", Jurisdiction: providers.JurisdictionVA, CreatedAt: base.Add(time.Minute)}
	earlier := &models.License{ProviderID: p.ID, LicenseNumber: "2705081693", Jurisdiction: providers.JurisdictionVA, CreatedAt: base}
	s.Require().NoError(s.store.AddLicense(s.ctx, later))
	s.Require().NoError(s.store.AddLicense(s.ctx, earlier))

	s.Run("primary is the earliest created", func() {
		l, err := s.store.PrimaryLicense(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("2705081693", l.LicenseNumber)
		s.Equal(providers.JurisdictionVA, l.Jurisdiction)
		s.Nil(l.Snapshot.LastVerifiedAt)
	})

	s.Run("duplicate number conflicts", func() {
		err := s.store.AddLicense(s.ctx, &models.License{ProviderID: p.ID, LicenseNumber: "2705081693", Jurisdiction: providers.JurisdictionVA})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("snapshot overwrite", func() {
		at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		snap := models.Snapshot{
			Class: "Class A", Status: "ACTIVE", ExpirationDate: "2027-03-31", InitialDate: "2011-03-14",
			HolderName: "K & A ROOFING INC", FirmType: "Corporation", Specialties: "ROC",
			Address: "Henrico, VA", RawSource: "<html></html>", LastVerifiedAt: &at,
		}
		s.Require().NoError(s.store.UpdateLicenseSnapshot(s.ctx, earlier.ID, snap))

		l, err := s.store.PrimaryLicense(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Require().NotNil(l.Snapshot.LastVerifiedAt)
		s.True(at.Equal(*l.Snapshot.LastVerifiedAt))
		l.Snapshot.LastVerifiedAt = nil
		snap.LastVerifiedAt = nil
		s.Equal(snap, l.Snapshot)
	})

	s.Run("provider without license", func() {
		other := s.createProvider("nolicense@example.com", time.Time{})
		_, err := s.store.PrimaryLicense(s.ctx, other.ID)
		s.True(IsNotFound(err))
	})

	s.Run("unknown license snapshot update", func() {
		err := s.store.UpdateLicenseSnapshot(s.ctx, id.NewLicenseID(), models.Snapshot{})
		s.True(IsNotFound(err))
	})
}

func (s *RepositorySuite) TestInsuranceAndBond() {
	p := s.createProvider("ins@example.com", time.Time{})

	ins := &models.InsuranceRecord{ProviderID: p.ID, Carrier: "State Farm", PolicyNumber: "INS-2026-001", CoverageAmount: 1000000, ExpirationDate: "2027-01-15", ProofUploaded: true}
	s.Require().NoError(s.store.SaveInsurance(s.ctx, ins))
	s.Require().NoError(s.store.SetInsuranceVerified(s.ctx, ins.ID, true))

	gotIns, err := s.store.GetInsurance(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("State Farm", gotIns.Carrier)
	s.Equal(int64(1000000), gotIns.CoverageAmount)
	s.True(gotIns.Verified)

	bond := &models.BondRecord{ProviderID: p.ID, BondCompany: "Travelers", BondNumber: "BND-2026-001", Amount: 50000, ExpirationDate: "2027-03-01"}
	s.Require().NoError(s.store.SaveBond(s.ctx, bond))

	s.Run("save replaces the provider's record", func() {
		replacement := &models.BondRecord{ProviderID: p.ID, BondCompany: "Travelers", BondNumber: "BND-2027-002", Amount: 75000, ExpirationDate: "2028-03-01"}
		s.Require().NoError(s.store.SaveBond(s.ctx, replacement))
		s.Equal(bond.ID, replacement.ID)

		got, err := s.store.GetBond(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("BND-2027-002", got.BondNumber)
	})

	s.Run("missing records", func() {
		other := s.createProvider("bare@example.com", time.Time{})
		_, err := s.store.GetInsurance(s.ctx, other.ID)
		s.True(IsNotFound(err))
		_, err = s.store.GetBond(s.ctx, other.ID)
		s.True(IsNotFound(err))
		s.True(IsNotFound(s.store.SetBondVerified(s.ctx, id.NewCredentialID(), true)))
	})
}

func (s *RepositorySuite) TestLogs() {
	p := s.createProvider("log@example.com", time.Time{})
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	for i, result := range []models.Result{models.ResultFailed, models.ResultVerified, models.ResultValid} {
		s.Require().NoError(s.store.AppendLog(s.ctx, &models.LogEntry{
			ProviderID:     p.ID,
			CredentialType: models.CredentialLicense,
			Result:         result,
			Details:        string(result),
			CheckedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.store.ListLogs(s.ctx, p.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(models.ResultValid, all[0].Result)
	s.Equal(models.ResultFailed, all[2].Result)

	limited, err := s.store.ListLogs(s.ctx, p.ID, 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
	s.Equal(models.ResultVerified, limited[1].Result)

	none, err := s.store.ListLogs(s.ctx, id.NewProviderID(), 10)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *RepositorySuite) TestRunInTx() {
	p := s.createProvider("tx@example.com", time.Time{})
	lic := &models.License{ProviderID: p.ID, LicenseNumber: "2705081693", Jurisdiction: providers.JurisdictionVA}
	s.Require().NoError(s.store.AddLicense(s.ctx, lic))

	s.Run("failure rolls back every write", func() {
		boom := errors.New("boom")
		at := time.Now().UTC()
		err := s.store.RunInTx(s.ctx, func(tx Repository) error {
			if err := tx.UpdateLicenseSnapshot(s.ctx, lic.ID, models.Snapshot{Status: "ACTIVE", LastVerifiedAt: &at}); err != nil {
				return err
			}
			if err := tx.AppendLog(s.ctx, &models.LogEntry{ProviderID: p.ID, CredentialType: models.CredentialLicense, Result: models.ResultVerified}); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		l, err := s.store.PrimaryLicense(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Nil(l.Snapshot.LastVerifiedAt)
		logs, err := s.store.ListLogs(s.ctx, p.ID, 0)
		s.Require().NoError(err)
		s.Empty(logs)
	})

	s.Run("success commits", func() {
		err := s.store.RunInTx(s.ctx, func(tx Repository) error {
			return tx.AppendLog(s.ctx, &models.LogEntry{ProviderID: p.ID, CredentialType: models.CredentialLicense, Result: models.ResultFailed, Details: "timeout"})
		})
		s.Require().NoError(err)

		logs, err := s.store.ListLogs(s.ctx, p.ID, 0)
		s.Require().NoError(err)
		s.Len(logs, 1)
	})
}
