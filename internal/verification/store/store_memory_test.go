package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	dErrors "bobinator/pkg/domain-errors"
	"bobinator/pkg/testutil"
)

func TestMemoryRepository(t *testing.T) {
	suite.Run(t, &RepositorySuite{newStore: func() txRepository { return NewMemory() }})
}

func TestMemory_RunInTxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemory().RunInTx(ctx, func(Repository) error {
		called = true
		return nil
	})

	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestMemory_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := &models.Provider{Name: "Concurrent", Email: "c@example.com"}
	require.NoError(t, m.CreateProvider(ctx, p))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RunInTx(ctx, func(tx Repository) error {
				return tx.AppendLog(ctx, &models.LogEntry{ProviderID: p.ID, CredentialType: models.CredentialBond, Result: models.ResultValid})
			})
		}()
	}
	wg.Wait()

	logs, err := m.ListLogs(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 50)
}

type txView struct {
	snapshotSet bool
	logs        int
}

func TestMemory_TxWritesBecomeVisibleTogether(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := &models.Provider{Name: "Atomic", Email: "atomic@example.com"}
	require.NoError(t, m.CreateProvider(ctx, p))
	lic := &models.License{ProviderID: p.ID, LicenseNumber: "2705000001", Jurisdiction: providers.JurisdictionVA}
	require.NoError(t, m.AddLicense(ctx, lic))

	seen := make(chan txView, 1)
	err := m.RunInTx(ctx, func(tx Repository) error {
		now := time.Now().UTC()
		if err := tx.UpdateLicenseSnapshot(ctx, lic.ID, models.Snapshot{Status: providers.StatusActive, LastVerifiedAt: &now}); err != nil {
			return err
		}

		started := make(chan struct{})
		go func() {
			close(started)
			got, _ := m.PrimaryLicense(ctx, p.ID)
			logs, _ := m.ListLogs(ctx, p.ID, 0)
			seen <- txView{snapshotSet: got != nil && got.Snapshot.LastVerifiedAt != nil, logs: len(logs)}
		}()
		<-started
		time.Sleep(20 * time.Millisecond)

		return tx.AppendLog(ctx, &models.LogEntry{ProviderID: p.ID, CredentialType: models.CredentialLicense, Result: models.ResultVerified})
	})
	require.NoError(t, err)

	select {
	case v := <-seen:
		assert.True(t, v.snapshotSet)
		assert.Equal(t, 1, v.logs)
	case <-time.After(time.Second):
		t.Fatal("reader never returned")
	}
}

func TestMemory_RollbackKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created := make(chan error, 1)
	err := m.RunInTx(ctx, func(tx Repository) error {
		require.NoError(t, tx.CreateProvider(ctx, &models.Provider{Name: "Rolled Back", Email: "rb@example.com"}))
		go func() {
			created <- m.CreateProvider(ctx, &models.Provider{Name: "Outside", Email: "outside@example.com"})
		}()
		time.Sleep(20 * time.Millisecond)
		return errors.New("abort")
	})
	require.Error(t, err)
	require.NoError(t, <-created)

	list, err := m.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "outside@example.com", list[0].Email)
}

func TestMemory_ConcurrentDuplicateEmail(t *testing.T) {
	m := NewMemory()

	res := testutil.RunConcurrentCtx(context.Background(), 20, func(ctx context.Context, idx int) error {
		return m.RunInTx(ctx, func(tx Repository) error {
			return tx.CreateProvider(ctx, &models.Provider{Name: "Same Email", Email: "dup@example.com"})
		})
	})

	assert.Equal(t, int32(1), res.Successes)
	assert.Equal(t, int32(19), res.Conflicts)
	assert.Equal(t, int32(20), res.Total())

	list, err := m.ListProviders(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
