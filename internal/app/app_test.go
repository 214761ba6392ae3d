package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bobinator/internal/platform/config"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/store"
)

func memoryConfig() config.Config {
	return config.Config{
		Environment: "test",
		Registry: config.RegistryConfig{
			Timeout:       time.Second,
			RatePerSecond: 100,
			RateBurst:     10,
			VABaseURL:     "http://127.0.0.1:1",
			NCBaseURL:     "http://127.0.0.1:1",
		},
		Reverify:    config.ReverifyConfig{Concurrency: 2},
		SearchCache: config.SearchCacheConfig{TTL: time.Minute},
	}
}

func TestBuild_FallsBackToMemoryBackends(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(context.Background(), memoryConfig(), logger, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.IsType(t, &store.Memory{}, a.Store)
	assert.Nil(t, a.Redis)
	assert.ElementsMatch(t,
		[]providers.Jurisdiction{providers.JurisdictionVA, providers.JurisdictionNC},
		a.Registry.Jurisdictions())
	require.NotNil(t, a.Verification)
	require.NotNil(t, a.Search)
	require.NotNil(t, a.Batch)

	report, err := a.Batch.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestBuildRegistry_NilMetrics(t *testing.T) {
	registry, err := BuildRegistry(memoryConfig().Registry, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)

	_, ok := registry.Get(providers.JurisdictionVA)
	assert.True(t, ok)
	_, ok = registry.Get(providers.JurisdictionNC)
	assert.True(t, ok)
}

func TestClose_IsIdempotent(t *testing.T) {
	a := &App{Logger: slog.Default()}
	calls := 0
	a.closers = append(a.closers, func() error { calls++; return nil })

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, calls)
}
