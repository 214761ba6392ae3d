//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bobinator/internal/verification/registry/providers"
	"bobinator/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.Flush(ctx))

	c := NewRedis(rc.Client, time.Minute)
	key := Key(providers.JurisdictionNC, "Triangle Builders", 20)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	hits := []providers.SearchHit{{LicenseNumber: "83060", Name: "TRIANGLE BUILDERS INC", LicenseType: "Corporation", Board: "NCLBGC"}}
	require.NoError(t, c.Set(ctx, key, hits))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hits, got)

	ttl, err := rc.Client.TTL(ctx, redisKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
