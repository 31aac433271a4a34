package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/tenant"
	testutil "github.com/edapp/edapp/tests"
)

func TestRedisStores(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	conf.Redis.Addr = testutil.StartRedis(t)

	client, err := NewRedisClient(ctx, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	t.Run("tenant cache", func(t *testing.T) {
		cache := NewRedisTenantCache(client, time.Minute, testutil.NewLogger(t))
		greenwood := tenant.Tenant{ID: "1", Slug: "greenwood", Name: "Greenwood", Status: tenant.StatusActive}

		cache.Set(ctx, greenwood)
		got, ok := cache.Get(ctx, "greenwood")
		assert.True(t, ok)
		assert.Equal(t, greenwood.ID, got.ID)

		cache.Delete(ctx, "greenwood")
		_, ok = cache.Get(ctx, "greenwood")
		assert.False(t, ok)
	})

	t.Run("handoff store", func(t *testing.T) {
		store := NewRedisHandoffStore(client)
		g := handoff.Grant{UserID: "u1", TenantID: "t1", TenantSlug: "greenwood", OrigIssuedAt: 42}

		require.NoError(t, store.Put(ctx, "code", g, time.Minute))
		assert.Equal(t, errCodeCollision, store.Put(ctx, "code", g, time.Minute))

		got, err := store.Peek(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, g, got)

		got, err = store.Take(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, g, got)

		_, err = store.Take(ctx, "code")
		assert.Equal(t, handoff.ErrInvalidCode, err)
	})
}
