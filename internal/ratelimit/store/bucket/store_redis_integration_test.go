//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisStore(rc.Client)

	for i := range testLimit {
		res, err := store.Allow(ctx, "rl:verify:user:7", testLimit, testWindow)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, testLimit-i-1, res.Remaining)
	}

	res, err := store.Allow(ctx, "rl:verify:user:7", testLimit, testWindow)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.WithinDuration(t, time.Now().Add(testWindow), res.ResetAt, 5*time.Second)

	ttl, err := rc.Client.PTTL(ctx, "rl:verify:user:7").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Reset(ctx, "rl:verify:user:7"))
	res, err = store.Allow(ctx, "rl:verify:user:7", testLimit, testWindow)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
