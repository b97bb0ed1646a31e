package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Run("empty URL disables redis", func(t *testing.T) {
		client, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("malformed URL", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{URL: "not-a-url://x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse redis URL")
	})
}

func TestOptions(t *testing.T) {
	t.Run("overrides apply over the URL", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:         "redis://:secret@cache:6380/2",
			PoolSize:    7,
			DialTimeout: 3 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 7, opts.PoolSize)
		assert.Equal(t, 3*time.Second, opts.DialTimeout)
	})

	t.Run("zero values keep URL settings", func(t *testing.T) {
		opts, err := options(config.RedisConfig{URL: "redis://cache:6379/0?dial_timeout=4s&pool_size=3"})
		require.NoError(t, err)
		assert.Equal(t, 3, opts.PoolSize)
		assert.Equal(t, 4*time.Second, opts.DialTimeout)
		assert.Zero(t, opts.MinIdleConns)
	})
}
