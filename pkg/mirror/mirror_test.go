package mirror

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	ctx := context.Background()
	var m Mirror = Nop{}

	require.NoError(t, m.SetCurrent(ctx, "Work"))
	name, ok, err := m.Current(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestRedisMirror(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}

	m := NewRedis(client, "barswitch-test:")
	defer client.Del(ctx, m.currentKey(), m.namesKey())

	t.Run("CurrentMissing", func(t *testing.T) {
		client.Del(ctx, m.currentKey())
		_, ok, err := m.Current(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CurrentRoundTrip", func(t *testing.T) {
		require.NoError(t, m.SetCurrent(ctx, "Work"))
		name, ok, err := m.Current(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Work", name)
	})

	t.Run("NamesReplaced", func(t *testing.T) {
		require.NoError(t, m.SetNames(ctx, []string{"Default", "Work", "Home"}))
		require.NoError(t, m.SetNames(ctx, []string{"Default", "Home"}))
		names, err := m.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Default", "Home"}, names)
	})

	t.Run("NamesEmpty", func(t *testing.T) {
		require.NoError(t, m.SetNames(ctx, nil))
		names, err := m.Names(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestNewRedisDefaultPrefix(t *testing.T) {
	m := NewRedis(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer m.client.Close()
	assert.Equal(t, "barswitch:current", m.currentKey())
	assert.Equal(t, "barswitch:names", m.namesKey())
}
