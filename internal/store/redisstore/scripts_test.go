package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*ScriptRegistry, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewScriptRegistry(client), client
}

func TestScriptRegistry_LoadAndRun(t *testing.T) {
	registry, client := newTestRegistry(t)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, registry.Load(ctx, map[string]ScriptDef{
		"echo": {Script: "return ARGV[1]", Keys: map[string]int{}},
	}))

	res, err := registry.Run(ctx, "echo", map[string]string{}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", res)
}

func TestScriptRegistry_RunUnknownScript(t *testing.T) {
	registry, client := newTestRegistry(t)
	defer client.Close()

	_, err := registry.Run(context.Background(), "missing", map[string]string{})
	assert.Error(t, err)
}

func TestScriptRegistry_ReloadsAfterNoScript(t *testing.T) {
	registry, client := newTestRegistry(t)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, registry.Load(ctx, map[string]ScriptDef{
		"echo": {Script: "return ARGV[1]", Keys: map[string]int{}},
	}))

	require.NoError(t, client.ScriptFlush(ctx).Err())

	res, err := registry.Run(ctx, "echo", map[string]string{}, "again")
	require.NoError(t, err)
	assert.Equal(t, "again", res)
}

func TestAcquireAndReleaseLock(t *testing.T) {
	_, client := newTestRegistry(t)
	defer client.Close()
	store := New(client, "test")
	ctx := context.Background()
	require.NoError(t, store.LoadScripts(ctx))

	token, ok, err := store.AcquireLock(ctx, "shard-0", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok2, err := store.AcquireLock(ctx, "shard-0", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "a second acquirer must not win the lock while it is held")

	require.NoError(t, store.ReleaseLock(ctx, "shard-0", token))

	_, ok3, err := store.AcquireLock(ctx, "shard-0", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok3, "lock must be acquirable again after release")
}

func TestReleaseLock_DoesNotReleaseAnotherOwnersLock(t *testing.T) {
	_, client := newTestRegistry(t)
	defer client.Close()
	store := New(client, "test")
	ctx := context.Background()
	require.NoError(t, store.LoadScripts(ctx))

	_, ok, err := store.AcquireLock(ctx, "shard-0", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.ReleaseLock(ctx, "shard-0", "not-the-real-token"))

	_, ok2, err := store.AcquireLock(ctx, "shard-0", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "lock must still be held since the release token didn't match")
}
