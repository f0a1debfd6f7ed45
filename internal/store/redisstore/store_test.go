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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "sched_test")
}

func TestPartitionBucket_GroupsByWidth(t *testing.T) {
	base := time.Unix(1000, 0)
	assert.Equal(t, PartitionBucket(base, 10*time.Second), PartitionBucket(base.Add(5*time.Second), 10*time.Second))
	assert.NotEqual(t, PartitionBucket(base, 10*time.Second), PartitionBucket(base.Add(15*time.Second), 10*time.Second))
}

func TestAppendAndReadGroup_DeliversEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := store.StreamKey("scheduler", "0")

	require.NoError(t, store.EnsureGroup(ctx, key, "workers"))
	_, err := store.Append(ctx, key, StreamEntry{TaskID: "t1", GlobalID: "tenant-a"})
	require.NoError(t, err)

	streams, err := store.ReadGroup(ctx, []string{key}, "workers", "consumer-1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 1)
	assert.Equal(t, "t1", streams[0].Messages[0].Values["id"])
}

func TestEnsureGroup_ToleratesExistingGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := store.StreamKey("scheduler", "0")

	require.NoError(t, store.EnsureGroup(ctx, key, "workers"))
	require.NoError(t, store.EnsureGroup(ctx, key, "workers"))
}

func TestAckRemovesFromPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := store.StreamKey("scheduler", "0")

	require.NoError(t, store.EnsureGroup(ctx, key, "workers"))
	_, err := store.Append(ctx, key, StreamEntry{TaskID: "t1"})
	require.NoError(t, err)

	streams, err := store.ReadGroup(ctx, []string{key}, "workers", "consumer-1", 10, time.Second)
	require.NoError(t, err)
	id := streams[0].Messages[0].ID

	require.NoError(t, store.Ack(ctx, key, "workers", id))

	pending, err := store.PendingIdle(ctx, key, "workers", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClaim_ReassignsIdleEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := store.StreamKey("scheduler", "0")

	require.NoError(t, store.EnsureGroup(ctx, key, "workers"))
	_, err := store.Append(ctx, key, StreamEntry{TaskID: "t1"})
	require.NoError(t, err)

	streams, err := store.ReadGroup(ctx, []string{key}, "workers", "consumer-1", 10, time.Second)
	require.NoError(t, err)
	id := streams[0].Messages[0].ID

	claimed, err := store.Claim(ctx, key, "workers", "consumer-2", 0, []string{id})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
}

func TestReadShardAndTrim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	shard := store.ShardKey(0)

	_, err := store.Append(ctx, shard, StreamEntry{TaskID: "row-1"})
	require.NoError(t, err)
	_, err = store.Append(ctx, shard, StreamEntry{TaskID: "row-2"})
	require.NoError(t, err)

	messages, err := store.ReadShard(ctx, shard, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	ids := []string{messages[0].ID, messages[1].ID}
	require.NoError(t, store.TrimEntries(ctx, shard, ids...))

	length, err := store.Len(ctx, shard)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestDeadLetter_AppendsToDLQStream(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendDeadLetter(ctx, "shard-0", map[string]interface{}{"id": "row-1", "error": "boom"}))

	length, err := store.Len(ctx, store.DeadLetterKey("shard-0"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}
