package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamEntry is the ordered message appended by the producer and consumed
// by the consumer (SPEC_FULL.md §3): {id, global_id}.
type StreamEntry struct {
	TaskID   string
	GlobalID string
}

// Message is a delivered stream entry together with its Redis stream ID,
// needed to ack or claim it later.
type Message struct {
	ID    string
	Entry StreamEntry
}

// Store wraps a *redis.Client with the stream and lock primitives shared
// by the producer, consumer, and drainer. It has no pub/sub methods.
type Store struct {
	Client  *redis.Client
	Prefix  string
	Scripts *ScriptRegistry
}

func New(client *redis.Client, prefix string) *Store {
	s := &Store{Client: client, Prefix: prefix, Scripts: NewScriptRegistry(client)}
	return s
}

// LoadScripts registers the lock scripts; call once at startup.
func (s *Store) LoadScripts(ctx context.Context) error {
	return s.Scripts.Load(ctx, map[string]ScriptDef{
		"acquire_lock": {Script: acquireLockScript, Keys: map[string]int{"lock": 1}},
		"release_lock": {Script: releaseLockScript, Keys: map[string]int{"lock": 1}},
	})
}

// StreamKey follows the {prefix}_{flow}_{partition} layout of SPEC_FULL.md §6.
func (s *Store) StreamKey(flow, partition string) string {
	return fmt.Sprintf("%s_%s_%s", s.Prefix, flow, partition)
}

// PartitionBucket derives floor(now/partitionWidth) so multiple producer
// replicas naturally share partitions (§4.1).
func PartitionBucket(now time.Time, partitionWidth time.Duration) string {
	if partitionWidth <= 0 {
		return "0"
	}
	bucket := now.Unix() / int64(partitionWidth.Seconds())
	return fmt.Sprintf("%d", bucket)
}

// Append adds a StreamEntry to the stream, returning the assigned stream ID.
func (s *Store) Append(ctx context.Context, streamKey string, entry StreamEntry) (string, error) {
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"id":        entry.TaskID,
			"global_id": entry.GlobalID,
		},
	}).Result()
}

// Len reports the stream's current length, used by the producer's
// back-pressure watermark check.
func (s *Store) Len(ctx context.Context, streamKey string) (int64, error) {
	return s.Client.XLen(ctx, streamKey).Result()
}

// EnsureGroup creates the consumer group at the start of the stream if it
// does not already exist, tolerating the BUSYGROUP race.
func (s *Store) EnsureGroup(ctx context.Context, streamKey, group string) error {
	err := s.Client.XGroupCreateMkStream(ctx, streamKey, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// ReadGroup performs a blocking XREADGROUP across one or more streams.
func (s *Store) ReadGroup(ctx context.Context, streamKeys []string, group, consumer string, count int64, block time.Duration) ([]redis.XStream, error) {
	streams := make([]string, 0, len(streamKeys)*2)
	streams = append(streams, streamKeys...)
	for range streamKeys {
		streams = append(streams, ">")
	}

	res, err := s.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  streams,
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return res, err
}

// Ack acknowledges a delivered entry.
func (s *Store) Ack(ctx context.Context, streamKey, group, id string) error {
	return s.Client.XAck(ctx, streamKey, group, id).Err()
}

// PendingIdle returns entries idle beyond threshold, for the consumer's
// periodic reclaim scan.
func (s *Store) PendingIdle(ctx context.Context, streamKey, group string, idle time.Duration, count int64) ([]redis.XPendingExt, error) {
	return s.Client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: streamKey,
		Group:  group,
		Idle:   idle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
}

// Claim reassigns ownership of an idle entry to consumer.
func (s *Store) Claim(ctx context.Context, streamKey, group, consumer string, minIdle time.Duration, ids []string) ([]redis.XMessage, error) {
	return s.Client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   streamKey,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
}

// AcquireLock attempts to take an advisory lock, returning the owner token
// to present to ReleaseLock, and whether it was acquired.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	res, err := s.Scripts.Run(ctx, "acquire_lock", map[string]string{"lock": key}, token, ttl.Milliseconds())
	if err != nil {
		return "", false, err
	}
	acquired, _ := res.(int64)
	return token, acquired == 1, nil
}

// ReleaseLock releases the lock only if token still owns it.
func (s *Store) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := s.Scripts.Run(ctx, "release_lock", map[string]string{"lock": key}, token)
	return err
}

// ReadShard reads up to count entries from the head of a write-buffer
// stream shard. The drainer owns the shard exclusively via its advisory
// lock, so a plain XRANGE (rather than a consumer group) is sufficient:
// there is only ever one reader.
func (s *Store) ReadShard(ctx context.Context, streamKey string, count int64) ([]redis.XMessage, error) {
	return s.Client.XRangeN(ctx, streamKey, "-", "+", count).Result()
}

// TrimEntries removes consumed entries from a shard by ID, the drainer's
// "acknowledge and trim" step once a batch has been applied successfully.
func (s *Store) TrimEntries(ctx context.Context, streamKey string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.Client.XDel(ctx, streamKey, ids...).Err()
}

// ShardKey names a drainer write-buffer shard (SPEC_FULL.md §6's
// drainer.stream_count / drainer.num_partitions sharding scheme).
func (s *Store) ShardKey(shard int) string {
	return fmt.Sprintf("%s_wbuf_%d", s.Prefix, shard)
}

// DeadLetterKey is the drainer's dead-letter sink for a given shard (SPEC_FULL.md §4.4.1).
func (s *Store) DeadLetterKey(shard string) string {
	return fmt.Sprintf("%s_dlq_%s", s.Prefix, shard)
}

// AppendDeadLetter records an entry that exhausted its per-operation retry policy.
func (s *Store) AppendDeadLetter(ctx context.Context, shard string, payload map[string]interface{}) error {
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.DeadLetterKey(shard),
		Values: payload,
	}).Err()
}
