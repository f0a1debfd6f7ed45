// Package drainer implements the companion write-buffer flush worker of
// SPEC_FULL.md §4.4, grounded in the teacher's processLoop shape
// (consumer.go) for the read/apply/ack cadence and its deadLetterKey /
// moveToDeadLetter / PurgeDeadLetter helpers (backstage.go, utils.go,
// queue.go) for the dead-letter sink, generalized from a priority job
// queue to a sharded set of advisory-locked write-buffer streams.
package drainer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/metrics"
	"github.com/orbitalpay/scheduler/internal/retry"
	"github.com/orbitalpay/scheduler/internal/store/redisstore"
	"github.com/orbitalpay/scheduler/internal/tenant"
)

// Entry is a deferred mutation enqueued by the rest of the platform
// (SPEC_FULL.md §3's write-buffer stream entry: {operation, table, payload,
// global_id}).
type Entry struct {
	Operation string          `json:"operation"`
	Table     string          `json:"table"`
	Payload   json.RawMessage `json:"payload"`
	GlobalID  string          `json:"global_id"`
}

// Applier applies a single write-buffer entry against the primary store.
// Implementations are expected to be idempotent enough to tolerate
// at-least-once redelivery after a crash between apply and trim.
type Applier interface {
	Apply(ctx context.Context, entry Entry) error
}

// Config holds the enumerated drainer options of SPEC_FULL.md §6.
type Config struct {
	StreamCount     int
	NumPartitions   int
	MaxReadCount    int64
	ShutdownGrace   time.Duration
	LoopInterval    time.Duration
	MinLoopInterval time.Duration
	MaxLoopInterval time.Duration
	LockTTL         time.Duration
	EntryRetries    int
}

func DefaultConfig() Config {
	return Config{
		StreamCount:     4,
		NumPartitions:   1,
		MaxReadCount:    50,
		ShutdownGrace:   15 * time.Second,
		LoopInterval:    500 * time.Millisecond,
		MinLoopInterval: 200 * time.Millisecond,
		MaxLoopInterval: 5 * time.Second,
		LockTTL:         10 * time.Second,
		EntryRetries:    3,
	}
}

// Drainer binds a fixed set of write-buffer shards per tenant and flushes
// them into the primary store under exclusive advisory locks.
type Drainer struct {
	registry *tenant.Registry
	applier  Applier
	cfg      Config
	policy   retry.Policy
	metrics  *metrics.Metrics
	log      *logging.Logger
}

func New(registry *tenant.Registry, applier Applier, cfg Config, policy retry.Policy, m *metrics.Metrics, log *logging.Logger) *Drainer {
	return &Drainer{
		registry: registry,
		applier:  applier,
		cfg:      cfg,
		policy:   policy,
		metrics:  m,
		log:      log.With("role", "drainer"),
	}
}

// shardKeys enumerates the fixed set of shard names this drainer instance
// attempts to bind, StreamCount * NumPartitions per tenant.
func (d *Drainer) shardKeys(store *redisstore.Store) []string {
	total := d.cfg.StreamCount * d.cfg.NumPartitions
	if total <= 0 {
		total = 1
	}
	keys := make([]string, total)
	for i := 0; i < total; i++ {
		keys[i] = store.ShardKey(i)
	}
	return keys
}

// Run binds every shard of every tenant concurrently and blocks until ctx
// is cancelled and every shard loop has drained its current batch.
func (d *Drainer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, session := range d.registry.Sessions() {
		for _, shard := range d.shardKeys(session.Fast) {
			wg.Add(1)
			go func(s *tenant.Session, shardKey string) {
				defer wg.Done()
				d.runShard(ctx, s, shardKey)
			}(session, shard)
		}
	}
	wg.Wait()
	return nil
}

// runShard repeatedly attempts to acquire the shard's advisory lock and, for
// as long as it holds it, runs the read/apply/ack loop with the adaptive
// interval controller (§4.4). Losing the lock or the shard sitting idle
// simply means retrying acquisition on the next tick.
func (d *Drainer) runShard(ctx context.Context, session *tenant.Session, shardKey string) {
	lockKey := fmt.Sprintf("%s:drainer:%s", session.Tenant, shardKey)
	controller := DefaultController(d.cfg.LoopInterval)
	if d.cfg.MinLoopInterval > 0 {
		controller.Min = d.cfg.MinLoopInterval
	}
	if d.cfg.MaxLoopInterval > 0 {
		controller.Max = d.cfg.MaxLoopInterval
	}

	sleep := controller.Base
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}

		token, ok, err := session.Fast.AcquireLock(ctx, lockKey, d.cfg.LockTTL)
		if err != nil {
			d.log.ErrorContext(ctx, "acquire shard lock failed", "tenant", session.Tenant, "shard", shardKey, "error", err)
			sleep = controller.NextInterval()
			continue
		}
		if !ok {
			sleep = controller.NextInterval()
			continue
		}

		count := d.runBatch(ctx, session, shardKey)
		_ = session.Fast.ReleaseLock(context.Background(), lockKey, token)

		controller.Observe(count, int(d.cfg.MaxReadCount))
		sleep = controller.NextInterval()
		if d.metrics != nil {
			d.metrics.DrainerLoopIntervalMs.Set(float64(sleep.Milliseconds()))
			if d.cfg.MaxReadCount > 0 {
				d.metrics.DrainerBatchFullness.Set(float64(count) / float64(d.cfg.MaxReadCount))
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runBatch performs a single read/apply/ack cycle while the shard lock is
// held, returning the number of entries read (the controller's fullness
// signal).
func (d *Drainer) runBatch(ctx context.Context, session *tenant.Session, shardKey string) int {
	messages, err := session.Fast.ReadShard(ctx, shardKey, d.cfg.MaxReadCount)
	if err != nil {
		d.log.ErrorContext(ctx, "read shard failed", "shard", shardKey, "error", err)
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	applied := make([]string, 0, len(messages))
	for _, msg := range messages {
		entry, err := decodeEntry(msg)
		if err != nil {
			d.log.ErrorContext(ctx, "malformed write-buffer entry, dead-lettering", "shard", shardKey, "id", msg.ID, "error", err)
			if !d.deadLetter(ctx, session, shardKey, msg, err) {
				continue
			}
			applied = append(applied, msg.ID)
			continue
		}

		if err := d.applyWithRetry(ctx, entry); err != nil {
			d.log.ErrorContext(ctx, "entry exhausted retries, dead-lettering", "shard", shardKey, "id", msg.ID, "error", err)
			if !d.deadLetter(ctx, session, shardKey, msg, err) {
				continue
			}
		}
		applied = append(applied, msg.ID)
	}

	if err := session.Fast.TrimEntries(ctx, shardKey, applied...); err != nil {
		d.log.ErrorContext(ctx, "trim consumed entries failed", "shard", shardKey, "error", err)
	}
	return len(messages)
}

// applyWithRetry runs the per-operation retry policy (§4.4) before giving up
// on an individual entry.
func (d *Drainer) applyWithRetry(ctx context.Context, entry Entry) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.EntryRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.policy.NextDelay(attempt - 1)):
			}
		}
		if err := d.applier.Apply(ctx, entry); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// deadLetter reports whether the entry was written to the dead-letter sink;
// an entry that was not stays on the shard.
func (d *Drainer) deadLetter(ctx context.Context, session *tenant.Session, shardKey string, msg redis.XMessage, cause error) bool {
	payload := map[string]interface{}{
		"shard": shardKey,
		"id":    msg.ID,
		"error": cause.Error(),
	}
	for k, v := range msg.Values {
		payload[k] = v
	}
	if err := session.Fast.AppendDeadLetter(ctx, shardKey, payload); err != nil {
		d.log.ErrorContext(ctx, "dead-letter append failed, entry will be retried on next read", "shard", shardKey, "id", msg.ID, "error", err)
		return false
	}
	return true
}

func decodeEntry(msg redis.XMessage) (Entry, error) {
	operation, _ := msg.Values["operation"].(string)
	table, _ := msg.Values["table"].(string)
	globalID, _ := msg.Values["global_id"].(string)
	payload, _ := msg.Values["payload"].(string)
	if operation == "" || table == "" {
		return Entry{}, fmt.Errorf("missing operation/table fields")
	}
	return Entry{
		Operation: operation,
		Table:     table,
		Payload:   json.RawMessage(payload),
		GlobalID:  globalID,
	}, nil
}
