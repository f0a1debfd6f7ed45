// Package consumer implements the stream reader, in-memory pipeline, and
// workflow dispatcher of SPEC_FULL.md §4.2, adapted from the teacher's
// processLoop/handleMessage/runReclaimer (consumer.go): the same
// multi-stream XREADGROUP-plus-semaphore shape, generalized from a fixed
// priority-stream list to the scheduler's time-bucketed partitions, and
// from a bare function Handler to the three-method WorkflowHandler protocol.
package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/metrics"
	"github.com/orbitalpay/scheduler/internal/retry"
	"github.com/orbitalpay/scheduler/internal/store/redisstore"
	"github.com/orbitalpay/scheduler/internal/tenant"
	"github.com/orbitalpay/scheduler/internal/workflow"
)

// Config holds the enumerated consumer options of SPEC_FULL.md §6.
type Config struct {
	ConsumerGroup     string
	Disabled          bool
	Flow              string
	PartitionWidth    time.Duration
	PartitionLookback int
	BlockTimeout      time.Duration
	MaxRead           int64
	ReclaimerInterval time.Duration
	IdleTimeout       time.Duration
	Concurrency       int
	GracePeriod       time.Duration
}

// DefaultConfig mirrors the teacher's DefaultConsumerConfig defaults.
func DefaultConfig() Config {
	return Config{
		ConsumerGroup:     "scheduler-workers",
		Flow:              "scheduler",
		PartitionWidth:    10 * time.Second,
		PartitionLookback: 2,
		BlockTimeout:      5 * time.Second,
		MaxRead:           10,
		ReclaimerInterval: 30 * time.Second,
		IdleTimeout:       60 * time.Second,
		Concurrency:       50,
		GracePeriod:       30 * time.Second,
	}
}

// Consumer drives the read -> hydrate -> transition -> dispatch pipeline
// across every tenant in the registry.
type Consumer struct {
	registryTenants *tenant.Registry
	registry        *workflow.Registry
	cfg             Config
	basePolicy      retry.Policy
	metrics         *metrics.Metrics
	log             *logging.Logger
	consumerID      string
}

func New(tenants *tenant.Registry, handlers *workflow.Registry, cfg Config, basePolicy retry.Policy, m *metrics.Metrics, log *logging.Logger) *Consumer {
	return &Consumer{
		registryTenants: tenants,
		registry:        handlers,
		cfg:             cfg,
		basePolicy:      basePolicy,
		metrics:         m,
		log:             log.With("role", "consumer"),
		consumerID:      uuid.NewString(),
	}
}

// Run joins the consumer group and processes every tenant concurrently
// until ctx is cancelled, then waits up to GracePeriod for in-flight
// handlers to finish (§4.6).
func (c *Consumer) Run(ctx context.Context) error {
	if c.cfg.Disabled {
		return nil
	}

	var wg sync.WaitGroup
	for _, session := range c.registryTenants.Sessions() {
		wg.Add(1)
		go func(s *tenant.Session) {
			defer wg.Done()
			c.runTenant(ctx, s)
		}(session)
	}
	wg.Wait()
	return nil
}

// streamKeys returns the set of time-bucketed partitions worth polling:
// the current bucket plus PartitionLookback prior buckets, so entries
// appended just before a bucket rollover are not missed.
func (c *Consumer) streamKeys(store *redisstore.Store, now time.Time) []string {
	keys := make([]string, 0, c.cfg.PartitionLookback+1)
	for i := 0; i <= c.cfg.PartitionLookback; i++ {
		t := now.Add(-time.Duration(i) * c.cfg.PartitionWidth)
		keys = append(keys, store.StreamKey(c.cfg.Flow, redisstore.PartitionBucket(t, c.cfg.PartitionWidth)))
	}
	return keys
}

func (c *Consumer) runTenant(ctx context.Context, session *tenant.Session) {
	sem := make(chan struct{}, c.cfg.Concurrency)
	var inflight sync.WaitGroup

	go c.reclaimLoop(ctx, session)

	for {
		select {
		case <-ctx.Done():
			c.drain(&inflight)
			return
		default:
		}

		keys := c.streamKeys(session.Fast, time.Now())
		for _, key := range keys {
			if err := session.Fast.EnsureGroup(ctx, key, c.cfg.ConsumerGroup); err != nil {
				c.log.ErrorContext(ctx, "ensure consumer group failed", "tenant", session.Tenant, "stream", key, "error", err)
			}
		}

		available := c.cfg.Concurrency - len(sem)
		if available <= 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		count := c.cfg.MaxRead
		if int64(available) < count {
			count = int64(available)
		}

		streams, err := session.Fast.ReadGroup(ctx, keys, c.cfg.ConsumerGroup, c.consumerID, count, c.cfg.BlockTimeout)
		if err != nil {
			c.log.ErrorContext(ctx, "read group failed", "tenant", session.Tenant, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				sem <- struct{}{}
				inflight.Add(1)
				go func(streamKey string, m redis.XMessage) {
					defer func() { <-sem; inflight.Done() }()
					c.handle(ctx, session, streamKey, redisToMessage(m))
				}(stream.Stream, msg)
			}
		}
	}
}

func (c *Consumer) drain(inflight *sync.WaitGroup) {
	done := make(chan struct{})
	go func() { inflight.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(c.cfg.GracePeriod):
		c.log.Warn("grace period expired, in-flight handlers left running")
	}
}

func redisToMessage(m redis.XMessage) redisstore.Message {
	taskID, _ := m.Values["id"].(string)
	globalID, _ := m.Values["global_id"].(string)
	return redisstore.Message{ID: m.ID, Entry: redisstore.StreamEntry{TaskID: taskID, GlobalID: globalID}}
}

// handle runs the three-stage pipeline for a single delivered entry and
// only acknowledges it once the handler (and outcome persistence) has
// completed — the at-least-once guarantee of §4.2.
func (c *Consumer) handle(ctx context.Context, session *tenant.Session, streamKey string, msg redisstore.Message) {
	t, drop, err := c.hydrate(ctx, msg.Entry.TaskID, session)
	if err != nil {
		c.log.ErrorContext(ctx, "hydrate failed", "task_id", msg.Entry.TaskID, "error", err)
		return // leave unacked; will be redelivered or reclaimed
	}
	if drop {
		c.ack(ctx, session, streamKey, msg.ID)
		return
	}

	claimed, err := c.transition(ctx, t, session)
	if err != nil {
		c.log.ErrorContext(ctx, "transition failed", "task_id", t.ID, "error", err)
		return
	}
	if !claimed {
		c.ack(ctx, session, streamKey, msg.ID) // someone else already won this task
		return
	}

	if err := c.dispatch(ctx, t, session); err != nil {
		c.log.ErrorContext(ctx, "persist outcome failed", "task_id", t.ID, "error", err)
		return // leave unacked so it is retried/reclaimed
	}

	c.ack(ctx, session, streamKey, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, session *tenant.Session, streamKey, id string) {
	if err := session.Fast.Ack(ctx, streamKey, c.cfg.ConsumerGroup, id); err != nil {
		c.log.ErrorContext(ctx, "ack failed", "stream", streamKey, "id", id, "error", err)
	}
}

func (c *Consumer) reclaimLoop(ctx context.Context, session *tenant.Session) {
	ticker := time.NewTicker(c.cfg.ReclaimerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reclaimIdle(ctx, session)
		}
	}
}

func (c *Consumer) reclaimIdle(ctx context.Context, session *tenant.Session) {
	for _, key := range c.streamKeys(session.Fast, time.Now()) {
		pending, err := session.Fast.PendingIdle(ctx, key, c.cfg.ConsumerGroup, c.cfg.IdleTimeout, c.cfg.MaxRead)
		if err != nil {
			continue
		}
		for _, p := range pending {
			claimed, err := session.Fast.Claim(ctx, key, c.cfg.ConsumerGroup, c.consumerID, c.cfg.IdleTimeout, []string{p.ID})
			if err != nil || len(claimed) == 0 {
				continue
			}
			c.handle(ctx, session, key, redisToMessage(claimed[0]))
		}
	}
}
