// Package producer implements the time-window batch fetcher and stream
// enqueuer of SPEC_FULL.md §4.1, grounded in the teacher's Enqueue/Schedule
// (producer.go) and the Lua-script-backed scheduled-task mover
// (scheduler.go's processScheduledLua / ScriptRegistry), generalized from a
// single Redis ZSET mover into a primary-store scan + conditional claim +
// stream append.
package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/metrics"
	"github.com/orbitalpay/scheduler/internal/store/redisstore"
	"github.com/orbitalpay/scheduler/internal/tenant"
)

// Config holds the enumerated producer options of SPEC_FULL.md §6.
type Config struct {
	TickInterval    time.Duration
	UpperFetchLimit time.Duration
	LowerFetchLimit time.Duration
	BatchSize       int
	LockKey         string
	LockTTL         time.Duration
	HighWatermark   int64
	PartitionWidth  time.Duration
	Flow            string
}

// DefaultConfig mirrors the teacher's DefaultConfig/DefaultConsumerConfig
// style of sensible out-of-the-box values.
func DefaultConfig() Config {
	return Config{
		TickInterval:    5 * time.Second,
		UpperFetchLimit: 30 * time.Second,
		LowerFetchLimit: 30 * time.Minute,
		BatchSize:       100,
		LockTTL:         10 * time.Second,
		HighWatermark:   10000,
		PartitionWidth:  10 * time.Second,
		Flow:            "scheduler",
	}
}

// Producer drives one tick loop across every tenant in the registry.
type Producer struct {
	registry *tenant.Registry
	cfg      Config
	metrics  *metrics.Metrics
	log      *logging.Logger
}

func New(registry *tenant.Registry, cfg Config, m *metrics.Metrics, log *logging.Logger) *Producer {
	return &Producer{registry: registry, cfg: cfg, metrics: m, log: log.With("role", "producer")}
}

// Run ticks until ctx is cancelled. Each tick visits the tenants one after
// another; an error or a backpressure skip for one tenant does not stop the
// others, but a slow tenant delays the ones after it.
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, session := range p.registry.Sessions() {
				skipExtra, err := p.tick(ctx, session)
				if err != nil {
					p.log.ErrorContext(ctx, "producer tick failed", "tenant", session.Tenant, "error", err)
					continue
				}
				if skipExtra {
					p.log.InfoContext(ctx, "backpressure watermark exceeded, skipping tick", "tenant", session.Tenant)
				}
			}
		}
	}
}

// tick runs one producer cycle for a single tenant. skipExtra reports
// whether the high-watermark back-pressure check caused this tick to no-op.
func (p *Producer) tick(ctx context.Context, session *tenant.Session) (skipExtra bool, err error) {
	streamKey := session.Fast.StreamKey(p.cfg.Flow, redisstore.PartitionBucket(time.Now(), p.cfg.PartitionWidth))

	if p.cfg.HighWatermark > 0 {
		length, err := session.Fast.Len(ctx, streamKey)
		if err != nil {
			return false, fmt.Errorf("check stream length: %w", err)
		}
		if length >= p.cfg.HighWatermark {
			return true, nil
		}
	}

	var lockToken string
	if p.cfg.LockKey != "" {
		token, ok, err := session.Fast.AcquireLock(ctx, string(session.Tenant)+":"+p.cfg.LockKey, p.cfg.LockTTL)
		if err != nil {
			return false, fmt.Errorf("acquire producer lock: %w", err)
		}
		if !ok {
			return false, nil // another producer replica holds the lock this tick
		}
		lockToken = token
		defer func() { _ = session.Fast.ReleaseLock(context.Background(), string(session.Tenant)+":"+p.cfg.LockKey, lockToken) }()
	}

	now := time.Now()
	eligible, err := session.Repo.SelectEligible(ctx, now, p.cfg.LowerFetchLimit, p.cfg.UpperFetchLimit, p.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("select eligible tasks: %w", err)
	}
	if len(eligible) == 0 {
		return false, nil
	}

	ids := make([]string, len(eligible))
	for i, t := range eligible {
		ids[i] = t.ID
	}

	claimed, err := session.Repo.ClaimForProducer(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("claim tasks: %w", err)
	}

	var failedAppend []string
	for _, id := range claimed {
		if _, err := session.Fast.Append(ctx, streamKey, redisstore.StreamEntry{TaskID: id, GlobalID: string(session.Tenant)}); err != nil {
			p.log.ErrorContext(ctx, "stream append failed after claim", "task_id", id, "error", err)
			failedAppend = append(failedAppend, id)
			continue
		}
		p.metrics.TaskClaimed()
	}

	if len(failedAppend) > 0 {
		// Failure semantics (§4.1): revert the claim so the rescheduler is
		// not the only path back to Pending — we try the direct revert
		// first and rely on the rescheduler only if this also fails.
		if err := session.Repo.RevertClaim(ctx, failedAppend); err != nil {
			p.log.ErrorContext(ctx, "revert claim failed, relying on rescheduler TTL", "ids", failedAppend, "error", err)
		}
	}

	return false, nil
}
