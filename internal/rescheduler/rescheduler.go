// Package rescheduler implements the recovery sweep named in SPEC_FULL.md
// §4.1/§4.3/§4.1.2: any task stuck in ProcessStarted older than
// rescheduler_ttl is reset to Pending, recovering from a producer crash
// between claim and stream append (Testable Property #4, Scenario S3).
package rescheduler

import (
	"context"
	"time"

	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/tenant"
)

// Config controls the sweep cadence and the orphan threshold.
type Config struct {
	Interval time.Duration
	TTL      time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, TTL: 2 * time.Minute}
}

// Rescheduler ticks across every tenant, recovering orphaned rows.
type Rescheduler struct {
	registry *tenant.Registry
	cfg      Config
	log      *logging.Logger
}

func New(registry *tenant.Registry, cfg Config, log *logging.Logger) *Rescheduler {
	return &Rescheduler{registry: registry, cfg: cfg, log: log.With("role", "rescheduler")}
}

func (r *Rescheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, session := range r.registry.Sessions() {
				recovered, err := session.Repo.RescheduleOrphans(ctx, r.cfg.TTL)
				if err != nil {
					r.log.ErrorContext(ctx, "rescheduler sweep failed", "tenant", session.Tenant, "error", err)
					continue
				}
				if recovered > 0 {
					r.log.InfoContext(ctx, "recovered orphaned tasks", "tenant", session.Tenant, "count", recovered)
				}
			}
		}
	}
}
