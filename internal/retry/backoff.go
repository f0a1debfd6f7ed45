// Package retry implements the scheduler's retry/backoff policy
// (SPEC_FULL.md §4.3). It is modeled on the teacher's BackoffConfig but
// generalized to a rule-derived cadence, and adds the max-retries bound that
// forces a task to terminal failure. There are no per-runner policies: one
// base policy applies to every runner.
package retry

import (
	"strconv"
	"strings"
	"time"
)

// Type selects the backoff shape.
type Type string

const (
	Fixed       Type = "fixed"
	Exponential Type = "exponential"
)

// Policy describes how delays grow between attempts and when to give up.
type Policy struct {
	Type       Type
	Base       time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultPolicy is used when a task's rule does not encode its own cadence.
var DefaultPolicy = Policy{
	Type:       Exponential,
	Base:       30 * time.Second,
	MaxDelay:   1 * time.Hour,
	MaxRetries: 8,
}

// DefaultEntryRetryPolicy backs off the drainer's per-entry apply retries
// (SPEC_FULL.md §4.4). It must stay well under a shard's advisory-lock TTL:
// the lock is held for the duration of a batch and is never renewed, so a
// per-entry retry policy that reuses DefaultPolicy's 30s base would let the
// lock expire mid-batch and hand the shard to a second drainer.
var DefaultEntryRetryPolicy = Policy{
	Type:       Exponential,
	Base:       200 * time.Millisecond,
	MaxDelay:   2 * time.Second,
	MaxRetries: 3,
}

// NextDelay computes the backoff delay before retryCount+1's attempt.
func (p Policy) NextDelay(retryCount int) time.Duration {
	if p.Type == Fixed {
		return capAt(p.Base, p.MaxDelay)
	}
	// Exponential: base * 2^retryCount, capped.
	d := p.Base
	for i := 0; i < retryCount && d < p.MaxDelay; i++ {
		d *= 2
	}
	return capAt(d, p.MaxDelay)
}

func capAt(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// Exhausted reports whether retryCount has reached the policy's max-retries
// bound, after which the task must be forced to Finish(GLOBAL_FAILURE).
// MaxRetries == 0 means zero retries are allowed ("once"), so the first
// failure is already exhausted.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}

// ParseRule parses a task's opaque `rule` string into a Policy override.
// Supported forms: "once" (no retries — any failure is terminal), or
// "retry:<type>:<base_seconds>:<max_delay_seconds>:<max_retries>". Any
// other value (including cron-like cadences, which govern re-scheduling of
// recurring work rather than retry backoff) falls back to base.
func ParseRule(rule string, base Policy) Policy {
	if rule == "" {
		return base
	}
	if rule == "once" {
		p := base
		p.MaxRetries = 0
		return p
	}
	if !strings.HasPrefix(rule, "retry:") {
		return base
	}
	parts := strings.Split(rule, ":")
	if len(parts) != 5 {
		return base
	}
	p := base
	switch parts[1] {
	case "fixed":
		p.Type = Fixed
	case "exponential":
		p.Type = Exponential
	}
	if v, err := strconv.Atoi(parts[2]); err == nil {
		p.Base = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(parts[3]); err == nil {
		p.MaxDelay = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(parts[4]); err == nil {
		p.MaxRetries = v
	}
	return p
}
