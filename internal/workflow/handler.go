// Package workflow defines the WorkflowHandler capability and a flat
// registry keyed by runner tag (SPEC_FULL.md §4.5). Dispatch is modeled as
// a tagged variant plus a registry mapping, per the Design Notes' explicit
// preference for a flat registry over an inheritance hierarchy — the same
// shape as the teacher's taskName->Handler map in backstage.go, generalized
// to a three-method capability instead of a single function.
package workflow

import (
	"context"
	"errors"

	"github.com/orbitalpay/scheduler/internal/tenant"
	"github.com/orbitalpay/scheduler/internal/tracker"
)

// Outcome classifies how a handler's Execute call resolved.
type Outcome int

const (
	// OutcomeSuccess: the task completed; err is always nil.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable: a transient failure; backoff and re-enqueue.
	OutcomeRetryable
	// OutcomeReview: the handler wants a human to look at this task.
	OutcomeReview
	// OutcomeFatal: a permanent failure; force Finish(GLOBAL_FAILURE).
	OutcomeFatal
)

// Handler is the per-runner workflow capability. Handlers are pure with
// respect to the scheduler: they never touch stream state or locks, only
// their business data and (via Session) their own task row.
type Handler interface {
	// Execute runs the task's business logic. err is non-nil for any
	// Outcome other than OutcomeSuccess.
	Execute(ctx context.Context, session *tenant.Session, task *tracker.Task) (Outcome, error)
	// OnSuccess runs after a successful Execute, before the task is
	// stamped Finish(GLOBAL_SUCCESS).
	OnSuccess(ctx context.Context, session *tenant.Session, task *tracker.Task) error
	// OnError runs after a failed Execute (any non-success Outcome),
	// before the consumer applies the corresponding transition.
	OnError(ctx context.Context, session *tenant.Session, task *tracker.Task, cause error) error
}

// ErrRunnerNotFound is returned by Registry.Lookup for an unknown runner tag.
var ErrRunnerNotFound = errors.New("runner not found in registry")

// Registry maps runner tags to their Handler. The set of registered runners
// is closed: build-time feature flags (v1/v2, payouts, revenue_recovery,
// email — §9) decide which subset is registered, but any task whose runner
// is outside that set is routed to RunnerNotFound handling by the consumer.
type Registry struct {
	handlers map[tracker.Runner]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[tracker.Runner]Handler)}
}

// Register binds a runner tag to its handler. Re-registering a tag replaces
// the previous binding, matching the teacher's On().
func (r *Registry) Register(runner tracker.Runner, h Handler) {
	r.handlers[runner] = h
}

// Lookup resolves the handler for a runner tag.
func (r *Registry) Lookup(runner tracker.Runner) (Handler, error) {
	h, ok := r.handlers[runner]
	if !ok {
		return nil, ErrRunnerNotFound
	}
	return h, nil
}
