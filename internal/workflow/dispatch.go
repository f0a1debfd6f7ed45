package workflow

import (
	"context"
	"time"

	"github.com/orbitalpay/scheduler/internal/retry"
	"github.com/orbitalpay/scheduler/internal/tenant"
	"github.com/orbitalpay/scheduler/internal/tracker"
)

// Metrics is the narrow subset of counters Dispatch needs; satisfied by
// internal/metrics.Metrics so this package stays decoupled from Prometheus.
type Metrics interface {
	TaskFinished()
	TaskRetried()
	TaskFailedTerminal()
	FinalizerForced()
}

// Dispatch runs the three-method WorkflowHandler protocol for a hydrated,
// already-claimed (Processing) task and applies the resulting transition to
// t in place. Callers persist t via Repository.SaveOutcome afterward. This
// is the dispatch stage's business-rule core (§4.2 step 3, §4.5).
func Dispatch(ctx context.Context, registry *Registry, session *tenant.Session, t *tracker.Task, basePolicy retry.Policy, m Metrics) {
	handler, err := registry.Lookup(t.Runner)
	if err != nil {
		// RunnerNotFound: force terminal failure, no retries (§7).
		t.Finish(tracker.BusinessStatusGlobalFailure, "runner_not_found", err)
		m.TaskFailedTerminal()
		return
	}

	outcome, cause := handler.Execute(ctx, session, t)

	if outcome == OutcomeSuccess {
		if err := handler.OnSuccess(ctx, session, t); err != nil {
			forceFailure(t, "on_success_failed", err, m)
			return
		}
		if schedule, err := retry.ParseCron(t.Rule); err == nil {
			rescheduleRecurring(t, schedule)
			m.TaskFinished()
			return
		}
		t.Finish(tracker.BusinessStatusGlobalSuccess, "handler_success", nil)
		m.TaskFinished()
		return
	}

	if err := handler.OnError(ctx, session, t, cause); err != nil {
		// Open Question (§9): on_error failure always forces GLOBAL_FAILURE,
		// without distinguishing transient from permanent causes. Preserved
		// as-is; forceFailure increments the finalizer metric so operators
		// can detect the case.
		forceFailure(t, "on_error_failed", err, m)
		return
	}

	switch outcome {
	case OutcomeRetryable:
		policy := retry.ParseRule(t.Rule, basePolicy)
		if policy.Exhausted(t.RetryCount) {
			t.Finish(tracker.BusinessStatusGlobalFailure, "max_retries_exceeded", cause)
			m.TaskFailedTerminal()
			return
		}
		from := t.Status
		t.RetryCount++
		next := time.Now().Add(policy.NextDelay(t.RetryCount))
		t.ScheduleTime = &next
		t.Status = tracker.StatusPending
		t.AppendEvent(from, tracker.StatusPending, "handler_retryable", cause)
		m.TaskRetried()
	case OutcomeReview:
		from := t.Status
		t.Status = tracker.StatusReview
		t.AppendEvent(from, tracker.StatusReview, "handler_review", cause)
	default: // OutcomeFatal
		t.Finish(tracker.BusinessStatusGlobalFailure, "handler_fatal", cause)
		m.TaskFailedTerminal()
	}
}

func forceFailure(t *tracker.Task, trigger string, cause error, m Metrics) {
	t.Finish(tracker.BusinessStatusGlobalFailure, trigger, cause)
	m.TaskFailedTerminal()
	m.FinalizerForced()
}

// rescheduleRecurring sends a cron-ruled task back to Pending for its next
// occurrence instead of finishing it, so a successful run of a recurring
// task (e.g. a nightly reconciliation job) keeps firing on schedule.
func rescheduleRecurring(t *tracker.Task, schedule retry.CronSchedule) {
	from := t.Status
	next := schedule.NextRun(time.Now())
	t.ScheduleTime = &next
	t.Status = tracker.StatusPending
	t.AppendEvent(from, tracker.StatusPending, "recurring_reschedule", nil)
}
