package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalpay/scheduler/internal/retry"
	"github.com/orbitalpay/scheduler/internal/tenant"
	"github.com/orbitalpay/scheduler/internal/tracker"
	"github.com/orbitalpay/scheduler/internal/workflow"
)

type stubHandler struct {
	outcome      workflow.Outcome
	executeErr   error
	onSuccessErr error
	onErrorErr   error
	onErrorCalls int
}

func (s *stubHandler) Execute(ctx context.Context, session *tenant.Session, task *tracker.Task) (workflow.Outcome, error) {
	return s.outcome, s.executeErr
}

func (s *stubHandler) OnSuccess(ctx context.Context, session *tenant.Session, task *tracker.Task) error {
	return s.onSuccessErr
}

func (s *stubHandler) OnError(ctx context.Context, session *tenant.Session, task *tracker.Task, cause error) error {
	s.onErrorCalls++
	return s.onErrorErr
}

type countingMetrics struct {
	finished, retried, failedTerminal, finalizerForced int
}

func (m *countingMetrics) TaskFinished()       { m.finished++ }
func (m *countingMetrics) TaskRetried()        { m.retried++ }
func (m *countingMetrics) TaskFailedTerminal() { m.failedTerminal++ }
func (m *countingMetrics) FinalizerForced()    { m.finalizerForced++ }

func newTask(runner tracker.Runner) *tracker.Task {
	return &tracker.Task{ID: "t1", Runner: runner, Status: tracker.StatusProcessing}
}

func TestDispatch_UnknownRunnerForcesTerminalFailure(t *testing.T) {
	registry := workflow.NewRegistry()
	m := &countingMetrics{}
	task := newTask("does_not_exist")

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusFinish, task.Status)
	assert.Equal(t, tracker.BusinessStatusGlobalFailure, task.BusinessStatus)
	assert.Equal(t, 1, m.failedTerminal)
	assert.Equal(t, 0, m.finalizerForced, "runner_not_found is not a finalizer failure")
}

func TestDispatch_SuccessRunsOnSuccessAndFinishes(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeSuccess}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusFinish, task.Status)
	assert.Equal(t, tracker.BusinessStatusGlobalSuccess, task.BusinessStatus)
	assert.Equal(t, 1, m.finished)
}

func TestDispatch_OnSuccessFailureForcesFailure(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeSuccess, onSuccessErr: errors.New("webhook send failed")}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.BusinessStatusGlobalFailure, task.BusinessStatus)
	assert.Equal(t, 1, m.failedTerminal)
	assert.Equal(t, 1, m.finalizerForced)
}

func TestDispatch_RetryableReschedulesWithIncrementedCount(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeRetryable, executeErr: errors.New("timeout")}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")
	task.RetryCount = 0

	before := time.Now()
	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Equal(t, 1, m.retried)
	require.NotNil(t, task.ScheduleTime)
	assert.True(t, task.ScheduleTime.After(before))
}

func TestDispatch_RetryableExhaustedForcesTerminalFailure(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeRetryable, executeErr: errors.New("still failing")}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")
	task.RetryCount = retry.DefaultPolicy.MaxRetries

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusFinish, task.Status)
	assert.Equal(t, tracker.BusinessStatusGlobalFailure, task.BusinessStatus)
	assert.Equal(t, 1, m.failedTerminal)
}

func TestDispatch_ReviewMovesToReviewStatus(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeReview, executeErr: errors.New("needs human eyes")}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusReview, task.Status)
	assert.Equal(t, 0, m.failedTerminal)
}

func TestDispatch_FatalForcesTerminalFailure(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeFatal, executeErr: errors.New("unrecoverable")}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusFinish, task.Status)
	assert.Equal(t, tracker.BusinessStatusGlobalFailure, task.BusinessStatus)
	assert.Equal(t, 1, m.failedTerminal)
}

func TestDispatch_CronRuleReschedulesInsteadOfFinishing(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeSuccess}
	registry.Register("nightly_reconcile", h)
	m := &countingMetrics{}
	task := newTask("nightly_reconcile")
	task.Rule = "0 2 * * *"

	before := time.Now()
	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, tracker.StatusPending, task.Status, "a recurring task must not be finished")
	assert.Equal(t, tracker.BusinessStatusNone, task.BusinessStatus)
	require.NotNil(t, task.ScheduleTime)
	assert.True(t, task.ScheduleTime.After(before))
	assert.Equal(t, 1, m.finished, "recurring success still counts as a finished run")
}

// TestDispatch_OnErrorFailureAlwaysForcesFailure documents the Open Question
// decision: on_error itself failing is not distinguished from a transient
// vs. permanent cause, it always forces GLOBAL_FAILURE and bumps the
// finalizer-forced counter so operators can find these in metrics.
func TestDispatch_OnErrorFailureAlwaysForcesFailure(t *testing.T) {
	registry := workflow.NewRegistry()
	h := &stubHandler{outcome: workflow.OutcomeRetryable, executeErr: errors.New("timeout"), onErrorErr: errors.New("db unreachable")}
	registry.Register("charge_capture", h)
	m := &countingMetrics{}
	task := newTask("charge_capture")

	workflow.Dispatch(context.Background(), registry, &tenant.Session{}, task, retry.DefaultPolicy, m)

	assert.Equal(t, 1, h.onErrorCalls)
	assert.Equal(t, tracker.BusinessStatusGlobalFailure, task.BusinessStatus)
	assert.Equal(t, 1, m.failedTerminal)
	assert.Equal(t, 1, m.finalizerForced)
	assert.Equal(t, 0, m.retried, "on_error failure preempts the retryable path entirely")
}
