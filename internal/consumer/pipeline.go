package consumer

import (
	"context"
	"errors"

	"github.com/orbitalpay/scheduler/internal/errkind"
	"github.com/orbitalpay/scheduler/internal/tenant"
	"github.com/orbitalpay/scheduler/internal/tracker"
	"github.com/orbitalpay/scheduler/internal/workflow"
)

// hydrate fetches the task referenced by a stream entry. drop is true when
// the entry should be acknowledged and discarded without dispatching:
// either the task no longer exists, or it already reached Finish (§4.2
// step 1).
func (c *Consumer) hydrate(ctx context.Context, taskID string, session *tenant.Session) (t *tracker.Task, drop bool, err error) {
	t, err = session.Repo.GetTask(ctx, taskID)
	if errors.Is(err, errkind.ErrTaskNotFound) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if t.Status == tracker.StatusFinish {
		return nil, true, nil
	}
	return t, false, nil
}

// transition atomically moves the task ProcessStarted -> Processing. claimed
// is false when another consumer already won the claim (§4.2 step 2), in
// which case the entry should be dropped and acknowledged. The claim itself
// is not recorded as its own audit-trail event — like ClaimForProducer's
// Pending->ProcessStarted move, it is a store-level compare-and-set with no
// event of its own; workflow.Dispatch appends the one event per delivery,
// recording the net transition out of Processing.
func (c *Consumer) transition(ctx context.Context, t *tracker.Task, session *tenant.Session) (claimed bool, err error) {
	ok, err := session.Repo.ClaimForConsumer(ctx, t.ID)
	if err != nil || !ok {
		return false, err
	}
	t.Status = tracker.StatusProcessing
	return true, nil
}

// dispatch runs the workflow handler protocol and persists the outcome.
func (c *Consumer) dispatch(ctx context.Context, t *tracker.Task, session *tenant.Session) error {
	workflow.Dispatch(ctx, c.registry, session, t, c.basePolicy, c.metrics)
	return session.Repo.SaveOutcome(ctx, t)
}
