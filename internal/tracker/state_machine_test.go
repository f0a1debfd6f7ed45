package tracker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalpay/scheduler/internal/tracker"
)

func TestValidTransition_FollowsSpecTable(t *testing.T) {
	cases := []struct {
		from, to tracker.Status
		want     bool
	}{
		{tracker.StatusNew, tracker.StatusPending, true},
		{tracker.StatusPending, tracker.StatusProcessStarted, true},
		{tracker.StatusProcessStarted, tracker.StatusProcessing, true},
		{tracker.StatusProcessStarted, tracker.StatusPending, true}, // rescheduler revert
		{tracker.StatusProcessing, tracker.StatusFinish, true},
		{tracker.StatusProcessing, tracker.StatusPending, true}, // retry
		{tracker.StatusProcessing, tracker.StatusReview, true},
		{tracker.StatusFinish, tracker.StatusPending, false}, // terminal
		{tracker.StatusNew, tracker.StatusProcessing, false}, // skips intermediate states
		{tracker.StatusReview, tracker.StatusFinish, false},  // Review is a sideline with no defined outgoing edge
	}
	for _, c := range cases {
		assert.Equal(t, c.want, tracker.ValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestAdvance_AppendsEventOnSuccess(t *testing.T) {
	task := &tracker.Task{ID: "t1", Status: tracker.StatusNew}
	require.NoError(t, tracker.Advance(task, tracker.StatusPending, "seed", nil))
	assert.Equal(t, tracker.StatusPending, task.Status)
	require.Len(t, task.Event, 1)
	assert.Equal(t, tracker.StatusNew, task.Event[0].From)
	assert.Equal(t, tracker.StatusPending, task.Event[0].To)
}

func TestAdvance_RejectsInvalidTransition(t *testing.T) {
	task := &tracker.Task{ID: "t1", Status: tracker.StatusFinish}
	err := tracker.Advance(task, tracker.StatusPending, "retry", nil)
	assert.Error(t, err)
	assert.Equal(t, tracker.StatusFinish, task.Status, "rejected transition must not mutate state")
}

func TestValidEventPath_DetectsDiscontinuity(t *testing.T) {
	task := &tracker.Task{ID: "t1", Status: tracker.StatusNew}
	require.NoError(t, tracker.Advance(task, tracker.StatusPending, "seed", nil))
	require.NoError(t, tracker.Advance(task, tracker.StatusProcessStarted, "claim", nil))
	require.NoError(t, tracker.Advance(task, tracker.StatusProcessing, "consumer_claim", nil))
	require.NoError(t, tracker.Advance(task, tracker.StatusFinish, "handler_success", nil))

	assert.True(t, tracker.ValidEventPath(task.Event))

	bogus := tracker.Events{{From: tracker.StatusNew, To: tracker.StatusProcessing}}
	assert.False(t, tracker.ValidEventPath(bogus))
}
