package tracker

import (
	"context"
	"time"
)

// Repository is the primary-store contract for task rows. All "move this
// task forward" operations are implemented as conditional UPDATEs
// (compare-and-set on status), never select-then-write, so that concurrent
// producers/consumers cannot double-claim a row (invariant I2).
type Repository interface {
	// CreateTask inserts a new row, typically in StatusNew or StatusPending.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask fetches a task by id. Returns errkind.ErrTaskNotFound if absent.
	GetTask(ctx context.Context, id string) (*Task, error)

	// SelectEligible returns up to limit Pending tasks whose schedule_time
	// falls in [now-lower, now+upper], ordered by schedule_time ascending.
	SelectEligible(ctx context.Context, now time.Time, lower, upper time.Duration, limit int) ([]*Task, error)

	// ClaimForProducer conditionally updates status Pending->ProcessStarted
	// for the given ids, returning only the ids that were actually claimed
	// (still Pending at update time). This is the producer's claim primitive.
	ClaimForProducer(ctx context.Context, ids []string) ([]string, error)

	// RevertClaim reverts a failed-to-enqueue claim back to Pending.
	RevertClaim(ctx context.Context, ids []string) error

	// ClaimForConsumer conditionally updates status ProcessStarted->Processing
	// for a single task id. ok is false if the row was no longer ProcessStarted.
	ClaimForConsumer(ctx context.Context, id string) (ok bool, err error)

	// SaveOutcome persists the task's new status/business_status/retry_count/
	// schedule_time/tracking_data/event trail after a handler invocation.
	SaveOutcome(ctx context.Context, t *Task) error

	// RescheduleOrphans resets ProcessStarted rows older than ttl back to
	// Pending (the rescheduler sweep), returning the count recovered.
	RescheduleOrphans(ctx context.Context, ttl time.Duration) (int, error)
}
