package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orbitalpay/scheduler/internal/errkind"
	"github.com/orbitalpay/scheduler/internal/tracker"
)

// Repository implements tracker.Repository over a *gorm.DB.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ tracker.Repository = (*Repository)(nil)

// DB exposes the underlying connection for callers outside the tracker
// abstraction, such as the drainer's Applier, which mutates arbitrary
// tables rather than just scheduler_tasks.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) CreateTask(ctx context.Context, t *tracker.Task) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return r.db.WithContext(ctx).Create(toModel(t)).Error
}

func (r *Repository) GetTask(ctx context.Context, id string) (*tracker.Task, error) {
	var m TaskModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errkind.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromModel(&m), nil
}

func (r *Repository) SelectEligible(ctx context.Context, now time.Time, lower, upper time.Duration, limit int) ([]*tracker.Task, error) {
	from := now.Add(-lower)
	to := now.Add(upper)

	var models []TaskModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(tracker.StatusPending)).
		Where("schedule_time IS NOT NULL AND schedule_time BETWEEN ? AND ?", from, to).
		Order("schedule_time ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tasks := make([]*tracker.Task, 0, len(models))
	for i := range models {
		tasks = append(tasks, fromModel(&models[i]))
	}
	return tasks, nil
}

// ClaimForProducer moves each id from Pending to ProcessStarted one at a
// time, keeping only the ids whose conditional UPDATE actually affected a
// row. This is the compare-and-set claim primitive of SPEC_FULL.md §4.1;
// it must never be emulated with a non-atomic select-then-update.
func (r *Repository) ClaimForProducer(ctx context.Context, ids []string) ([]string, error) {
	claimed := make([]string, 0, len(ids))
	now := time.Now()

	for _, id := range ids {
		res := r.db.WithContext(ctx).Model(&TaskModel{}).
			Where("id = ? AND status = ?", id, string(tracker.StatusPending)).
			Updates(map[string]interface{}{
				"status":     string(tracker.StatusProcessStarted),
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (r *Repository) RevertClaim(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id IN ? AND status = ?", ids, string(tracker.StatusProcessStarted)).
		Updates(map[string]interface{}{
			"status":     string(tracker.StatusPending),
			"updated_at": time.Now(),
		}).Error
}

func (r *Repository) ClaimForConsumer(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ? AND status = ?", id, string(tracker.StatusProcessStarted)).
		Updates(map[string]interface{}{
			"status":     string(tracker.StatusProcessing),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) SaveOutcome(ctx context.Context, t *tracker.Task) error {
	t.UpdatedAt = time.Now()
	m := toModel(t)
	return r.db.WithContext(ctx).Model(&TaskModel{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"status":          m.Status,
		"business_status": m.BusinessStatus,
		"retry_count":     m.RetryCount,
		"schedule_time":   m.ScheduleTime,
		"tracking_data":   m.TrackingData,
		"event":           m.Event,
		"updated_at":      m.UpdatedAt,
	}).Error
}

// RescheduleOrphans resets stale ProcessStarted rows back to Pending one at
// a time, each as a conditional UPDATE guarded on still being ProcessStarted
// (the same compare-and-set discipline as ClaimForProducer/ClaimForConsumer)
// so a row the producer or a consumer claimed in the meantime is left alone.
// Each recovered row gets a rescheduler_recovered event appended to its
// trail, keeping the audit trail a continuous walk (Testable Property #1)
// instead of a silent status flip.
func (r *Repository) RescheduleOrphans(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	var models []TaskModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(tracker.StatusProcessStarted), cutoff).
		Find(&models).Error
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range models {
		t := fromModel(&models[i])
		from := t.Status
		t.Status = tracker.StatusPending
		t.UpdatedAt = time.Now()
		t.AppendEvent(from, tracker.StatusPending, "rescheduler_recovered", nil)
		m := toModel(t)

		res := r.db.WithContext(ctx).Model(&TaskModel{}).
			Where("id = ? AND status = ?", t.ID, string(tracker.StatusProcessStarted)).
			Updates(map[string]interface{}{
				"status":     m.Status,
				"event":      m.Event,
				"updated_at": m.UpdatedAt,
			})
		if res.Error != nil {
			return recovered, res.Error
		}
		if res.RowsAffected == 1 {
			recovered++
		}
	}
	return recovered, nil
}
