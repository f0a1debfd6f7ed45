// Package postgres is the primary-store adapter: a GORM repository backed
// by PostgreSQL in production and SQLite in tests, following the dialector
// switch used throughout the donor example's database/connection.go.
package postgres

import (
	"time"

	"github.com/orbitalpay/scheduler/internal/tracker"
)

// TaskModel is the GORM row mapping for tracker.Task. event and tag are
// JSON-encoded by GORM's built-in json serializer (tag because SQLite, used
// in tests, has no native array type); tracking_data is stored as raw bytes.
type TaskModel struct {
	ID             string                `gorm:"primaryKey"`
	Name           string                `gorm:"index"`
	Tag            []string              `gorm:"serializer:json"`
	Runner         string                `gorm:"index"`
	RetryCount     int
	ScheduleTime   *time.Time            `gorm:"index:idx_status_schedule"`
	Rule           string
	TrackingData   []byte
	BusinessStatus string
	Status         string                `gorm:"index:idx_status_schedule"`
	Event          []tracker.Event       `gorm:"serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (TaskModel) TableName() string { return "scheduler_tasks" }

func toModel(t *tracker.Task) *TaskModel {
	return &TaskModel{
		ID:             t.ID,
		Name:           t.Name,
		Tag:            t.Tag,
		Runner:         string(t.Runner),
		RetryCount:     t.RetryCount,
		ScheduleTime:   t.ScheduleTime,
		Rule:           t.Rule,
		TrackingData:   []byte(t.TrackingData),
		BusinessStatus: string(t.BusinessStatus),
		Status:         string(t.Status),
		Event:          []tracker.Event(t.Event),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func fromModel(m *TaskModel) *tracker.Task {
	return &tracker.Task{
		ID:             m.ID,
		Name:           m.Name,
		Tag:            m.Tag,
		Runner:         tracker.Runner(m.Runner),
		RetryCount:     m.RetryCount,
		ScheduleTime:   m.ScheduleTime,
		Rule:           m.Rule,
		TrackingData:   m.TrackingData,
		BusinessStatus: tracker.BusinessStatus(m.BusinessStatus),
		Status:         tracker.Status(m.Status),
		Event:          tracker.Events(m.Event),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
