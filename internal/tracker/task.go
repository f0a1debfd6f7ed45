// Package tracker implements the process-tracker state machine: the
// persisted Task record, its status transitions, and the audit trail of
// those transitions. It is the authoritative data model described in
// SPEC_FULL.md §3-4.3.
package tracker

import (
	"encoding/json"
	"time"
)

// Status is the task's position in the process-tracker state machine.
type Status string

const (
	StatusNew            Status = "New"
	StatusPending        Status = "Pending"
	StatusProcessStarted Status = "ProcessStarted"
	StatusProcessing     Status = "Processing"
	StatusFinish         Status = "Finish"
	StatusReview         Status = "Review"
)

// BusinessStatus is the orthogonal terminal sub-status stamped at Finish.
type BusinessStatus string

const (
	BusinessStatusNone          BusinessStatus = ""
	BusinessStatusGlobalSuccess BusinessStatus = "GLOBAL_SUCCESS"
	BusinessStatusGlobalFailure BusinessStatus = "GLOBAL_FAILURE"
)

// IsTerminal reports whether a business status belongs to the terminal set
// named in invariant I3.
func (b BusinessStatus) IsTerminal() bool {
	return b == BusinessStatusGlobalSuccess || b == BusinessStatusGlobalFailure
}

// Runner is the enumerated workflow selector that picks a WorkflowHandler
// from the registry (§4.5).
type Runner string

// Event is one entry in a task's append-only audit trail.
type Event struct {
	At       time.Time `json:"at"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Trigger  string    `json:"trigger"`
	Error    string    `json:"error,omitempty"`
}

// Events is a JSON-serializable slice of Event, stored JSON-encoded in the
// event column.
type Events []Event

// Task is the persisted process-tracker record (SPEC_FULL.md §3).
type Task struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Tag            []string        `json:"tag"`
	Runner         Runner          `json:"runner"`
	RetryCount     int             `json:"retry_count"`
	ScheduleTime   *time.Time      `json:"schedule_time"`
	Rule           string          `json:"rule"`
	TrackingData   json.RawMessage `json:"tracking_data"`
	BusinessStatus BusinessStatus  `json:"business_status"`
	Status         Status          `json:"status"`
	Event          Events          `json:"event"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AppendEvent records a transition in the task's audit trail. Callers are
// expected to also update Status/BusinessStatus/UpdatedAt themselves; this
// only maintains the trail (invariant I1 is verified over this slice in tests).
func (t *Task) AppendEvent(from, to Status, trigger string, err error) {
	e := Event{At: time.Now(), From: from, To: to, Trigger: trigger}
	if err != nil {
		e.Error = err.Error()
	}
	t.Event = append(t.Event, e)
}

// Eligible reports whether the task is due: status is Pending and its
// schedule_time has arrived within the producer's lookahead window.
func (t *Task) Eligible(now time.Time, lookahead time.Duration) bool {
	if t.Status != StatusPending {
		return false
	}
	if t.ScheduleTime == nil {
		return false
	}
	return !t.ScheduleTime.After(now.Add(lookahead))
}

// Finish stamps the task as terminal with the given business status, per
// the rule that writing business_status also sets status = Finish (I3).
func (t *Task) Finish(business BusinessStatus, trigger string, cause error) {
	from := t.Status
	t.Status = StatusFinish
	t.BusinessStatus = business
	t.UpdatedAt = time.Now()
	t.AppendEvent(from, StatusFinish, trigger, cause)
}
