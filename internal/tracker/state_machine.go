package tracker

import "fmt"

// transitions enumerates the valid (from, to) edges of SPEC_FULL.md §4.3.
// Review is a sideline reachable only from Processing; New is the entry
// point and Finish is terminal.
var transitions = map[Status]map[Status]bool{
	StatusNew: {
		StatusPending: true,
	},
	StatusPending: {
		StatusProcessStarted: true,
	},
	StatusProcessStarted: {
		StatusProcessing: true,
		StatusPending:    true, // rescheduler TTL recovery
	},
	StatusProcessing: {
		StatusFinish:  true,
		StatusPending: true, // retryable failure
		StatusReview:  true, // handler requests review
	},
}

// ValidTransition reports whether from -> to is a legal edge in the
// process-tracker state machine.
func ValidTransition(from, to Status) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ErrInvalidTransition is returned by Advance when the requested move is not
// a legal edge of the state machine.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Advance validates and applies a transition in-memory, appending an event.
// Callers performing a claim (Pending->ProcessStarted, ProcessStarted->Processing)
// still must perform the actual move as a conditional UPDATE against the
// primary store — Advance only governs the in-memory representation after
// the store has confirmed the row was claimed.
func Advance(t *Task, to Status, trigger string, cause error) error {
	if t.Status == StatusFinish {
		return &ErrInvalidTransition{From: t.Status, To: to}
	}
	if !ValidTransition(t.Status, to) {
		return &ErrInvalidTransition{From: t.Status, To: to}
	}
	from := t.Status
	t.Status = to
	t.AppendEvent(from, to, trigger, cause)
	return nil
}

// ValidEventPath reports whether a recorded Events sequence is a valid walk
// through the state machine graph, starting from the first event's From
// status (which need not be New) and with each event starting where the
// previous one ended. Used by tests to verify Testable Property #1.
func ValidEventPath(events Events) bool {
	if len(events) == 0 {
		return true
	}
	cur := events[0].From
	for _, e := range events {
		if e.From != cur {
			return false
		}
		if e.From == StatusFinish {
			return false // Finish is terminal, no edges leave it
		}
		if !ValidTransition(e.From, e.To) {
			return false
		}
		cur = e.To
	}
	return true
}
