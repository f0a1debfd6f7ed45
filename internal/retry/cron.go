package retry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed five-field cron expression, adapted from the
// teacher's CronTask for the scheduler's own use: a task's `rule` can name
// a recurring cadence instead of a retry policy (§3's "cron-like or once"),
// in which case a successful run is rescheduled rather than finished.
type CronSchedule struct {
	minute     []int
	hour       []int
	dayOfMonth []int
	month      []int
	dayOfWeek  []int
}

// ParseCron parses a standard 5-field cron expression (minute hour
// day-of-month month day-of-week). It returns an error for anything else,
// including the "once" and "retry:..." rule forms ParseRule understands.
func ParseCron(schedule string) (CronSchedule, error) {
	parts := strings.Fields(schedule)
	if len(parts) != 5 {
		return CronSchedule{}, fmt.Errorf("invalid cron: expected 5 fields, got %d", len(parts))
	}

	minute, err := parseCronField(parts[0], 0, 59)
	if err != nil {
		return CronSchedule{}, err
	}
	hour, err := parseCronField(parts[1], 0, 23)
	if err != nil {
		return CronSchedule{}, err
	}
	dayOfMonth, err := parseCronField(parts[2], 1, 31)
	if err != nil {
		return CronSchedule{}, err
	}
	month, err := parseCronField(parts[3], 1, 12)
	if err != nil {
		return CronSchedule{}, err
	}
	dayOfWeek, err := parseCronField(parts[4], 0, 6)
	if err != nil {
		return CronSchedule{}, err
	}

	return CronSchedule{minute: minute, hour: hour, dayOfMonth: dayOfMonth, month: month, dayOfWeek: dayOfWeek}, nil
}

// IsCron reports whether rule parses as a cron expression, the discriminator
// Dispatch uses to pick the recurring-reschedule path over Finish.
func IsCron(rule string) bool {
	_, err := ParseCron(rule)
	return err == nil
}

func parseCronField(field string, min, max int) ([]int, error) {
	values := make(map[int]bool)

	for _, part := range strings.Split(field, ",") {
		switch {
		case part == "*":
			for i := min; i <= max; i++ {
				values[i] = true
			}
		case strings.Contains(part, "/"):
			split := strings.Split(part, "/")
			step, err := strconv.Atoi(split[1])
			if err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step: %s", part)
			}
			start, end := min, max
			if split[0] != "*" {
				if strings.Contains(split[0], "-") {
					rangeParts := strings.Split(split[0], "-")
					start, _ = strconv.Atoi(rangeParts[0])
					end, _ = strconv.Atoi(rangeParts[1])
				} else {
					start, _ = strconv.Atoi(split[0])
				}
			}
			for i := start; i <= end; i += step {
				values[i] = true
			}
		case strings.Contains(part, "-"):
			rangeParts := strings.Split(part, "-")
			start, _ := strconv.Atoi(rangeParts[0])
			end, _ := strconv.Atoi(rangeParts[1])
			for i := start; i <= end; i++ {
				values[i] = true
			}
		default:
			val, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value: %s", part)
			}
			values[val] = true
		}
	}

	result := make([]int, 0, len(values))
	for v := range values {
		if v < min || v > max {
			return nil, fmt.Errorf("value %d out of range [%d-%d]", v, min, max)
		}
		result = append(result, v)
	}
	return result, nil
}

// NextRun returns the first minute strictly after `after` that matches the
// schedule, scanning at most one year ahead.
func (c CronSchedule) NextRun(after time.Time) time.Time {
	next := after.Truncate(time.Minute).Add(time.Minute)

	for i := 0; i < 525600; i++ {
		if c.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (c CronSchedule) matches(t time.Time) bool {
	return cronContains(c.minute, t.Minute()) &&
		cronContains(c.hour, t.Hour()) &&
		cronContains(c.dayOfMonth, t.Day()) &&
		cronContains(c.month, int(t.Month())) &&
		cronContains(c.dayOfWeek, int(t.Weekday()))
}

func cronContains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
