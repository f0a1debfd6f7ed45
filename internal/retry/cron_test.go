package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalpay/scheduler/internal/retry"
)

func TestParseCron_EveryMinute(t *testing.T) {
	schedule, err := retry.ParseCron("* * * * *")
	require.NoError(t, err)

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	next := schedule.NextRun(now)
	assert.Equal(t, 1, next.Minute())
}

func TestParseCron_DailyMidnight(t *testing.T) {
	schedule, err := retry.ParseCron("0 0 * * *")
	require.NoError(t, err)

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	next := schedule.NextRun(now)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 11, next.Day())
}

func TestParseCron_BusinessHoursWeekdayRange(t *testing.T) {
	schedule, err := retry.ParseCron("0 9-17 * * 1-5")
	require.NoError(t, err)

	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC) // Wednesday 8am
	next := schedule.NextRun(now)
	assert.GreaterOrEqual(t, next.Hour(), 9)
	assert.LessOrEqual(t, next.Hour(), 17)
	assert.GreaterOrEqual(t, int(next.Weekday()), 1)
	assert.LessOrEqual(t, int(next.Weekday()), 5)
}

func TestParseCron_YearBoundary(t *testing.T) {
	schedule, err := retry.ParseCron("0 0 1 1 *")
	require.NoError(t, err)

	now := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	next := schedule.NextRun(now)
	assert.Equal(t, 2025, next.Year())
	assert.Equal(t, time.January, next.Month())
	assert.Equal(t, 1, next.Day())
}

func TestParseCron_RejectsMalformedSchedules(t *testing.T) {
	cases := []string{
		"invalid",
		"* * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"abc * * * *",
	}
	for _, schedule := range cases {
		_, err := retry.ParseCron(schedule)
		assert.Error(t, err, "schedule %q should be rejected", schedule)
	}
}

func TestIsCron_DistinguishesFromRetryRuleForms(t *testing.T) {
	assert.True(t, retry.IsCron("0 */5 * * *"))
	assert.False(t, retry.IsCron("once"))
	assert.False(t, retry.IsCron("retry:fixed:5:60:2"))
	assert.False(t, retry.IsCron(""))
}
