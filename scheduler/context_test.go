package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFactoryScheduleNext(t *testing.T) {
	due := time.Date(2019, time.January, 1, 12, 0, 0, 0, time.UTC)
	trigger := &JobTrigger{
		Schedule:  IntervalSchedule(15, UnitMinutes),
		StartTime: due.Add(-time.Hour),
		NextTime:  &due,
	}

	update := NewExecutionContext(trigger, nil).Updates.ScheduleNext(rawJSON(`{"cursor":1}`))

	// Advances from the previous due time, not from now.
	require.NotNil(t, update.NextTime)
	assert.Equal(t, due.Add(15*time.Minute), *update.NextTime)
	assert.JSONEq(t, `{"cursor":1}`, string(update.Data))
	assert.Nil(t, update.Status)
	assert.Equal(t, TriggerStatusRunnable, update.ResolveStatus())
}

func TestUpdateFactoryScheduleNextFallsBackToStartTime(t *testing.T) {
	start := time.Date(2019, time.January, 1, 12, 0, 0, 0, time.UTC)
	trigger := &JobTrigger{
		Schedule:  IntervalSchedule(1, UnitHours),
		StartTime: start,
	}

	update := NewExecutionContext(trigger, nil).Updates.ScheduleNext(nil)
	require.NotNil(t, update.NextTime)
	assert.Equal(t, start.Add(time.Hour), *update.NextTime)
}

func TestUpdateFactoryScheduleNextCompletesOnce(t *testing.T) {
	due := time.Date(2019, time.January, 1, 12, 0, 0, 0, time.UTC)
	trigger := &JobTrigger{
		Schedule:  OnceSchedule(),
		StartTime: due,
		NextTime:  &due,
	}

	update := NewExecutionContext(trigger, nil).Updates.ScheduleNext(nil)
	assert.Nil(t, update.NextTime)
	assert.Equal(t, TriggerStatusComplete, update.ResolveStatus())
}

func TestUpdateFactoryDefer(t *testing.T) {
	trigger := &JobTrigger{Schedule: IntervalSchedule(1, UnitMinutes)}
	until := time.Date(2019, time.January, 1, 13, 0, 0, 0, time.UTC)

	update := NewExecutionContext(trigger, nil).Updates.Defer(until)
	require.NotNil(t, update.NextTime)
	assert.Equal(t, until, *update.NextTime)
	assert.Nil(t, update.Status)
	assert.Nil(t, update.Data)
	assert.True(t, update.deferred)
}

func TestUpdateFactoryError(t *testing.T) {
	trigger := &JobTrigger{Schedule: IntervalSchedule(1, UnitMinutes)}

	update := NewExecutionContext(trigger, nil).Updates.Error()
	require.NotNil(t, update.Status)
	assert.Equal(t, TriggerStatusError, *update.Status)
	assert.Nil(t, update.NextTime)
	assert.Nil(t, update.Data)
}

func TestExecutionContextLivenessFlag(t *testing.T) {
	execCtx := NewExecutionContext(&JobTrigger{}, nil)

	assert.True(t, execCtx.IsRunning())
	execCtx.markLeaseLost()
	assert.False(t, execCtx.IsRunning())
}

func TestExecutionContextReportRange(t *testing.T) {
	execCtx := NewExecutionContext(&JobTrigger{}, nil)

	from, to := execCtx.reportedRange()
	assert.Nil(t, from)
	assert.Nil(t, to)

	loc := time.FixedZone("CET", 3600)
	execCtx.ReportRange(
		time.Date(2019, time.January, 1, 13, 0, 0, 0, loc),
		time.Date(2019, time.January, 1, 14, 0, 0, 0, loc),
	)

	from, to = execCtx.reportedRange()
	require.NotNil(t, from)
	require.NotNil(t, to)
	// Stored in UTC regardless of the job's zone.
	assert.Equal(t, time.UTC, from.Location())
	assert.Equal(t, time.Date(2019, time.January, 1, 12, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2019, time.January, 1, 13, 0, 0, 0, time.UTC), *to)
}
