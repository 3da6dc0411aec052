package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metronome/errors"
)

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{"once", OnceSchedule(), false},
		{"interval milliseconds", IntervalSchedule(250, UnitMilliseconds), false},
		{"interval seconds", IntervalSchedule(30, UnitSeconds), false},
		{"interval minutes", IntervalSchedule(5, UnitMinutes), false},
		{"interval hours", IntervalSchedule(6, UnitHours), false},
		{"interval days", IntervalSchedule(1, UnitDays), false},
		{"zero amount", IntervalSchedule(0, UnitSeconds), true},
		{"negative amount", IntervalSchedule(-5, UnitMinutes), true},
		{"unknown unit", IntervalSchedule(3, "fortnights"), true},
		{"missing unit", IntervalSchedule(3, ""), true},
		{"missing type", Schedule{}, true},
		{"unknown type", Schedule{Type: "cron"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfigurationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleInterval(t *testing.T) {
	d, err := IntervalSchedule(90, UnitSeconds).Interval()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = IntervalSchedule(2, UnitDays).Interval()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	_, err = OnceSchedule().Interval()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestScheduleNextTime(t *testing.T) {
	previous := time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)

	next := IntervalSchedule(5, UnitMinutes).NextTime(previous)
	require.NotNil(t, next)
	assert.Equal(t, previous.Add(5*time.Minute), *next)

	// Once schedules have no next execution.
	assert.Nil(t, OnceSchedule().NextTime(previous))
}

// The next execution time advances from the previous one, never from "now",
// so slow executions cannot shift the cadence.
func TestScheduleNextTimeIsDriftFree(t *testing.T) {
	schedule := IntervalSchedule(1, UnitHours)
	start := time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)

	current := start
	for i := 1; i <= 24; i++ {
		next := schedule.NextTime(current)
		require.NotNil(t, next)
		assert.Equal(t, start.Add(time.Duration(i)*time.Hour), *next)
		current = *next
	}
}

func TestParseScheduleRoundTrip(t *testing.T) {
	original := IntervalSchedule(30, UnitSeconds)

	encoded, err := original.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"interval","amount":30,"unit":"seconds"}`, encoded)

	parsed, err := ParseSchedule(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	onceEncoded, err := OnceSchedule().Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"once"}`, onceEncoded)
}

func TestParseScheduleRejectsBadInput(t *testing.T) {
	_, err := ParseSchedule(`{not json`)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = ParseSchedule(`{"type":"interval","amount":0,"unit":"seconds"}`)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = ParseSchedule(`{"type":"interval","amount":5,"unit":"lightyears"}`)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestEncodeRejectsInvalidSchedule(t *testing.T) {
	_, err := Schedule{Type: "cron"}.Encode()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestScheduleString(t *testing.T) {
	assert.Equal(t, "once", OnceSchedule().String())
	assert.Equal(t, "every 1m30s", IntervalSchedule(90, UnitSeconds).String())
	assert.Equal(t, "every 24h0m0s", IntervalSchedule(1, UnitDays).String())
	assert.Equal(t, "interval(invalid)", Schedule{Type: ScheduleTypeInterval, Amount: 1, Unit: "x"}.String())
	assert.Equal(t, "invalid", Schedule{Type: "cron"}.String())
}
