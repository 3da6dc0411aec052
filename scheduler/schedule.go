// Package scheduler provides cluster-wide scheduling of recurring jobs.
//
// Work is described by persisted job definitions and scheduled by persisted
// job triggers. Any node may claim a due trigger; a lease (lock owner plus
// expiry) on the trigger row guarantees at most one live executor per
// trigger. All mutual exclusion is a conditional UPDATE on the shared
// database checked through RowsAffected, so nodes need nothing but the
// database to cooperate.
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/teranos/metronome/errors"
)

// Schedule kinds.
const (
	ScheduleTypeOnce     = "once"
	ScheduleTypeInterval = "interval"
)

// Interval units accepted by interval schedules.
const (
	UnitMilliseconds = "milliseconds"
	UnitSeconds      = "seconds"
	UnitMinutes      = "minutes"
	UnitHours        = "hours"
	UnitDays         = "days"
)

var unitDurations = map[string]time.Duration{
	UnitMilliseconds: time.Millisecond,
	UnitSeconds:      time.Second,
	UnitMinutes:      time.Minute,
	UnitHours:        time.Hour,
	UnitDays:         24 * time.Hour,
}

// Schedule describes when a trigger fires.
//
// It is a closed tagged variant serialized as JSON on the trigger row:
//
//	{"type":"once"}
//	{"type":"interval","amount":5,"unit":"seconds"}
//
// A once schedule never yields a next execution time; an interval schedule
// advances from the trigger's previous nextTime, never from "now", so engine
// latency cannot shift the cadence.
type Schedule struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
}

// OnceSchedule returns a schedule that fires a single time.
func OnceSchedule() Schedule {
	return Schedule{Type: ScheduleTypeOnce}
}

// IntervalSchedule returns a schedule that fires every amount×unit.
func IntervalSchedule(amount int64, unit string) Schedule {
	return Schedule{Type: ScheduleTypeInterval, Amount: amount, Unit: unit}
}

// Validate checks the schedule for configuration errors.
// Unknown type, unknown unit, or amount < 1 are all rejected.
func (s Schedule) Validate() error {
	switch s.Type {
	case ScheduleTypeOnce:
		return nil
	case ScheduleTypeInterval:
		if s.Amount < 1 {
			return errors.NewConfigurationError("interval schedule amount must be >= 1, got %d", s.Amount)
		}
		if _, ok := unitDurations[s.Unit]; !ok {
			return errors.NewConfigurationError("unknown interval unit %q", s.Unit)
		}
		return nil
	case "":
		return errors.NewConfigurationError("schedule type is required")
	default:
		return errors.NewConfigurationError("unknown schedule type %q", s.Type)
	}
}

// Interval returns the duration between executions for interval schedules.
func (s Schedule) Interval() (time.Duration, error) {
	if s.Type != ScheduleTypeInterval {
		return 0, errors.NewConfigurationError("schedule type %q has no interval", s.Type)
	}
	unit, ok := unitDurations[s.Unit]
	if !ok {
		return 0, errors.NewConfigurationError("unknown interval unit %q", s.Unit)
	}
	return time.Duration(s.Amount) * unit, nil
}

// NextTime computes the execution time that follows previous.
// Returns nil for once schedules: the trigger completes after its single run.
func (s Schedule) NextTime(previous time.Time) *time.Time {
	if s.Type != ScheduleTypeInterval {
		return nil
	}
	unit, ok := unitDurations[s.Unit]
	if !ok {
		return nil
	}
	next := previous.Add(time.Duration(s.Amount) * unit)
	return &next
}

// ParseSchedule decodes and validates a schedule from its JSON form.
func ParseSchedule(raw string) (Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Schedule{}, errors.Wrap(errors.ErrConfiguration, errors.Wrap(err, "malformed schedule JSON").Error())
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Encode serializes the schedule to its JSON form.
func (s Schedule) Encode() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode schedule")
	}
	return string(raw), nil
}

// String returns a compact human-readable form for logs and CLI output.
func (s Schedule) String() string {
	switch s.Type {
	case ScheduleTypeOnce:
		return "once"
	case ScheduleTypeInterval:
		d, err := s.Interval()
		if err != nil {
			return "interval(invalid)"
		}
		return "every " + d.String()
	default:
		return "invalid"
	}
}
