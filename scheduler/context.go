package scheduler

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// ExecutionContext carries everything a job needs while executing one claim:
// the claimed trigger, its definition, an UpdateFactory bound to the
// trigger's schedule, and a liveness flag tied to the lease.
type ExecutionContext struct {
	Trigger    *JobTrigger
	Definition *JobDefinition
	Updates    *UpdateFactory

	running atomic.Bool

	mu        sync.Mutex
	rangeFrom *time.Time
	rangeTo   *time.Time
}

// NewExecutionContext builds the context for one execution of trigger.
func NewExecutionContext(trigger *JobTrigger, def *JobDefinition) *ExecutionContext {
	execCtx := &ExecutionContext{
		Trigger:    trigger,
		Definition: def,
		Updates:    &UpdateFactory{trigger: trigger},
	}
	execCtx.running.Store(true)
	return execCtx
}

// IsRunning reports whether this node still holds the trigger's lease.
// Long-running jobs should poll this and stop when it flips false; the
// orphaned run's update would be discarded anyway.
func (ec *ExecutionContext) IsRunning() bool {
	return ec.running.Load()
}

// markLeaseLost flips the liveness flag. Called by the heartbeat when
// renewal fails with ErrLeaseLost.
func (ec *ExecutionContext) markLeaseLost() {
	ec.running.Store(false)
}

// ReportRange records the time range this execution worked on, for the
// audit trail. Jobs without a range never call it.
func (ec *ExecutionContext) ReportRange(from, to time.Time) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	from = from.UTC()
	to = to.UTC()
	ec.rangeFrom = &from
	ec.rangeTo = &to
}

// reportedRange returns the range recorded by ReportRange, if any.
func (ec *ExecutionContext) reportedRange() (from, to *time.Time) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.rangeFrom, ec.rangeTo
}

// UpdateFactory derives trigger updates from the claimed trigger's own
// schedule so jobs never compute nextTime themselves.
type UpdateFactory struct {
	trigger *JobTrigger
}

// ScheduleNext returns the normal-completion update: nextTime advances from
// the trigger's previous nextTime per its schedule, and data rides along.
// Once schedules yield no nextTime, so the update resolves to complete.
func (f *UpdateFactory) ScheduleNext(data json.RawMessage) TriggerUpdate {
	previous := f.trigger.StartTime
	if f.trigger.NextTime != nil {
		previous = *f.trigger.NextTime
	}
	return TriggerUpdate{
		NextTime: f.trigger.Schedule.NextTime(previous),
		Data:     data,
	}
}

// Defer returns an update that only moves the trigger's nextTime. Status
// and data stay untouched, and the execution is audited as deferred.
func (f *UpdateFactory) Defer(nextTime time.Time) TriggerUpdate {
	return TriggerUpdate{NextTime: &nextTime, deferred: true}
}

// Error returns the update that parks the trigger in status error while
// preserving its stored nextTime and data.
func (f *UpdateFactory) Error() TriggerUpdate {
	status := TriggerStatusError
	return TriggerUpdate{Status: &status}
}
