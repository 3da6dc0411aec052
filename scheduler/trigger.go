package scheduler

import (
	"encoding/json"
	"time"
)

// TriggerStatus is the lifecycle state of a job trigger.
type TriggerStatus string

const (
	// TriggerStatusRunnable means the trigger is waiting to become due.
	TriggerStatusRunnable TriggerStatus = "runnable"
	// TriggerStatusRunning means a node holds the trigger's lease.
	TriggerStatusRunning TriggerStatus = "running"
	// TriggerStatusPaused means an operator suspended the trigger.
	// Paused triggers are never claimed.
	TriggerStatusPaused TriggerStatus = "paused"
	// TriggerStatusComplete means the trigger has no further execution.
	// Complete implies nextTime is absent.
	TriggerStatusComplete TriggerStatus = "complete"
	// TriggerStatusError means the last execution failed in a way that
	// needs operator attention. Not retried until reset.
	TriggerStatusError TriggerStatus = "error"
)

// Valid reports whether s is one of the known trigger statuses.
func (s TriggerStatus) Valid() bool {
	switch s {
	case TriggerStatusRunnable, TriggerStatusRunning, TriggerStatusPaused,
		TriggerStatusComplete, TriggerStatusError:
		return true
	}
	return false
}

// JobTrigger schedules executions of a job definition.
//
// The lease lives on the row itself: LockOwner names the node currently
// executing the trigger and LockExpiresAt bounds how long that claim is
// honored without renewal. A running trigger whose lease has expired is
// claimable by any node.
type JobTrigger struct {
	ID              string
	JobDefinitionID string
	Schedule        Schedule
	Status          TriggerStatus
	NextTime        *time.Time
	StartTime       time.Time
	Data            json.RawMessage // opaque per-trigger state owned by the job type
	LockOwner       string          // empty when unlocked
	LockExpiresAt   *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LeaseExpired reports whether the trigger's lease has lapsed at now.
// Triggers without a lease are not expired, they are simply unowned.
func (t *JobTrigger) LeaseExpired(now time.Time) bool {
	if t.LockOwner == "" || t.LockExpiresAt == nil {
		return false
	}
	return !t.LockExpiresAt.After(now)
}

// TriggerUpdate is the outcome a job hands back after an execution.
//
// All fields are optional. Resolution happens in TriggerStore.ApplyUpdate:
//   - absent Status resolves to runnable when NextTime is present, complete
//     otherwise
//   - absent Data leaves the stored data untouched
//   - absent NextTime with a non-complete status preserves the stored nextTime
//   - a complete status always clears nextTime
type TriggerUpdate struct {
	Status   *TriggerStatus
	NextTime *time.Time
	Data     json.RawMessage // nil preserves stored data

	// deferred marks updates built by UpdateFactory.Defer so the audit
	// trail can tell a postponed execution from a completed one.
	deferred bool
}

// IsZero reports whether the update carries nothing at all.
// A zero update paired with an execution error makes the loop fail the
// trigger while preserving its stored nextTime and data.
func (u TriggerUpdate) IsZero() bool {
	return u.Status == nil && u.NextTime == nil && u.Data == nil
}

// ResolveStatus returns the effective status this update would apply.
func (u TriggerUpdate) ResolveStatus() TriggerStatus {
	if u.Status != nil {
		return *u.Status
	}
	if u.NextTime != nil {
		return TriggerStatusRunnable
	}
	return TriggerStatusComplete
}
