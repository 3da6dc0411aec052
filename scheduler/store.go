package scheduler

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
)

const (
	// DefaultListLimit bounds unfiltered trigger listings.
	DefaultListLimit = 100

	// claimCandidateLimit bounds how many due triggers one claim pass
	// inspects before giving up to the next poll.
	claimCandidateLimit = 8
)

// TriggerStore persists job triggers and doubles as the cluster's lock
// service. Every state transition that matters for mutual exclusion is a
// conditional UPDATE checked through RowsAffected; nodes never coordinate
// through anything but the shared database.
type TriggerStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewTriggerStore creates a trigger store. A nil clock falls back to the
// system clock.
func NewTriggerStore(db *sql.DB, clk clock.Clock) *TriggerStore {
	if clk == nil {
		clk = clock.System()
	}
	return &TriggerStore{db: db, clock: clk}
}

// Create persists a new trigger. The schedule is validated, the initial
// status is runnable, and nextTime seeds from startTime (a past startTime
// makes the trigger due immediately).
func (s *TriggerStore) Create(trigger *JobTrigger) error {
	if trigger.JobDefinitionID == "" {
		return errors.NewConfigurationError("trigger requires a job definition ID")
	}
	if err := trigger.Schedule.Validate(); err != nil {
		return err
	}

	schedule, err := trigger.Schedule.Encode()
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}
	if trigger.StartTime.IsZero() {
		trigger.StartTime = now
	}
	trigger.Status = TriggerStatusRunnable
	nextTime := trigger.StartTime.UTC()
	trigger.NextTime = &nextTime
	trigger.CreatedAt = now
	trigger.UpdatedAt = now

	var data interface{}
	if len(trigger.Data) > 0 {
		data = string(trigger.Data)
	}

	query := `
		INSERT INTO job_triggers (
			id, job_definition_id, schedule, status,
			next_time, start_time, data,
			lock_owner, lock_expires_at, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?)
	`

	_, err = s.db.Exec(query,
		trigger.ID,
		trigger.JobDefinitionID,
		schedule,
		trigger.Status,
		formatStoredTime(nextTime),
		formatStoredTime(trigger.StartTime),
		data,
		formatStoredTime(now),
		formatStoredTime(now),
	)
	if err != nil {
		err = errors.Wrapf(err, "failed to create trigger %s", trigger.ID)
		err = errors.WithDetailf(err, "Definition ID: %s", trigger.JobDefinitionID)
		return err
	}

	return nil
}

// Get retrieves a trigger by ID.
func (s *TriggerStore) Get(id string) (*JobTrigger, error) {
	query := `SELECT ` + triggerSelectColumns + ` FROM job_triggers WHERE id = ?`

	trigger, err := scanTriggerFromRow(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("trigger %s not found", id)
		}
		return nil, errors.Wrapf(err, "failed to get trigger %s", id)
	}
	return trigger, nil
}

// List returns triggers, newest first, optionally filtered by status.
// A limit <= 0 falls back to DefaultListLimit.
func (s *TriggerStore) List(status *TriggerStatus, limit int) ([]*JobTrigger, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + triggerSelectColumns + ` FROM job_triggers`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list triggers")
	}
	defer rows.Close()

	var triggers []*JobTrigger
	for rows.Next() {
		trigger, err := scanTriggerFromRows(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan trigger")
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating triggers")
	}

	return triggers, nil
}

// ListByDefinition returns all triggers scheduling a definition.
func (s *TriggerStore) ListByDefinition(definitionID string) ([]*JobTrigger, error) {
	query := `SELECT ` + triggerSelectColumns + `
		FROM job_triggers
		WHERE job_definition_id = ?
		ORDER BY created_at ASC`

	rows, err := s.db.Query(query, definitionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list triggers for definition %s", definitionID)
	}
	defer rows.Close()

	var triggers []*JobTrigger
	for rows.Next() {
		trigger, err := scanTriggerFromRows(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan trigger")
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating triggers")
	}

	return triggers, nil
}

// Delete removes a trigger. Deletion is refused while the trigger is
// running or while audit history references it; pause the trigger instead
// and let execution retention expire the history.
func (s *TriggerStore) Delete(id string) error {
	var history int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trigger_executions WHERE trigger_id = ?`, id).
		Scan(&history)
	if err != nil {
		return errors.Wrapf(err, "failed to check executions for trigger %s", id)
	}
	if history > 0 {
		return errors.Wrapf(errors.ErrConflict,
			"refusing to delete trigger %s: %d recorded execution(s) reference it", id, history)
	}

	result, err := s.db.Exec(`DELETE FROM job_triggers WHERE id = ? AND status != ?`,
		id, TriggerStatusRunning)
	if err != nil {
		return errors.Wrapf(err, "failed to delete trigger %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		// Either the trigger does not exist or it is mid-execution.
		if _, getErr := s.Get(id); getErr != nil {
			return getErr
		}
		return errors.Wrapf(errors.ErrConflict, "refusing to delete trigger %s while running", id)
	}

	return nil
}

// ClaimDue claims the oldest due trigger for nodeID and returns it, or nil
// when nothing is due. A trigger is due when its nextTime has arrived and it
// is either runnable or running with an expired lease (abandoned by a dead
// node). Exactly one contender wins each trigger; losers move to the next
// candidate.
func (s *TriggerStore) ClaimDue(nodeID string, lease time.Duration) (*JobTrigger, error) {
	if nodeID == "" {
		return nil, errors.NewConfigurationError("claim requires a node ID")
	}

	now := s.clock.Now().UTC()
	nowStored := formatStoredTime(now)

	candidates, err := s.dueCandidateIDs(nowStored)
	if err != nil {
		return nil, err
	}

	claim := `
		UPDATE job_triggers
		SET status = ?, lock_owner = ?, lock_expires_at = ?, updated_at = ?
		WHERE id = ?
		  AND next_time IS NOT NULL AND next_time <= ?
		  AND (status = ?
		       OR (status = ? AND lock_expires_at IS NOT NULL AND lock_expires_at <= ?))
	`
	expiresStored := formatStoredTime(now.Add(lease))

	for _, id := range candidates {
		result, err := s.db.Exec(claim,
			TriggerStatusRunning, nodeID, expiresStored, nowStored,
			id,
			nowStored,
			TriggerStatusRunnable,
			TriggerStatusRunning, nowStored,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to claim trigger %s", id)
		}
		won, err := result.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "failed to check claim result")
		}
		if won == 0 {
			// Lost the race to another node; try the next candidate.
			continue
		}
		return s.Get(id)
	}

	return nil, nil
}

// dueCandidateIDs selects claimable trigger IDs ordered oldest-nextTime
// first. The result is a snapshot; the claim UPDATE re-verifies every
// condition.
func (s *TriggerStore) dueCandidateIDs(nowStored string) ([]string, error) {
	query := `
		SELECT id FROM job_triggers
		WHERE next_time IS NOT NULL AND next_time <= ?
		  AND (status = ?
		       OR (status = ? AND lock_expires_at IS NOT NULL AND lock_expires_at <= ?))
		ORDER BY next_time ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query,
		nowStored,
		TriggerStatusRunnable,
		TriggerStatusRunning, nowStored,
		claimCandidateLimit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select due triggers")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan due trigger ID")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating due triggers")
	}

	return ids, nil
}

// RenewLease extends nodeID's lease on a running trigger. Returns
// ErrLeaseLost when the trigger is no longer leased to this node; the
// caller must treat the execution as orphaned.
func (s *TriggerStore) RenewLease(triggerID, nodeID string, lease time.Duration) error {
	now := s.clock.Now().UTC()

	result, err := s.db.Exec(`
		UPDATE job_triggers
		SET lock_expires_at = ?, updated_at = ?
		WHERE id = ? AND lock_owner = ? AND status = ?
	`,
		formatStoredTime(now.Add(lease)), formatStoredTime(now),
		triggerID, nodeID, TriggerStatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to renew lease on trigger %s", triggerID)
	}

	renewed, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check lease renewal")
	}
	if renewed == 0 {
		return errors.Wrapf(errors.ErrLeaseLost, "trigger %s is no longer leased to %s", triggerID, nodeID)
	}

	return nil
}

// ApplyUpdate resolves and applies a job's TriggerUpdate, releasing the
// lease in the same statement:
//
//   - absent Status resolves to runnable when NextTime is present, complete
//     otherwise
//   - a complete status always clears next_time
//   - absent NextTime with a non-complete status preserves the stored value
//   - absent Data preserves the stored data
//   - last_error records execErr on an error status and clears otherwise
//
// The UPDATE is conditional on lock_owner = nodeID. Zero rows means the
// lease was lost and the whole update has been discarded; ErrLeaseLost is
// returned so the caller can log the dropped outcome.
func (s *TriggerStore) ApplyUpdate(triggerID, nodeID string, update TriggerUpdate, execErr error) error {
	status := update.ResolveStatus()
	if !status.Valid() {
		return errors.NewConfigurationError("invalid trigger status %q", status)
	}

	now := s.clock.Now().UTC()

	query := `
		UPDATE job_triggers
		SET status = ?, lock_owner = NULL, lock_expires_at = NULL, updated_at = ?`
	args := []interface{}{status, formatStoredTime(now)}

	switch {
	case status == TriggerStatusComplete:
		query += `, next_time = NULL`
	case update.NextTime != nil:
		query += `, next_time = ?`
		args = append(args, formatStoredTime(*update.NextTime))
	}

	if update.Data != nil {
		query += `, data = ?`
		args = append(args, string(update.Data))
	}

	if status == TriggerStatusError {
		query += `, last_error = ?`
		message := "unspecified error"
		if execErr != nil {
			message = execErr.Error()
		}
		args = append(args, message)
	} else {
		query += `, last_error = NULL`
	}

	query += ` WHERE id = ? AND lock_owner = ?`
	args = append(args, triggerID, nodeID)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to apply update to trigger %s", triggerID)
	}

	applied, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if applied == 0 {
		return errors.Wrapf(errors.ErrLeaseLost, "update for trigger %s discarded: lease no longer held by %s", triggerID, nodeID)
	}

	return nil
}

// Pause suspends a runnable or errored trigger. Paused triggers are never
// claimed.
func (s *TriggerStore) Pause(id string) error {
	now := formatStoredTime(s.clock.Now())

	result, err := s.db.Exec(`
		UPDATE job_triggers
		SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, TriggerStatusPaused, now, id, TriggerStatusRunnable, TriggerStatusError)
	if err != nil {
		return errors.Wrapf(err, "failed to pause trigger %s", id)
	}

	return s.adminResult(result, id, "pause")
}

// Resume returns a paused trigger to runnable. A missing nextTime is healed
// to now so the trigger becomes due immediately.
func (s *TriggerStore) Resume(id string) error {
	now := formatStoredTime(s.clock.Now())

	result, err := s.db.Exec(`
		UPDATE job_triggers
		SET status = ?, next_time = COALESCE(next_time, ?), updated_at = ?
		WHERE id = ? AND status = ?
	`, TriggerStatusRunnable, now, now, id, TriggerStatusPaused)
	if err != nil {
		return errors.Wrapf(err, "failed to resume trigger %s", id)
	}

	return s.adminResult(result, id, "resume")
}

// ResetError returns an errored trigger to runnable and clears its last
// error. The preserved nextTime makes it due again right away when that
// time has passed.
func (s *TriggerStore) ResetError(id string) error {
	now := formatStoredTime(s.clock.Now())

	result, err := s.db.Exec(`
		UPDATE job_triggers
		SET status = ?, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, TriggerStatusRunnable, now, id, TriggerStatusError)
	if err != nil {
		return errors.Wrapf(err, "failed to reset trigger %s", id)
	}

	return s.adminResult(result, id, "reset")
}

// adminResult turns a zero-row admin UPDATE into a useful error: not found
// when the trigger is gone, conflict naming the actual status otherwise.
func (s *TriggerStore) adminResult(result sql.Result, id, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to check %s result", op)
	}
	if affected > 0 {
		return nil
	}

	trigger, err := s.Get(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(errors.ErrConflict, "cannot %s trigger %s in status %s", op, id, trigger.Status)
}

// ReleaseExpiredLeases flips running triggers with lapsed leases back to
// runnable. Run at startup for crash recovery and periodically as a sweep.
// Returns how many triggers were released.
func (s *TriggerStore) ReleaseExpiredLeases() (int, error) {
	now := formatStoredTime(s.clock.Now())

	result, err := s.db.Exec(`
		UPDATE job_triggers
		SET status = ?, lock_owner = NULL, lock_expires_at = NULL, updated_at = ?
		WHERE status = ? AND lock_expires_at IS NOT NULL AND lock_expires_at <= ?
	`, TriggerStatusRunnable, now, TriggerStatusRunning, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to release expired leases")
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count released leases")
	}

	return int(released), nil
}

// ForceReleaseOwned returns every trigger this node still holds to
// runnable. Called on graceful shutdown so other nodes pick the work up
// without waiting for lease expiry.
func (s *TriggerStore) ForceReleaseOwned(nodeID string) (int, error) {
	now := formatStoredTime(s.clock.Now())

	result, err := s.db.Exec(`
		UPDATE job_triggers
		SET status = ?, lock_owner = NULL, lock_expires_at = NULL, updated_at = ?
		WHERE lock_owner = ? AND status = ?
	`, TriggerStatusRunnable, now, nodeID, TriggerStatusRunning)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to force-release triggers owned by %s", nodeID)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count force-released triggers")
	}

	return int(released), nil
}

// CountByStatus returns trigger counts grouped by status.
func (s *TriggerStore) CountByStatus() (map[TriggerStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM job_triggers GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count triggers")
	}
	defer rows.Close()

	counts := make(map[TriggerStatus]int)
	for rows.Next() {
		var status TriggerStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan trigger count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating trigger counts")
	}

	return counts, nil
}
