package scheduler

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
)

// Execution statuses. An execution starts running and finishes exactly once.
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusDeferred  = "deferred"
)

// Execution is one audit row per claim: which node ran which trigger, over
// what range, for how long, and how it ended.
type Execution struct {
	ID              string
	TriggerID       string
	JobDefinitionID string
	NodeID          string
	Status          string
	RangeFrom       *time.Time
	RangeTo         *time.Time
	ErrorMessage    *string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationMs      *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExecutionStore persists the execution audit trail.
type ExecutionStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewExecutionStore creates an execution store. A nil clock falls back to
// the system clock.
func NewExecutionStore(db *sql.DB, clk clock.Clock) *ExecutionStore {
	if clk == nil {
		clk = clock.System()
	}
	return &ExecutionStore{db: db, clock: clk}
}

// Create records the start of an execution attempt. ID, status, and the
// start timestamp are filled in.
func (s *ExecutionStore) Create(exec *Execution) error {
	if exec.TriggerID == "" {
		return errors.NewConfigurationError("execution requires a trigger ID")
	}

	now := s.clock.Now().UTC()
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	exec.Status = ExecutionStatusRunning
	exec.StartedAt = now
	exec.CreatedAt = now
	exec.UpdatedAt = now

	query := `
		INSERT INTO trigger_executions (
			id, trigger_id, job_definition_id, node_id, status,
			range_from, range_to, error_message,
			started_at, completed_at, duration_ms,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)
	`

	_, err := s.db.Exec(query,
		exec.ID, exec.TriggerID, exec.JobDefinitionID, exec.NodeID, exec.Status,
		nullableTimeParam(exec.RangeFrom), nullableTimeParam(exec.RangeTo), nullableStringParam(exec.ErrorMessage),
		formatStoredTime(now),
		formatStoredTime(now), formatStoredTime(now),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create execution for trigger %s", exec.TriggerID)
	}

	return nil
}

// Update writes an execution's terminal state.
func (s *ExecutionStore) Update(exec *Execution) error {
	now := s.clock.Now().UTC()
	exec.UpdatedAt = now

	query := `
		UPDATE trigger_executions
		SET status = ?,
		    range_from = ?,
		    range_to = ?,
		    error_message = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		exec.Status,
		nullableTimeParam(exec.RangeFrom),
		nullableTimeParam(exec.RangeTo),
		nullableStringParam(exec.ErrorMessage),
		nullableTimeParam(exec.CompletedAt),
		nullableInt64Param(exec.DurationMs),
		formatStoredTime(now),
		exec.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update execution %s", exec.ID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("execution %s not found", exec.ID)
	}

	return nil
}

// Get retrieves an execution by ID.
func (s *ExecutionStore) Get(id string) (*Execution, error) {
	query := `
		SELECT id, trigger_id, job_definition_id, node_id, status,
		       range_from, range_to, error_message,
		       started_at, completed_at, duration_ms,
		       created_at, updated_at
		FROM trigger_executions
		WHERE id = ?
	`

	exec, err := scanExecution(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("execution %s not found", id)
		}
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}
	return exec, nil
}

// ListByTrigger returns a trigger's execution history, newest first, with
// the total row count for pagination. statusFilter narrows when non-empty.
func (s *ExecutionStore) ListByTrigger(triggerID string, limit, offset int, statusFilter string) ([]*Execution, int, error) {
	baseQuery := `
		FROM trigger_executions
		WHERE trigger_id = ?
	`
	args := []interface{}{triggerID}

	if statusFilter != "" {
		baseQuery += " AND status = ?"
		args = append(args, statusFilter)
	}

	countQuery := "SELECT COUNT(*)" + baseQuery
	var total int
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count executions")
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
		SELECT id, trigger_id, job_definition_id, node_id, status,
		       range_from, range_to, error_message,
		       started_at, completed_at, duration_ms,
		       created_at, updated_at
	` + baseQuery + `
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating executions")
	}

	return executions, total, nil
}

// CleanupOldExecutions deletes execution rows older than the retention
// period. Returns how many rows were removed. A retention of zero or less
// keeps everything.
func (s *ExecutionStore) CleanupOldExecutions(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := formatStoredTime(s.clock.Now().AddDate(0, 0, -retentionDays))

	result, err := s.db.Exec(`DELETE FROM trigger_executions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old executions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted executions")
	}

	return int(deleted), nil
}

func nullableTimeParam(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatStoredTime(*t)
}

func nullableStringParam(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt64Param(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var rangeFrom, rangeTo, errorMessage, completedAt sql.NullString
	var durationMs sql.NullInt64
	var startedAt, createdAt, updatedAt string

	if err := row.Scan(
		&exec.ID, &exec.TriggerID, &exec.JobDefinitionID, &exec.NodeID, &exec.Status,
		&rangeFrom, &rangeTo, &errorMessage,
		&startedAt, &completedAt, &durationMs,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if rangeFrom.Valid {
		from, err := parseStoredTime(rangeFrom.String, "range_from", "execution "+exec.ID)
		if err != nil {
			return nil, err
		}
		exec.RangeFrom = &from
	}
	if rangeTo.Valid {
		to, err := parseStoredTime(rangeTo.String, "range_to", "execution "+exec.ID)
		if err != nil {
			return nil, err
		}
		exec.RangeTo = &to
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}

	started, err := parseStoredTime(startedAt, "started_at", "execution "+exec.ID)
	if err != nil {
		return nil, err
	}
	exec.StartedAt = started

	if completedAt.Valid {
		completed, err := parseStoredTime(completedAt.String, "completed_at", "execution "+exec.ID)
		if err != nil {
			return nil, err
		}
		exec.CompletedAt = &completed
	}
	if durationMs.Valid {
		exec.DurationMs = &durationMs.Int64
	}

	created, err := parseStoredTime(createdAt, "created_at", "execution "+exec.ID)
	if err != nil {
		return nil, err
	}
	exec.CreatedAt = created

	updated, err := parseStoredTime(updatedAt, "updated_at", "execution "+exec.ID)
	if err != nil {
		return nil, err
	}
	exec.UpdatedAt = updated

	return &exec, nil
}
