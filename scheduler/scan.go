package scheduler

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/metronome/errors"
)

// storedTimeLayout pins exactly three fractional digits so that string
// comparison in SQL matches chronological order at the scheduler's 1ms
// resolution. RFC3339Nano trims trailing zeros, which breaks ordering for
// values like "...00Z" vs "...00.999Z".
const storedTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// formatStoredTime renders a timestamp in the canonical stored form (UTC).
func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// parseStoredTime parses a stored timestamp. Accepts any RFC3339 fractional
// precision so hand-edited rows still load.
func parseStoredTime(value, field, id string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to parse %s for %s", field, id)
	}
	return ts.UTC(), nil
}

// triggerScanArgs holds the variables needed for scanning a trigger row.
// Nullable columns go through sql.NullString and are converted afterwards.
type triggerScanArgs struct {
	Schedule      string
	NextTime      sql.NullString
	StartTime     string
	Data          sql.NullString
	LockOwner     sql.NullString
	LockExpiresAt sql.NullString
	LastError     sql.NullString
	CreatedAt     string
	UpdatedAt     string
}

// triggerSelectColumns is the column list every trigger SELECT uses,
// in the order triggerScanTargets expects.
const triggerSelectColumns = `id, job_definition_id, schedule, status,
	next_time, start_time, data,
	lock_owner, lock_expires_at, last_error,
	created_at, updated_at`

func triggerScanTargets(t *JobTrigger, args *triggerScanArgs) []interface{} {
	return []interface{}{
		&t.ID,
		&t.JobDefinitionID,
		&args.Schedule,
		&t.Status,
		&args.NextTime,
		&args.StartTime,
		&args.Data,
		&args.LockOwner,
		&args.LockExpiresAt,
		&args.LastError,
		&args.CreatedAt,
		&args.UpdatedAt,
	}
}

// processTriggerScanArgs converts the scanned raw columns into the trigger
// struct, parsing timestamps and the schedule payload.
func processTriggerScanArgs(t *JobTrigger, args *triggerScanArgs) error {
	schedule, err := ParseSchedule(args.Schedule)
	if err != nil {
		return errors.Wrapf(err, "stored schedule for trigger %s", t.ID)
	}
	t.Schedule = schedule

	startTime, err := parseStoredTime(args.StartTime, "start_time", "trigger "+t.ID)
	if err != nil {
		return err
	}
	t.StartTime = startTime

	if args.NextTime.Valid {
		nextTime, err := parseStoredTime(args.NextTime.String, "next_time", "trigger "+t.ID)
		if err != nil {
			return err
		}
		t.NextTime = &nextTime
	}
	if args.Data.Valid && args.Data.String != "" {
		t.Data = json.RawMessage(args.Data.String)
	}
	if args.LockOwner.Valid {
		t.LockOwner = args.LockOwner.String
	}
	if args.LockExpiresAt.Valid {
		expiresAt, err := parseStoredTime(args.LockExpiresAt.String, "lock_expires_at", "trigger "+t.ID)
		if err != nil {
			return err
		}
		t.LockExpiresAt = &expiresAt
	}
	if args.LastError.Valid {
		t.LastError = args.LastError.String
	}

	createdAt, err := parseStoredTime(args.CreatedAt, "created_at", "trigger "+t.ID)
	if err != nil {
		return err
	}
	t.CreatedAt = createdAt

	updatedAt, err := parseStoredTime(args.UpdatedAt, "updated_at", "trigger "+t.ID)
	if err != nil {
		return err
	}
	t.UpdatedAt = updatedAt

	return nil
}

// scanTriggerFromRow scans a single trigger from a sql.Row.
func scanTriggerFromRow(row *sql.Row) (*JobTrigger, error) {
	var trigger JobTrigger
	var args triggerScanArgs
	if err := row.Scan(triggerScanTargets(&trigger, &args)...); err != nil {
		return nil, err
	}
	if err := processTriggerScanArgs(&trigger, &args); err != nil {
		return nil, err
	}
	return &trigger, nil
}

// scanTriggerFromRows scans a single trigger from sql.Rows (for use in loops).
func scanTriggerFromRows(rows *sql.Rows) (*JobTrigger, error) {
	var trigger JobTrigger
	var args triggerScanArgs
	if err := rows.Scan(triggerScanTargets(&trigger, &args)...); err != nil {
		return nil, err
	}
	if err := processTriggerScanArgs(&trigger, &args); err != nil {
		return nil, err
	}
	return &trigger, nil
}
