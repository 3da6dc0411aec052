package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/metronome/clock"
	metronometest "github.com/teranos/metronome/internal/testing"
)

// storeFixture bundles the stores every persistence test needs, all sharing
// one migrated in-memory database and one pinned test clock.
type storeFixture struct {
	db          *sql.DB
	clock       *clock.TestClock
	triggers    *TriggerStore
	definitions *DefinitionStore
	executions  *ExecutionStore
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()

	db := metronometest.CreateMigratedTestDB(t)
	clk := clock.NewTestClock()
	return &storeFixture{
		db:          db,
		clock:       clk,
		triggers:    NewTriggerStore(db, clk),
		definitions: NewDefinitionStore(db, clk),
		executions:  NewExecutionStore(db, clk),
	}
}

// createDefinition persists a minimal definition for triggers to hang off.
func (f *storeFixture) createDefinition(t *testing.T, id string) *JobDefinition {
	t.Helper()

	def := &JobDefinition{
		ID:      id,
		Title:   "Definition " + id,
		JobType: "test-job",
	}
	require.NoError(t, f.definitions.Create(def))
	return def
}

// createTrigger persists an interval trigger due at startTime.
func (f *storeFixture) createTrigger(t *testing.T, definitionID string, schedule Schedule, startTime time.Time) *JobTrigger {
	t.Helper()

	trigger := &JobTrigger{
		JobDefinitionID: definitionID,
		Schedule:        schedule,
		StartTime:       startTime,
	}
	require.NoError(t, f.triggers.Create(trigger))
	return trigger
}

// createDueTrigger persists an interval trigger that is due right now.
func (f *storeFixture) createDueTrigger(t *testing.T, definitionID string) *JobTrigger {
	t.Helper()
	return f.createTrigger(t, definitionID, IntervalSchedule(1, UnitMinutes), f.clock.Now())
}

// stubJob adapts a function to the Job interface for loop and registry tests.
type stubJob struct {
	execute func(ctx context.Context, execCtx *ExecutionContext) (TriggerUpdate, error)
}

func (j *stubJob) Execute(ctx context.Context, execCtx *ExecutionContext) (TriggerUpdate, error) {
	return j.execute(ctx, execCtx)
}

// stubFactory registers a stub job under jobType.
func stubFactory(t *testing.T, registry *Registry, jobType string,
	execute func(ctx context.Context, execCtx *ExecutionContext) (TriggerUpdate, error)) {
	t.Helper()

	err := registry.Register(jobType, func(def *JobDefinition) (Job, error) {
		return &stubJob{execute: execute}, nil
	})
	require.NoError(t, err)
}

func rawJSON(s string) json.RawMessage {
	return json.RawMessage(s)
}
