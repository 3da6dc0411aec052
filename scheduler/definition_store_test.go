package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metronome/errors"
)

func TestDefinitionCreateAndGet(t *testing.T) {
	f := newStoreFixture(t)

	def := &JobDefinition{
		Title:       "Nightly report",
		Description: "Aggregates yesterday's events",
		JobType:     "event-processor-execution",
		Config:      rawJSON(`{"processor_id":"report-1"}`),
	}
	require.NoError(t, f.definitions.Create(def))
	assert.NotEmpty(t, def.ID)

	stored, err := f.definitions.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Title, stored.Title)
	assert.Equal(t, def.Description, stored.Description)
	assert.Equal(t, def.JobType, stored.JobType)
	assert.JSONEq(t, `{"processor_id":"report-1"}`, string(stored.Config))
	assert.WithinDuration(t, f.clock.Now(), stored.CreatedAt, time.Millisecond)
}

func TestDefinitionCreateDefaultsConfig(t *testing.T) {
	f := newStoreFixture(t)

	def := &JobDefinition{Title: "Bare", JobType: "test-job"}
	require.NoError(t, f.definitions.Create(def))

	stored, err := f.definitions.Get(def.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(stored.Config))
}

func TestDefinitionValidation(t *testing.T) {
	f := newStoreFixture(t)

	tests := []struct {
		name string
		def  *JobDefinition
	}{
		{"missing title", &JobDefinition{JobType: "test-job"}},
		{"missing job type", &JobDefinition{Title: "No type"}},
		{"config not JSON", &JobDefinition{Title: "Bad", JobType: "test-job", Config: rawJSON(`{broken`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.definitions.Create(tt.def)
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationError(err))
		})
	}
}

func TestDefinitionGetNotFound(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.definitions.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDefinitionUpsert(t *testing.T) {
	f := newStoreFixture(t)

	def := &JobDefinition{
		ID:      "report",
		Title:   "Report v1",
		JobType: "test-job",
	}
	require.NoError(t, f.definitions.Upsert(def))

	created, err := f.definitions.Get("report")
	require.NoError(t, err)
	originalCreatedAt := created.CreatedAt

	// Second apply replaces the mutable fields but keeps the row.
	f.clock.Advance(time.Hour)
	require.NoError(t, f.definitions.Upsert(&JobDefinition{
		ID:      "report",
		Title:   "Report v2",
		JobType: "test-job",
		Config:  rawJSON(`{"version":2}`),
	}))

	updated, err := f.definitions.Get("report")
	require.NoError(t, err)
	assert.Equal(t, "Report v2", updated.Title)
	assert.JSONEq(t, `{"version":2}`, string(updated.Config))
	assert.WithinDuration(t, originalCreatedAt, updated.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, f.clock.Now(), updated.UpdatedAt, time.Millisecond)

	err = f.definitions.Upsert(&JobDefinition{Title: "No ID", JobType: "test-job"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestDefinitionList(t *testing.T) {
	f := newStoreFixture(t)

	for _, title := range []string{"Charlie", "Alpha", "Bravo"} {
		require.NoError(t, f.definitions.Create(&JobDefinition{Title: title, JobType: "test-job"}))
	}

	defs, err := f.definitions.List(0)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "Alpha", defs[0].Title)
	assert.Equal(t, "Bravo", defs[1].Title)
	assert.Equal(t, "Charlie", defs[2].Title)

	limited, err := f.definitions.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDefinitionUpdate(t *testing.T) {
	f := newStoreFixture(t)
	def := f.createDefinition(t, "def-1")

	def.Title = "Renamed"
	def.Config = rawJSON(`{"tuned":true}`)
	require.NoError(t, f.definitions.Update(def))

	stored, err := f.definitions.Get("def-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
	assert.JSONEq(t, `{"tuned":true}`, string(stored.Config))

	err = f.definitions.Update(&JobDefinition{ID: "missing", Title: "X", JobType: "test-job"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDefinitionDeleteRefusedWhileTriggered(t *testing.T) {
	f := newStoreFixture(t)
	f.createDefinition(t, "def-1")
	trigger := f.createDueTrigger(t, "def-1")

	err := f.definitions.Delete("def-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Contains(t, err.Error(), "trigger(s) reference it")

	// Removing the trigger unblocks the definition.
	require.NoError(t, f.triggers.Delete(trigger.ID))
	require.NoError(t, f.definitions.Delete("def-1"))

	_, err = f.definitions.Get("def-1")
	assert.True(t, errors.IsNotFoundError(err))

	err = f.definitions.Delete("def-1")
	assert.True(t, errors.IsNotFoundError(err))
}
