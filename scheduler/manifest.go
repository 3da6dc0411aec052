package scheduler

import (
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
)

// Manifest is the TOML document `metronome apply` consumes. Each named
// section under [definitions] is one job definition keyed by its ID:
//
//	[definitions.hourly-report]
//	title = "Hourly report"
//	job_type = "event-processor-execution"
//	config = '''
//	{"processor_id": "report", "processing_window_ms": 3600000, "processing_hop_ms": 3600000,
//	 "parameters": {"timerange": {"from": "2026-01-01T00:00:00Z", "to": "2026-01-01T01:00:00Z"}}}
//	'''
//
//	[definitions.hourly-report.trigger]
//	schedule = "interval"
//	amount = 1
//	unit = "hours"
type Manifest struct {
	Definitions map[string]ManifestDefinition `toml:"definitions"`
}

// ManifestDefinition declares one job definition and the trigger that
// schedules it.
type ManifestDefinition struct {
	Title       string           `toml:"title"`
	Description string           `toml:"description"`
	JobType     string           `toml:"job_type"`
	Config      string           `toml:"config"` // JSON, job-type specific
	Trigger     *ManifestTrigger `toml:"trigger"`
}

// ManifestTrigger declares the schedule for a definition's trigger.
type ManifestTrigger struct {
	Schedule  string `toml:"schedule"` // "once" or "interval"
	Amount    int64  `toml:"amount"`
	Unit      string `toml:"unit"`
	StartTime string `toml:"start_time"` // RFC3339; empty starts now
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	var manifest Manifest
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", path)
	}
	if err := manifest.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid manifest %s", path)
	}
	return &manifest, nil
}

// Validate checks every definition in the manifest.
func (m *Manifest) Validate() error {
	if len(m.Definitions) == 0 {
		return errors.NewConfigurationError("manifest declares no definitions")
	}

	for id, def := range m.Definitions {
		if def.Title == "" {
			return errors.NewConfigurationError("definition %q requires a title", id)
		}
		if def.JobType == "" {
			return errors.NewConfigurationError("definition %q requires a job_type", id)
		}
		if def.Config != "" && !json.Valid([]byte(def.Config)) {
			return errors.NewConfigurationError("definition %q config is not valid JSON", id)
		}
		if def.Trigger == nil {
			return errors.NewConfigurationError("definition %q requires a trigger section", id)
		}
		if _, err := def.Trigger.schedule(); err != nil {
			return errors.Wrapf(err, "definition %q", id)
		}
		if def.Trigger.StartTime != "" {
			if _, err := time.Parse(time.RFC3339, def.Trigger.StartTime); err != nil {
				return errors.Wrap(errors.ErrConfiguration,
					errors.Wrapf(err, "definition %q start_time", id).Error())
			}
		}
	}

	return nil
}

func (mt *ManifestTrigger) schedule() (Schedule, error) {
	var schedule Schedule
	switch mt.Schedule {
	case ScheduleTypeOnce:
		schedule = OnceSchedule()
	case ScheduleTypeInterval:
		schedule = IntervalSchedule(mt.Amount, mt.Unit)
	default:
		return Schedule{}, errors.NewConfigurationError("unknown trigger schedule %q", mt.Schedule)
	}
	if err := schedule.Validate(); err != nil {
		return Schedule{}, err
	}
	return schedule, nil
}

// ApplyResult summarizes what Apply changed.
type ApplyResult struct {
	DefinitionsApplied int
	TriggersCreated    int
	TriggersKept       int
}

// Applier upserts manifest definitions and ensures each has a trigger.
type Applier struct {
	definitions *DefinitionStore
	triggers    *TriggerStore
	clock       clock.Clock
	logger      *zap.SugaredLogger
}

// NewApplier creates a manifest applier over the shared database.
func NewApplier(database *sql.DB, clk clock.Clock, log *zap.SugaredLogger) *Applier {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Applier{
		definitions: NewDefinitionStore(database, clk),
		triggers:    NewTriggerStore(database, clk),
		clock:       clk,
		logger:      log,
	}
}

// Apply upserts every definition in the manifest, then ensures each has a
// trigger. Existing triggers are left untouched so live scheduling state
// (nextTime, data, leases) survives re-applies.
func (a *Applier) Apply(manifest *Manifest) (*ApplyResult, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	// Deterministic apply order keeps logs and errors reproducible.
	ids := make([]string, 0, len(manifest.Definitions))
	for id := range manifest.Definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &ApplyResult{}
	for _, id := range ids {
		decl := manifest.Definitions[id]

		def := &JobDefinition{
			ID:          id,
			Title:       decl.Title,
			Description: decl.Description,
			JobType:     decl.JobType,
		}
		if decl.Config != "" {
			def.Config = json.RawMessage(decl.Config)
		}

		if err := a.definitions.Upsert(def); err != nil {
			return nil, errors.Wrapf(err, "failed to apply definition %q", id)
		}
		result.DefinitionsApplied++

		existing, err := a.triggers.ListByDefinition(id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to inspect triggers for definition %q", id)
		}
		if len(existing) > 0 {
			result.TriggersKept += len(existing)
			a.logger.Debugw("Definition already triggered",
				"definition_id", id,
				"triggers", len(existing))
			continue
		}

		trigger, err := a.buildTrigger(id, decl.Trigger)
		if err != nil {
			return nil, err
		}
		if err := a.triggers.Create(trigger); err != nil {
			return nil, errors.Wrapf(err, "failed to create trigger for definition %q", id)
		}
		result.TriggersCreated++
		a.logger.Infow("Created trigger",
			"definition_id", id,
			"trigger_id", trigger.ID,
			"schedule", trigger.Schedule.String())
	}

	return result, nil
}

func (a *Applier) buildTrigger(definitionID string, decl *ManifestTrigger) (*JobTrigger, error) {
	schedule, err := decl.schedule()
	if err != nil {
		return nil, errors.Wrapf(err, "definition %q", definitionID)
	}

	trigger := &JobTrigger{
		JobDefinitionID: definitionID,
		Schedule:        schedule,
	}
	if decl.StartTime != "" {
		startTime, err := time.Parse(time.RFC3339, decl.StartTime)
		if err != nil {
			return nil, errors.Wrap(errors.ErrConfiguration,
				errors.Wrapf(err, "definition %q start_time", definitionID).Error())
		}
		trigger.StartTime = startTime.UTC()
	}

	return trigger, nil
}
