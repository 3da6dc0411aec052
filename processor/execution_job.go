// Package processor implements the event-processor execution job: the job
// type that advances a sliding or hopping processing window across time and
// dispatches each window to an engine.
//
// The trigger's data payload records the last processed range. Each run
// derives the next candidate window from it (or seeds one from the
// definition's parameters on the first run), defers when the window would
// extend past the present, and otherwise hands the window to the engine.
// Window arithmetic works in closed millisecond ranges, so adjacent windows
// meet at a 1ms step.
package processor

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
	"github.com/teranos/metronome/scheduler"
)

// JobType is the registry key for event-processor execution jobs.
const JobType = "event-processor-execution"

// triggerDataType tags the trigger data payload this job owns.
const triggerDataType = "processing-range"

// Config is the definition config for an execution job. Window and hop are
// durations in milliseconds; a hop smaller than the window overlaps
// consecutive ranges, a larger one leaves gaps.
type Config struct {
	ProcessorID        string     `json:"processor_id"`
	ProcessingWindowMS int64      `json:"processing_window_ms"`
	ProcessingHopMS    int64      `json:"processing_hop_ms"`
	Parameters         Parameters `json:"parameters"`
}

// Validate rejects configs the job cannot run with.
func (c Config) Validate() error {
	if c.ProcessorID == "" {
		return errors.NewConfigurationError("processor_id is required")
	}
	if c.ProcessingWindowMS < 1 {
		return errors.NewConfigurationError(
			"processing_window_ms must be >= 1, got %d", c.ProcessingWindowMS)
	}
	if c.ProcessingHopMS < 1 {
		return errors.NewConfigurationError(
			"processing_hop_ms must be >= 1, got %d", c.ProcessingHopMS)
	}
	return nil
}

func (c Config) window() time.Duration {
	return time.Duration(c.ProcessingWindowMS) * time.Millisecond
}

func (c Config) hop() time.Duration {
	return time.Duration(c.ProcessingHopMS) * time.Millisecond
}

// processingRange is the trigger data payload: the last range handed to the
// engine.
type processingRange struct {
	Type string    `json:"type"`
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ExecutionJob advances one trigger's processing window per execution.
type ExecutionJob struct {
	cfg    Config
	engine Engine
	clock  clock.Clock
	logger *zap.SugaredLogger
}

// RegisterExecutionJob registers the job factory under JobType.
func RegisterExecutionJob(registry *scheduler.Registry, engine Engine, clk clock.Clock, log *zap.SugaredLogger) error {
	return registry.Register(JobType, func(def *scheduler.JobDefinition) (scheduler.Job, error) {
		return NewExecutionJob(def, engine, clk, log)
	})
}

// NewExecutionJob builds the job for one definition. Malformed configs are
// configuration errors; they park the trigger until an operator fixes the
// definition and resets it.
func NewExecutionJob(def *scheduler.JobDefinition, engine Engine, clk clock.Clock, log *zap.SugaredLogger) (*ExecutionJob, error) {
	if engine == nil {
		return nil, errors.NewConfigurationError("execution job requires an engine")
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var cfg Config
	if err := json.Unmarshal(def.Config, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration,
			errors.Wrapf(err, "malformed %s config for definition %s", JobType, def.ID).Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ProcessingHopMS > cfg.ProcessingWindowMS {
		log.Warnw("Processing hop exceeds window, ranges will not be contiguous",
			logger.FieldProcessorID, cfg.ProcessorID,
			"processing_window_ms", cfg.ProcessingWindowMS,
			"processing_hop_ms", cfg.ProcessingHopMS)
	}

	return &ExecutionJob{
		cfg:    cfg,
		engine: engine,
		clock:  clk,
		logger: log,
	}, nil
}

// Execute computes this run's window and hands it to the engine.
//
// Outcomes:
//   - window ends in the future: defer to that instant, engine uncalled
//   - window is degenerate (from >= to): error update, engine uncalled
//   - engine failure: bare error, the loop parks the trigger
//   - success: data advances to the processed range, nextTime per schedule
func (j *ExecutionJob) Execute(ctx context.Context, execCtx *scheduler.ExecutionContext) (scheduler.TriggerUpdate, error) {
	prior, err := priorRange(execCtx.Trigger.Data)
	if err != nil {
		return scheduler.TriggerUpdate{}, err
	}

	rng := j.nextWindow(prior)
	now := j.clock.Now().UTC()

	if rng.To.After(now) {
		// Catching up to real time: never process a range that extends
		// past the present.
		j.logger.Debugw("Processing window ends in the future, deferring",
			logger.FieldProcessorID, j.cfg.ProcessorID,
			logger.FieldTriggerID, execCtx.Trigger.ID,
			logger.FieldNextTime, rng.To)
		return execCtx.Updates.Defer(rng.To), nil
	}

	if err := rng.Validate(); err != nil {
		return execCtx.Updates.Error(), errors.Wrapf(err,
			"cannot execute processor %s", j.cfg.ProcessorID)
	}

	execCtx.ReportRange(rng.From, rng.To)

	if err := j.engine.Execute(ctx, j.cfg.ProcessorID, j.cfg.Parameters.WithRange(rng)); err != nil {
		return scheduler.TriggerUpdate{}, errors.Wrapf(err,
			"processor %s failed on range %s", j.cfg.ProcessorID, rng)
	}

	data, err := json.Marshal(processingRange{
		Type: triggerDataType,
		From: rng.From.UTC(),
		To:   rng.To.UTC(),
	})
	if err != nil {
		return scheduler.TriggerUpdate{}, errors.Wrap(err, "failed to encode processing range")
	}

	return execCtx.Updates.ScheduleNext(data), nil
}

// nextWindow derives this run's candidate window. With prior data the
// window's end hops forward from the last processed end and closes at
// [to−W+1ms, to]; the first run processes the seed range from the
// parameters exactly as declared.
func (j *ExecutionJob) nextWindow(prior *TimeRange) TimeRange {
	if prior != nil {
		to := prior.To.Add(j.cfg.hop())
		return TimeRange{
			From: to.Add(-j.cfg.window()).Add(time.Millisecond),
			To:   to,
		}
	}
	return j.cfg.Parameters.Range
}

// priorRange decodes the trigger's data payload. Present data carrying an
// unknown type tag means the trigger is wired to the wrong job type; that
// is a configuration error, not something to silently reprocess.
func priorRange(data json.RawMessage) (*TimeRange, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var pr processingRange
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration,
			errors.Wrap(err, "malformed trigger data").Error())
	}
	if pr.Type != triggerDataType {
		return nil, errors.NewConfigurationError(
			"unexpected trigger data type %q, want %q", pr.Type, triggerDataType)
	}
	return &TimeRange{From: pr.From, To: pr.To}, nil
}
