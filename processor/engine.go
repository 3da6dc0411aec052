package processor

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/config"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
)

// Engine evaluates an event processor over one processing range. A nil
// return means the range was processed; any error parks the trigger in
// status error until an operator resets it.
type Engine interface {
	Execute(ctx context.Context, processorID string, params Parameters) error
}

// Engine types accepted by config.
const (
	EngineTypeWebhook = "webhook"
	EngineTypeExec    = "exec"
	EngineTypeNoop    = "noop"
)

// NewEngineFromConfig builds the engine the daemon dispatches to. An empty
// type falls back to noop so a bare config still starts.
func NewEngineFromConfig(cfg config.EngineConfig, clk clock.Clock, log *zap.SugaredLogger) (Engine, error) {
	switch cfg.Type {
	case EngineTypeWebhook:
		return NewWebhookEngine(cfg.WebhookURL, cfg.Timeout(), clk, log)
	case EngineTypeExec:
		return NewExecEngine(cfg.ExecCommand, cfg.Timeout(), clk, log)
	case EngineTypeNoop, "":
		return NewNoopEngine(log), nil
	default:
		return nil, errors.NewConfigurationError("unknown engine type %q", cfg.Type)
	}
}

// executionPayload is the JSON document both the webhook body and the exec
// engine's stdin carry.
type executionPayload struct {
	ProcessorID string          `json:"processor_id"`
	Range       TimeRange       `json:"range"`
	Config      json.RawMessage `json:"config,omitempty"`
	FiredAt     time.Time       `json:"fired_at"`
}

func encodePayload(processorID string, params Parameters, firedAt time.Time) ([]byte, error) {
	payload := executionPayload{
		ProcessorID: processorID,
		Range: TimeRange{
			From: params.Range.From.UTC(),
			To:   params.Range.To.UTC(),
		},
		Config:  params.Config,
		FiredAt: firedAt.UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode execution payload")
	}
	return body, nil
}

// NoopEngine logs each execution and succeeds. Used for dry runs and for
// wiring up a cluster before the real engine exists.
type NoopEngine struct {
	logger *zap.SugaredLogger
}

// NewNoopEngine creates an engine that does nothing but log.
func NewNoopEngine(log *zap.SugaredLogger) *NoopEngine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &NoopEngine{logger: log}
}

// Execute logs the range and reports success.
func (e *NoopEngine) Execute(ctx context.Context, processorID string, params Parameters) error {
	fields := append(logger.FieldsFromContext(ctx),
		logger.FieldProcessorID, processorID,
		logger.FieldRangeFrom, params.Range.From,
		logger.FieldRangeTo, params.Range.To,
	)
	e.logger.Infow("Skipping event processor execution (noop engine)", fields...)
	return nil
}
