package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across metronome.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldTriggerID    = "trigger_id"
	FieldDefinitionID = "definition_id"
	FieldExecutionID  = "execution_id"
	FieldNodeID       = "node_id"
	FieldProcessorID  = "processor_id"

	// Components
	FieldComponent = "component"
	FieldWorker    = "worker"
	FieldJobType   = "job_type"

	// Operations
	FieldOperation = "operation"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"
	FieldNextTime   = "next_time"
	FieldRangeFrom  = "range_from"
	FieldRangeTo    = "range_to"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount      = "count"
	FieldBatchSize  = "batch_size"
	FieldTotalCount = "total_count"

	// Status
	FieldStatus  = "status"
	FieldHealthy = "healthy"
	FieldState   = "state"

	// Files and paths
	FieldFile   = "file"
	FieldBinary = "binary"

	// Network
	FieldAddress = "address"
	FieldHost    = "host"
)

// Context keys for propagating logging context
type contextKey string

const (
	triggerIDKey contextKey = "logger_trigger_id"
	nodeIDKey    contextKey = "logger_node_id"
	componentKey contextKey = "logger_component"
)

// WithTriggerID adds a trigger ID to the context for logging
func WithTriggerID(ctx context.Context, triggerID string) context.Context {
	return context.WithValue(ctx, triggerIDKey, triggerID)
}

// WithNodeID adds the executing node's ID to the context for logging
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if triggerID, ok := ctx.Value(triggerIDKey).(string); ok && triggerID != "" {
		fields = append(fields, FieldTriggerID, triggerID)
	}
	if nodeID, ok := ctx.Value(nodeIDKey).(string); ok && nodeID != "" {
		fields = append(fields, FieldNodeID, nodeID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
// Use this to get a logger that automatically includes trigger_id, node_id, etc.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Loop struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewLoop() *Loop {
//	    return &Loop{
//	        logger: logger.ComponentLogger("scheduler.loop"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	triggerLogger := logger.ChildLogger(baseLogger, "trigger_id", trigger.ID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
