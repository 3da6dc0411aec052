package config

import (
	"fmt"
	"time"
)

// Config represents the core metronome configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig configures the shared SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the trigger claim loop and worker pool
type SchedulerConfig struct {
	NodeID                 string `mapstructure:"node_id"`                   // Stable node identity; empty = generated at startup
	Workers                int    `mapstructure:"workers"`                   // Concurrent trigger executors (default: 5)
	PollIntervalMS         int    `mapstructure:"poll_interval_ms"`          // Idle sleep between claim passes (default: 1000)
	LeaseDurationMS        int    `mapstructure:"lease_duration_ms"`         // lock_expires_at = claim time + this (default: 60000)
	HeartbeatIntervalMS    int    `mapstructure:"heartbeat_interval_ms"`     // Lease renewal cadence while executing (default: 5000)
	LeaseSweepIntervalMS   int    `mapstructure:"lease_sweep_interval_ms"`   // Expired-lease recovery sweep (default: 30000)
	MaxExecutionsPerMinute int    `mapstructure:"max_executions_per_minute"` // Per-node dispatch throttle, 0 = unthrottled
	StatsIntervalSeconds   int    `mapstructure:"stats_interval_seconds"`    // Periodic stats log, 0 = disabled (default: 60)
	ExecutionRetentionDays int    `mapstructure:"execution_retention_days"`  // Audit trail retention, 0 = keep forever (default: 14)
}

// EngineConfig configures the event-processor engine the daemon dispatches to
type EngineConfig struct {
	Type           string `mapstructure:"type"`            // webhook, exec, noop
	WebhookURL     string `mapstructure:"webhook_url"`     // Required for type=webhook
	ExecCommand    string `mapstructure:"exec_command"`    // Required for type=exec; shell-quoted
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Per-window engine call timeout (default: 30)
}

// LoggingConfig configures daemon log output
type LoggingConfig struct {
	Theme string `mapstructure:"theme"` // Color theme: gruvbox, everforest
	JSON  bool   `mapstructure:"json"`  // Structured JSON output instead of console encoder
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// PollInterval returns the claim pass idle sleep as a Duration
func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// LeaseDuration returns the trigger lease length as a Duration
func (c SchedulerConfig) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseDurationMS) * time.Millisecond
}

// HeartbeatInterval returns the lease renewal cadence as a Duration
func (c SchedulerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

// LeaseSweepInterval returns the expired-lease sweep cadence as a Duration
func (c SchedulerConfig) LeaseSweepInterval() time.Duration {
	return time.Duration(c.LeaseSweepIntervalMS) * time.Millisecond
}

// StatsInterval returns the stats log cadence as a Duration
func (c SchedulerConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSeconds) * time.Second
}

// Timeout returns the engine call timeout as a Duration
func (c EngineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Scheduler: {Workers: %d}, Engine: {Type: %s}}",
		c.Database.Path, c.Scheduler.Workers, c.Engine.Type)
}
