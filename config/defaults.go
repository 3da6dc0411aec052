package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "metronome.db")

	// Scheduler defaults
	v.SetDefault("scheduler.node_id", "")
	v.SetDefault("scheduler.workers", 5)
	v.SetDefault("scheduler.poll_interval_ms", 1000)
	v.SetDefault("scheduler.lease_duration_ms", 60000)
	v.SetDefault("scheduler.heartbeat_interval_ms", 5000)
	v.SetDefault("scheduler.lease_sweep_interval_ms", 30000)
	v.SetDefault("scheduler.max_executions_per_minute", 0) // Unthrottled
	v.SetDefault("scheduler.stats_interval_seconds", 60)
	v.SetDefault("scheduler.execution_retention_days", 14)

	// Engine defaults
	v.SetDefault("engine.type", "noop")
	v.SetDefault("engine.timeout_seconds", 30)

	// Logging defaults
	v.SetDefault("logging.theme", "everforest")
	v.SetDefault("logging.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "METRONOME_DATABASE_PATH")

	// Node identity (useful for containerized deployments)
	v.BindEnv("scheduler.node_id", "METRONOME_SCHEDULER_NODE_ID")

	// Engine endpoint (may carry credentials in the URL)
	v.BindEnv("engine.webhook_url", "METRONOME_ENGINE_WEBHOOK_URL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "metronome.db" // Fallback default
	}
	return c.Database.Path
}

// GetLoggingTheme returns the log theme (default: everforest)
func (c *Config) GetLoggingTheme() string {
	if c.Logging.Theme == "" {
		return "everforest"
	}
	return c.Logging.Theme
}

// GetSchedulerConfig returns the scheduler configuration with defaults applied
// for zero values. Fields where zero is meaningful (throttle, stats, retention)
// are left alone.
func (c *Config) GetSchedulerConfig() SchedulerConfig {
	cfg := c.Scheduler

	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	if cfg.PollIntervalMS == 0 {
		cfg.PollIntervalMS = 1000
	}
	if cfg.LeaseDurationMS == 0 {
		cfg.LeaseDurationMS = 60000
	}
	if cfg.HeartbeatIntervalMS == 0 {
		cfg.HeartbeatIntervalMS = 5000
	}
	if cfg.LeaseSweepIntervalMS == 0 {
		cfg.LeaseSweepIntervalMS = 30000
	}

	return cfg
}
