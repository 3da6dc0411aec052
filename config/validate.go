package config

import "github.com/teranos/metronome/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "metronome.db"

	// Workers: 0 falls back to the default pool size, negative = invalid
	if c.Scheduler.Workers < 0 {
		return errors.Newf("scheduler.workers must be >= 0, got %d", c.Scheduler.Workers)
	}

	if c.Scheduler.PollIntervalMS < 0 {
		return errors.Newf("scheduler.poll_interval_ms must be >= 0, got %d", c.Scheduler.PollIntervalMS)
	}

	if c.Scheduler.LeaseDurationMS < 0 {
		return errors.Newf("scheduler.lease_duration_ms must be >= 0, got %d", c.Scheduler.LeaseDurationMS)
	}

	if c.Scheduler.HeartbeatIntervalMS < 0 {
		return errors.Newf("scheduler.heartbeat_interval_ms must be >= 0, got %d", c.Scheduler.HeartbeatIntervalMS)
	}

	// A heartbeat slower than the lease means every long execution loses its
	// lease between renewals
	if c.Scheduler.LeaseDurationMS > 0 && c.Scheduler.HeartbeatIntervalMS >= c.Scheduler.LeaseDurationMS {
		return errors.Newf("scheduler.heartbeat_interval_ms (%d) must be shorter than scheduler.lease_duration_ms (%d)",
			c.Scheduler.HeartbeatIntervalMS, c.Scheduler.LeaseDurationMS)
	}

	if c.Scheduler.LeaseSweepIntervalMS < 0 {
		return errors.Newf("scheduler.lease_sweep_interval_ms must be >= 0, got %d", c.Scheduler.LeaseSweepIntervalMS)
	}

	// Throttle: 0 = unthrottled, negative = invalid
	if c.Scheduler.MaxExecutionsPerMinute < 0 {
		return errors.Newf("scheduler.max_executions_per_minute must be >= 0, got %d", c.Scheduler.MaxExecutionsPerMinute)
	}

	// Stats interval: 0 = no periodic stats, negative = invalid
	if c.Scheduler.StatsIntervalSeconds < 0 {
		return errors.Newf("scheduler.stats_interval_seconds must be >= 0, got %d", c.Scheduler.StatsIntervalSeconds)
	}

	// Retention: 0 = keep forever, negative = invalid
	if c.Scheduler.ExecutionRetentionDays < 0 {
		return errors.Newf("scheduler.execution_retention_days must be >= 0, got %d", c.Scheduler.ExecutionRetentionDays)
	}

	// Engine type and its required settings
	switch c.Engine.Type {
	case "", "noop":
		// noop needs nothing
	case "webhook":
		if c.Engine.WebhookURL == "" {
			return errors.New("engine.webhook_url cannot be empty when engine.type is webhook")
		}
	case "exec":
		if c.Engine.ExecCommand == "" {
			return errors.New("engine.exec_command cannot be empty when engine.type is exec")
		}
	default:
		return errors.Newf("engine.type must be one of webhook, exec, noop; got %q", c.Engine.Type)
	}

	if c.Engine.TimeoutSeconds < 0 {
		return errors.Newf("engine.timeout_seconds must be >= 0, got %d", c.Engine.TimeoutSeconds)
	}

	// Logging theme
	switch c.Logging.Theme {
	case "", "gruvbox", "everforest":
	default:
		return errors.Newf("logging.theme must be gruvbox or everforest, got %q", c.Logging.Theme)
	}

	return nil
}
