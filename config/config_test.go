package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	// Load config from isolated viper
	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	// Check default values are applied
	if cfg.Database.Path != "metronome.db" {
		t.Errorf("expected default database path 'metronome.db', got %q", cfg.Database.Path)
	}

	if cfg.Scheduler.Workers != 5 {
		t.Errorf("expected default workers 5, got %d", cfg.Scheduler.Workers)
	}

	if cfg.Scheduler.PollIntervalMS != 1000 {
		t.Errorf("expected default poll interval 1000ms, got %d", cfg.Scheduler.PollIntervalMS)
	}

	if cfg.Engine.Type != "noop" {
		t.Errorf("expected default engine type 'noop', got %q", cfg.Engine.Type)
	}

	if cfg.Logging.Theme != "everforest" {
		t.Errorf("expected default theme 'everforest', got %q", cfg.Logging.Theme)
	}
}

func TestValidate_ZeroValues(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "zero workers is valid (falls back to default)",
			config: Config{
				Scheduler: SchedulerConfig{Workers: 0},
			},
			wantErr: false,
		},
		{
			name: "negative workers is invalid",
			config: Config{
				Scheduler: SchedulerConfig{Workers: -1},
			},
			wantErr: true,
		},
		{
			name: "zero throttle is valid (unthrottled)",
			config: Config{
				Scheduler: SchedulerConfig{MaxExecutionsPerMinute: 0},
			},
			wantErr: false,
		},
		{
			name: "negative throttle is invalid",
			config: Config{
				Scheduler: SchedulerConfig{MaxExecutionsPerMinute: -1},
			},
			wantErr: true,
		},
		{
			name: "empty database path is valid",
			config: Config{
				Database: DatabaseConfig{Path: ""},
			},
			wantErr: false,
		},
		{
			name: "heartbeat must be shorter than lease",
			config: Config{
				Scheduler: SchedulerConfig{
					LeaseDurationMS:     5000,
					HeartbeatIntervalMS: 5000,
				},
			},
			wantErr: true,
		},
		{
			name: "heartbeat shorter than lease is valid",
			config: Config{
				Scheduler: SchedulerConfig{
					LeaseDurationMS:     60000,
					HeartbeatIntervalMS: 5000,
				},
			},
			wantErr: false,
		},
		{
			name: "webhook engine requires a URL",
			config: Config{
				Engine: EngineConfig{Type: "webhook"},
			},
			wantErr: true,
		},
		{
			name: "webhook engine with URL is valid",
			config: Config{
				Engine: EngineConfig{Type: "webhook", WebhookURL: "http://localhost:9000/fire"},
			},
			wantErr: false,
		},
		{
			name: "exec engine requires a command",
			config: Config{
				Engine: EngineConfig{Type: "exec"},
			},
			wantErr: true,
		},
		{
			name: "unknown engine type is invalid",
			config: Config{
				Engine: EngineConfig{Type: "carrier-pigeon"},
			},
			wantErr: true,
		},
		{
			name: "unknown logging theme is invalid",
			config: Config{
				Logging: LoggingConfig{Theme: "solarized"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	// Verify critical defaults are set
	tests := []struct {
		key      string
		expected interface{}
	}{
		{"database.path", "metronome.db"},
		{"scheduler.workers", 5},
		{"scheduler.poll_interval_ms", 1000},
		{"scheduler.lease_duration_ms", 60000},
		{"scheduler.heartbeat_interval_ms", 5000},
		{"scheduler.max_executions_per_minute", 0},
		{"engine.type", "noop"},
		{"engine.timeout_seconds", 30},
		{"logging.theme", "everforest"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := v.Get(tt.key)
			if got != tt.expected {
				t.Errorf("default %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestFindProjectConfig(t *testing.T) {
	// Create temporary directory structure
	tmpDir := t.TempDir()

	t.Run("prefers metronome.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		// Create both config files
		os.WriteFile(filepath.Join(tmpDir, "test1", "metronome.toml"), []byte(""), DefaultFilePermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", "config.toml"), []byte(""), DefaultFilePermissions)

		// Change to subdirectory
		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Error("expected to find config file")
		}
		if !filepath.IsAbs(result) {
			t.Error("expected absolute path")
		}
		if filepath.Base(result) != "metronome.toml" {
			t.Errorf("expected metronome.toml, got %s", filepath.Base(result))
		}
	})

	t.Run("fallback to config.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test2", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		// Create only config.toml
		os.WriteFile(filepath.Join(tmpDir, "test2", "config.toml"), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Error("expected to find config file")
		}
		if filepath.Base(result) != "config.toml" {
			t.Errorf("expected config.toml, got %s", filepath.Base(result))
		}
	})

	t.Run("no config found", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test3", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})
}

func TestGetDatabasePath(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	path := cfg.GetDatabasePath()
	if path != "metronome.db" {
		t.Errorf("expected default path 'metronome.db', got %q", path)
	}
}

func TestGetSchedulerConfig_Defaults(t *testing.T) {
	// Zero-valued scheduler section heals to operational defaults
	cfg := &Config{}

	sched := cfg.GetSchedulerConfig()

	if sched.Workers != 5 {
		t.Errorf("expected workers 5, got %d", sched.Workers)
	}
	if sched.PollIntervalMS != 1000 {
		t.Errorf("expected poll interval 1000, got %d", sched.PollIntervalMS)
	}
	if sched.LeaseDurationMS != 60000 {
		t.Errorf("expected lease duration 60000, got %d", sched.LeaseDurationMS)
	}
	if sched.HeartbeatIntervalMS != 5000 {
		t.Errorf("expected heartbeat interval 5000, got %d", sched.HeartbeatIntervalMS)
	}

	// 0 stays 0 where it means disabled
	if sched.MaxExecutionsPerMinute != 0 {
		t.Errorf("expected throttle to stay 0, got %d", sched.MaxExecutionsPerMinute)
	}
	if sched.StatsIntervalSeconds != 0 {
		t.Errorf("expected stats interval to stay 0, got %d", sched.StatsIntervalSeconds)
	}
}

func TestSchedulerConfigDurations(t *testing.T) {
	sched := SchedulerConfig{
		PollIntervalMS:       250,
		LeaseDurationMS:      60000,
		HeartbeatIntervalMS:  5000,
		LeaseSweepIntervalMS: 30000,
		StatsIntervalSeconds: 60,
	}

	if got := sched.PollInterval().Milliseconds(); got != 250 {
		t.Errorf("PollInterval() = %dms, want 250ms", got)
	}
	if got := sched.LeaseDuration().Seconds(); got != 60 {
		t.Errorf("LeaseDuration() = %fs, want 60s", got)
	}
	if got := sched.HeartbeatInterval().Seconds(); got != 5 {
		t.Errorf("HeartbeatInterval() = %fs, want 5s", got)
	}
	if got := sched.StatsInterval().Seconds(); got != 60 {
		t.Errorf("StatsInterval() = %fs, want 60s", got)
	}
}
