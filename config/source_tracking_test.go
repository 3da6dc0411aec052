package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBasicSourceTracking tests that source tracking works for defined config fields
func TestBasicSourceTracking(t *testing.T) {
	t.Run("metronome.toml vs config.toml precedence", func(t *testing.T) {
		// Reset global state
		Reset()
		defer Reset()

		// Create temp directory
		tempDir := t.TempDir()
		metronomeDir := filepath.Join(tempDir, ".metronome")
		require.NoError(t, os.MkdirAll(metronomeDir, 0755))

		// Create config.toml
		configToml := `
[database]
path = "config.db"

[scheduler]
workers = 3
`
		require.NoError(t, os.WriteFile(
			filepath.Join(metronomeDir, "config.toml"),
			[]byte(configToml),
			0644,
		))

		// Create metronome.toml that overrides database.path
		metronomeToml := `
[database]
path = "metronome-user.db"
`
		require.NoError(t, os.WriteFile(
			filepath.Join(metronomeDir, "metronome.toml"),
			[]byte(metronomeToml),
			0644,
		))

		// Set environment
		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(tempDir)
		os.Setenv("HOME", tempDir)
		defer os.Unsetenv("HOME")

		// Load configuration
		cfg, err := Load()
		require.NoError(t, err)

		// Verify metronome.toml won
		assert.Equal(t, "metronome-user.db", cfg.Database.Path, "metronome.toml should win over config.toml")

		// Verify source tracking
		assert.Equal(t, SourceUser, ConfigSources["database.path"].Source)
		assert.Contains(t, ConfigSources["database.path"].Path, "metronome.toml")

		// Verify scheduler.workers from config.toml is tracked
		assert.Equal(t, 3, cfg.Scheduler.Workers)
		assert.Equal(t, SourceUser, ConfigSources["scheduler.workers"].Source)
		assert.Contains(t, ConfigSources["scheduler.workers"].Path, "config.toml")
	})

	t.Run("Default values are tracked", func(t *testing.T) {
		// Reset global state
		Reset()
		defer Reset()

		// Create empty temp directory (no configs)
		tempDir := t.TempDir()
		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(tempDir)
		os.Setenv("HOME", tempDir)
		defer os.Unsetenv("HOME")

		// Load configuration (all defaults)
		cfg, err := Load()
		require.NoError(t, err)

		// Check a known default
		assert.Equal(t, 1000, cfg.Scheduler.PollIntervalMS)

		// Verify it's tracked as default
		source, exists := ConfigSources["scheduler.poll_interval_ms"]
		assert.True(t, exists, "Default should be tracked")
		assert.Equal(t, SourceDefault, source.Source)
		assert.Equal(t, "", source.Path, "Defaults have no path")
	})

	t.Run("Multiple files at same level", func(t *testing.T) {
		// Reset global state
		Reset()
		defer Reset()

		// Create temp directory
		tempDir := t.TempDir()
		metronomeDir := filepath.Join(tempDir, ".metronome")
		require.NoError(t, os.MkdirAll(metronomeDir, 0755))

		// Create config.toml with engine settings
		configToml := `
[engine]
timeout_seconds = 90
`
		require.NoError(t, os.WriteFile(
			filepath.Join(metronomeDir, "config.toml"),
			[]byte(configToml),
			0644,
		))

		// Create metronome.toml with different settings
		metronomeToml := `
[database]
path = "test.db"
`
		require.NoError(t, os.WriteFile(
			filepath.Join(metronomeDir, "metronome.toml"),
			[]byte(metronomeToml),
			0644,
		))

		// Set environment
		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(tempDir)
		os.Setenv("HOME", tempDir)
		defer os.Unsetenv("HOME")

		// Load configuration
		_, err := Load()
		require.NoError(t, err)

		// Verify each setting tracks to correct file
		dbSource := ConfigSources["database.path"]
		assert.Equal(t, SourceUser, dbSource.Source)
		assert.Contains(t, dbSource.Path, "metronome.toml")

		engineSource := ConfigSources["engine.timeout_seconds"]
		assert.Equal(t, SourceUser, engineSource.Source)
		assert.Contains(t, engineSource.Path, "config.toml")
	})
}

// TestIntrospectionConsistency verifies introspection matches loaded config
func TestIntrospectionConsistency(t *testing.T) {
	// Reset global state
	Reset()
	defer Reset()

	// Create temp directory with config
	tempDir := t.TempDir()
	metronomeDir := filepath.Join(tempDir, ".metronome")
	require.NoError(t, os.MkdirAll(metronomeDir, 0755))

	metronomeToml := `
[database]
path = "introspect.db"

[scheduler]
workers = 2
`
	require.NoError(t, os.WriteFile(
		filepath.Join(metronomeDir, "metronome.toml"),
		[]byte(metronomeToml),
		0644,
	))

	// Set environment
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(tempDir)
	os.Setenv("HOME", tempDir)
	defer os.Unsetenv("HOME")

	// Load configuration
	cfg, err := Load()
	require.NoError(t, err)

	// Get introspection
	intro, err := GetConfigIntrospection()
	require.NoError(t, err)

	// Build a map for easier lookup
	settings := make(map[string]*SettingInfo)
	for i := range intro.Settings {
		settings[intro.Settings[i].Key] = &intro.Settings[i]
	}

	// Verify database.path
	dbSetting := settings["database.path"]
	require.NotNil(t, dbSetting)
	assert.Equal(t, cfg.Database.Path, dbSetting.Value)
	assert.Equal(t, SourceUser, dbSetting.Source)
	assert.Contains(t, dbSetting.SourcePath, "metronome.toml")

	// Verify scheduler.workers
	workerSetting := settings["scheduler.workers"]
	require.NotNil(t, workerSetting)
	assert.Equal(t, SourceUser, workerSetting.Source)
	assert.Contains(t, workerSetting.SourcePath, "metronome.toml")
}
