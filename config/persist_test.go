package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readOverridesFile parses the overrides file for assertions
func readOverridesFile(t *testing.T) map[string]interface{} {
	t.Helper()

	data, err := os.ReadFile(GetOverridesPath())
	require.NoError(t, err)

	var config map[string]interface{}
	require.NoError(t, toml.Unmarshal(data, &config))
	return config
}

func TestUpdateOverrides(t *testing.T) {
	tempDir := t.TempDir()
	os.Setenv("HOME", tempDir)
	defer os.Unsetenv("HOME")

	t.Run("creates overrides file on first write", func(t *testing.T) {
		require.NoError(t, UpdateSchedulerWorkers(8))

		config := readOverridesFile(t)
		scheduler, ok := config["scheduler"].(map[string]interface{})
		require.True(t, ok, "scheduler section should exist")
		assert.EqualValues(t, 8, scheduler["workers"])
	})

	t.Run("preserves other sections on update", func(t *testing.T) {
		require.NoError(t, UpdateLoggingTheme("gruvbox"))

		config := readOverridesFile(t)
		scheduler, ok := config["scheduler"].(map[string]interface{})
		require.True(t, ok, "earlier scheduler section should survive")
		assert.EqualValues(t, 8, scheduler["workers"])

		logging, ok := config["logging"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "gruvbox", logging["theme"])
	})

	t.Run("updates existing key in place", func(t *testing.T) {
		require.NoError(t, UpdateSchedulerWorkers(2))

		config := readOverridesFile(t)
		scheduler := config["scheduler"].(map[string]interface{})
		assert.EqualValues(t, 2, scheduler["workers"])
	})

	t.Run("throttle and webhook overrides land in their sections", func(t *testing.T) {
		require.NoError(t, UpdateSchedulerMaxExecutionsPerMinute(120))
		require.NoError(t, UpdateEngineWebhookURL("http://localhost:9000/fire"))

		config := readOverridesFile(t)
		scheduler := config["scheduler"].(map[string]interface{})
		assert.EqualValues(t, 120, scheduler["max_executions_per_minute"])

		engine := config["engine"].(map[string]interface{})
		assert.Equal(t, "http://localhost:9000/fire", engine["webhook_url"])
	})
}

func TestCreateBackupRotation(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "metronome.toml")

	t.Run("no file means no backup", func(t *testing.T) {
		require.NoError(t, createBackup(configPath))

		_, err := os.Stat(configPath + ".back1")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("rotates three generations", func(t *testing.T) {
		// Write and back up four generations of content
		for _, content := range []string{"gen1", "gen2", "gen3", "gen4"} {
			require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
			require.NoError(t, createBackup(configPath))
		}

		// Most recent backup holds the latest backed-up content
		back1, err := os.ReadFile(configPath + ".back1")
		require.NoError(t, err)
		assert.Equal(t, "gen4", string(back1))

		back2, err := os.ReadFile(configPath + ".back2")
		require.NoError(t, err)
		assert.Equal(t, "gen3", string(back2))

		back3, err := os.ReadFile(configPath + ".back3")
		require.NoError(t, err)
		assert.Equal(t, "gen2", string(back3))

		// gen1 rotated off the end
		_, err = os.Stat(configPath + ".back4")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestIsBackupFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/.metronome/metronome.toml.back1", true},
		{"/home/user/.metronome/metronome.toml.back3", true},
		{"/home/user/.metronome/config.toml.back2", true},
		{"/home/user/.metronome/metronome_from_ui.toml.back1", true},
		{"/home/user/.metronome/metronome.toml", false},
		{"/home/user/.metronome/config.toml", false},
		{"/tmp/unrelated.toml", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isBackupFile(tt.path))
		})
	}
}
