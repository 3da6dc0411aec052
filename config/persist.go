package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", "path", back3, "error", err)
	}

	// Rotate .back2 to .back3
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	// Rotate .back1 to .back2
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	// Copy current to .back1
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetOverridesPath returns the path to the tool-managed overrides file in
// ~/.metronome/metronome_from_ui.toml. Hand-edited config files are never
// rewritten; persisted settings land here instead.
func GetOverridesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".metronome", "metronome_from_ui.toml")
}

// loadOrInitializeOverrides loads the overrides file, or starts an empty one
// if it doesn't exist
func loadOrInitializeOverrides() (map[string]interface{}, string, error) {
	configPath := GetOverridesPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	// Ensure ~/.metronome directory exists
	metronomeDir := filepath.Dir(configPath)
	if err := os.MkdirAll(metronomeDir, 0750); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .metronome directory")
	}

	// Try to read existing config
	var config map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		// File exists, parse it
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse overrides file")
		}
	} else {
		// File doesn't exist, create empty config
		config = make(map[string]interface{})
	}

	return config, configPath, nil
}

// saveOverrides writes the overrides to disk with backup
func saveOverrides(config map[string]interface{}, configPath string) error {
	// Create backup
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// Marshal to TOML
	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	// Write to file
	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write overrides file")
	}

	return nil
}

// setOverride updates one key in one section of the overrides file
func setOverride(section, key string, value interface{}) error {
	config, configPath, err := loadOrInitializeOverrides()
	if err != nil {
		return errors.Wrap(err, "failed to load overrides")
	}

	var sectionMap map[string]interface{}
	if s, ok := config[section].(map[string]interface{}); ok {
		sectionMap = s
	} else {
		sectionMap = make(map[string]interface{})
	}

	sectionMap[key] = value
	config[section] = sectionMap

	return saveOverrides(config, configPath)
}

// UpdateSchedulerWorkers persists the worker pool size
func UpdateSchedulerWorkers(workers int) error {
	return setOverride("scheduler", "workers", workers)
}

// UpdateSchedulerMaxExecutionsPerMinute persists the per-node dispatch throttle
func UpdateSchedulerMaxExecutionsPerMinute(max int) error {
	return setOverride("scheduler", "max_executions_per_minute", max)
}

// UpdateLoggingTheme persists the console log theme
func UpdateLoggingTheme(theme string) error {
	return setOverride("logging", "theme", theme)
}

// UpdateEngineWebhookURL persists the webhook engine endpoint
func UpdateEngineWebhookURL(url string) error {
	return setOverride("engine", "webhook_url", url)
}
