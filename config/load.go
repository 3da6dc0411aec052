package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/metronome/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// ConfigSources records, per flattened key, which layer supplied the effective
// value. Rebuilt on every Load; introspection reads it.
var ConfigSources = map[string]SourceInfo{}

// Load reads the metronome configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix("METRONOME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific sensitive configuration values to environment variables
	BindSensitiveEnvVars(v)

	// Set defaults first
	SetDefaults(v)

	// Every key starts out tracked as a default
	trackDefaults(v)

	// Manually merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for metronome.toml or config.toml by walking up
// the directory tree. Returns the path to the first config file found, or
// empty string if none found. Preference order: metronome.toml > config.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Walk up the directory tree looking for config files
	for {
		metronomePath := filepath.Join(dir, "metronome.toml")
		if _, err := os.Stat(metronomePath); err == nil {
			return metronomePath
		}

		configPath := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, stop searching
			break
		}
		dir = parent
	}

	return ""
}

// WatchableConfigPath returns the highest-precedence config file currently
// present on disk, or empty when only defaults and env vars are in play.
// The daemon watches this file for live reload.
func WatchableConfigPath() string {
	if p := findProjectConfig(); p != "" {
		return p
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	metronomeDir := filepath.Join(homeDir, ".metronome")

	for _, p := range []string{
		filepath.Join(metronomeDir, "metronome_from_ui.toml"),
		filepath.Join(metronomeDir, "metronome.toml"),
		filepath.Join(metronomeDir, "config.toml"),
		"/etc/metronome/config.toml",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// configLayer pairs a config file path with the source type it represents
type configLayer struct {
	path   string
	source ConfigSource
}

// mergeConfigFiles manually merges configuration files in the correct precedence order
// Precedence (lowest to highest): system < user < user overrides < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	// Ensure ~/.metronome directory exists
	metronomeDir := filepath.Join(homeDir, ".metronome")
	os.MkdirAll(metronomeDir, DefaultDirPermissions)

	layers := []configLayer{
		{"/etc/metronome/config.toml", SourceSystem},
		{filepath.Join(metronomeDir, "config.toml"), SourceUser},
		{filepath.Join(metronomeDir, "metronome.toml"), SourceUser},
		{filepath.Join(metronomeDir, "metronome_from_ui.toml"), SourceUserUI},
	}

	// Add project config if found (highest file precedence, below env vars)
	if projectConfig := findProjectConfig(); projectConfig != "" {
		layers = append(layers, configLayer{projectConfig, SourceProject})
	}

	for _, layer := range layers {
		if _, err := os.Stat(layer.path); err != nil {
			continue
		}

		// Config file exists, merge it
		tempViper := viper.New()
		tempViper.SetConfigFile(layer.path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// Merge this layer into the main viper instance and record where
		// each key came from
		for key, value := range tempViper.AllSettings() {
			v.Set(key, value)
		}
		for _, key := range flattenKeys(tempViper.AllSettings(), "") {
			ConfigSources[key] = SourceInfo{Source: layer.source, Path: layer.path}
		}
	}
}

// trackDefaults records every defaulted key as coming from the built-in layer
func trackDefaults(v *viper.Viper) {
	for _, key := range flattenKeys(v.AllSettings(), "") {
		ConfigSources[key] = SourceInfo{Source: SourceDefault, Path: ""}
	}
}

// flattenKeys returns dotted key paths for every leaf in a nested settings map
func flattenKeys(settings map[string]interface{}, prefix string) []string {
	var keys []string
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(nested, fullKey)...)
			continue
		}
		keys = append(keys, fullKey)
	}
	return keys
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	v := initViper()
	return v.Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	v := initViper()
	return v.GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	v := initViper()
	return v.GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	v := initViper()
	return v.GetInt(key)
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	// Check for METRONOME_DB_PATH environment variable first (dev mode override)
	if dbPath := os.Getenv("METRONOME_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.GetDatabasePath(), nil
}
