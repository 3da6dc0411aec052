package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/teranos/metronome/config"
	"github.com/teranos/metronome/sym"
	"gopkg.in/yaml.v3"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: sym.Config + " Manage metronome configuration",
	Long: sym.Config + ` config - manage metronome configuration.

Display and manage metronome configuration settings.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (METRONOME_* prefix)
3. Project config (./metronome.toml, searched up the directory tree)
4. User config (~/.metronome/metronome.toml)
5. System config (/etc/metronome/config.toml)
6. Default values

Examples:
  metronome config show                   # Show current configuration
  metronome config show --format json     # Show configuration in JSON format
  metronome config get database.path      # Get specific config value
  metronome config set scheduler.workers 8  # Persist a setting override
  metronome config validate               # Validate current configuration
  metronome config where                  # Show which files settings came from`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current metronome configuration from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, scheduler.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration override",
	Long: `Persist a configuration override to ~/.metronome/metronome_from_ui.toml.

Hand-edited config files are never rewritten; overrides land in the
tool-managed file, which sits above user and system config in the cascade.
A running daemon picks the change up through its config watcher.

Settable keys:
  scheduler.workers                    Worker pool size (restart to apply)
  scheduler.max_executions_per_minute  Per-node dispatch throttle (restart to apply)
  engine.webhook_url                   Webhook engine endpoint (restart to apply)
  logging.theme                        gruvbox or everforest (applies live)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current metronome configuration is valid",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which files were checked.

Lists all configuration sources in order of precedence, showing
which settings each active source contributed.`,
	RunE: runConfigWhere,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Marshal to requested format
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# metronome configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# metronome configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	// Check if key exists in configuration
	v := config.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	// Get the value as interface{} to preserve type
	value := config.Get(key)
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	switch key {
	case "scheduler.workers":
		workers, err := strconv.Atoi(value)
		if err != nil || workers < 0 {
			return fmt.Errorf("scheduler.workers must be a non-negative integer, got %q", value)
		}
		if err := config.UpdateSchedulerWorkers(workers); err != nil {
			return fmt.Errorf("failed to persist scheduler.workers: %w", err)
		}

	case "scheduler.max_executions_per_minute":
		max, err := strconv.Atoi(value)
		if err != nil || max < 0 {
			return fmt.Errorf("scheduler.max_executions_per_minute must be a non-negative integer, got %q", value)
		}
		if err := config.UpdateSchedulerMaxExecutionsPerMinute(max); err != nil {
			return fmt.Errorf("failed to persist scheduler.max_executions_per_minute: %w", err)
		}

	case "engine.webhook_url":
		if value == "" {
			return fmt.Errorf("engine.webhook_url cannot be empty")
		}
		if err := config.UpdateEngineWebhookURL(value); err != nil {
			return fmt.Errorf("failed to persist engine.webhook_url: %w", err)
		}

	case "logging.theme":
		if value != "gruvbox" && value != "everforest" {
			return fmt.Errorf("logging.theme must be gruvbox or everforest, got %q", value)
		}
		if err := config.UpdateLoggingTheme(value); err != nil {
			return fmt.Errorf("failed to persist logging.theme: %w", err)
		}

	default:
		return fmt.Errorf("key %q is not settable (settable: scheduler.workers, scheduler.max_executions_per_minute, engine.webhook_url, logging.theme)", key)
	}

	fmt.Printf("✓ Set %s = %s\n", key, value)
	fmt.Printf("  Written to %s\n", config.GetOverridesPath())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")

	counts := config.GetConfigSummary()
	order := []config.ConfigSource{
		config.SourceDefault,
		config.SourceSystem,
		config.SourceUser,
		config.SourceUserUI,
		config.SourceProject,
		config.SourceEnvironment,
	}
	for _, source := range order {
		if n := counts[source]; n > 0 {
			fmt.Printf("  %-12s %d settings\n", source, n)
		}
	}
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	intro, err := config.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]  Built-in defaults")
	fmt.Println("  2. [SYSTEM]   /etc/metronome/config.toml")
	fmt.Println("  3. [USER]     ~/.metronome/metronome.toml")
	fmt.Println("  4. [USER_UI]  ~/.metronome/metronome_from_ui.toml")
	fmt.Println("  5. [PROJECT]  ./metronome.toml (searches up directories)")
	fmt.Println("  6. [ENV]      METRONOME_* environment variables")
	fmt.Println()

	// Group settings by actual file path so two files at the same
	// cascade level stay distinguishable
	type fileGroup struct {
		source   config.ConfigSource
		path     string
		settings []config.SettingInfo
	}

	settingsByPath := make(map[string]*fileGroup)
	for _, setting := range intro.Settings {
		key := setting.SourcePath
		if key == "" {
			// For defaults and env vars, use source as key
			key = string(setting.Source)
		}

		if group, exists := settingsByPath[key]; exists {
			group.settings = append(group.settings, setting)
		} else {
			settingsByPath[key] = &fileGroup{
				source:   setting.Source,
				path:     setting.SourcePath,
				settings: []config.SettingInfo{setting},
			}
		}
	}

	// Cascade order for consistent output
	sourceOrder := []config.ConfigSource{
		config.SourceDefault,
		config.SourceSystem,
		config.SourceUser,
		config.SourceUserUI,
		config.SourceProject,
		config.SourceEnvironment,
	}

	fmt.Println("Active configuration:")
	for _, source := range sourceOrder {
		var groups []*fileGroup
		for _, group := range settingsByPath {
			if group.source == source && len(group.settings) > 0 {
				groups = append(groups, group)
			}
		}

		sort.Slice(groups, func(i, j int) bool {
			return groups[i].path < groups[j].path
		})

		for _, group := range groups {
			if group.path != "" {
				fmt.Printf("\n%s: %d settings from %s\n", source, len(group.settings), group.path)
			} else if source == config.SourceEnvironment {
				fmt.Printf("\n%s: %d settings from environment variables\n", source, len(group.settings))
			} else if source == config.SourceDefault {
				fmt.Printf("\n%s: %d settings\n", source, len(group.settings))
			}

			for _, setting := range group.settings {
				valueStr := fmt.Sprintf("%v", setting.Value)
				if len(valueStr) > 50 {
					valueStr = valueStr[:47] + "..."
				}
				fmt.Printf("  %s = %s\n", setting.Key, valueStr)
			}
		}
	}

	return nil
}
