package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/metronome/cmd/metronome/commands"
	"github.com/teranos/metronome/logger"
)

var rootCmd = &cobra.Command{
	Use:   "metronome",
	Short: "Metronome - cluster-wide scheduler for event processors",
	Long: `Metronome - cluster-wide scheduler driving recurring event processors.

Metronome keeps a shared SQLite database of job definitions and triggers.
Any number of daemon nodes poll that database; a lease protocol ensures
each due trigger fires on exactly one node at a time, and leases abandoned
by crashed nodes are recovered automatically.

Available commands:
  start   - Run the scheduler daemon in the foreground
  trigger - Inspect and manage job triggers
  apply   - Declare job definitions from a TOML manifest
  config  - Manage metronome configuration
  db      - Database statistics and diagnostics

Examples:
  metronome apply jobs.toml       # Declare definitions and triggers
  metronome start                 # Start the scheduler daemon
  metronome trigger ls            # List triggers and their next fire times
  metronome trigger pause <id>    # Suspend a trigger
  metronome db stats              # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize global logger before any command runs.
		// Skip for commands whose output must stay clean (like 'config show').
		if cmd.Name() != "show" {
			if err := logger.Initialize(false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	// Add commands
	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.TriggerCmd)
	rootCmd.AddCommand(commands.ApplyCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
