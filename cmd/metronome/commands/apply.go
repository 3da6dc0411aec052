package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/logger"
	"github.com/teranos/metronome/scheduler"
	"github.com/teranos/metronome/sym"
)

// ApplyCmd declares job definitions and triggers from a TOML manifest
var ApplyCmd = &cobra.Command{
	Use:   "apply <manifest.toml>",
	Short: sym.Manifest + " Apply a job manifest",
	Long: sym.Manifest + ` Apply - declare job definitions from a TOML manifest.

Each [definitions.<id>] section upserts one job definition; its [.trigger]
section declares the schedule. Definitions are updated in place on
re-apply, but existing triggers are left untouched so live scheduling
state (nextTime, trigger data, leases) survives.

Manifest format:
  [definitions.hourly-report]
  title = "Hourly report"
  job_type = "event-processor-execution"
  config = '''
  {"processor_id": "report", "processing_window_ms": 3600000, "processing_hop_ms": 3600000,
   "parameters": {"timerange": {"from": "2026-01-01T00:00:00Z", "to": "2026-01-01T01:00:00Z"}}}
  '''

  [definitions.hourly-report.trigger]
  schedule = "interval"
  amount = 1
  unit = "hours"

Examples:
  metronome apply jobs.toml             # Apply the manifest
  metronome apply jobs.toml --dry-run   # Validate without writing`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var applyDryRun bool

func init() {
	ApplyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate the manifest without writing anything")
}

func runApply(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]

	manifest, err := scheduler.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	if applyDryRun {
		pterm.Success.Printf("%s Manifest %s is valid (%d definition(s))\n", sym.Manifest, manifestPath, len(manifest.Definitions))
		return nil
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	applier := scheduler.NewApplier(database, clock.System(), logger.Logger)
	result, err := applier.Apply(manifest)
	if err != nil {
		return fmt.Errorf("failed to apply manifest: %w", err)
	}

	pterm.Success.Printf("%s Applied %s\n", sym.Manifest, manifestPath)
	fmt.Printf("  Definitions applied: %d\n", result.DefinitionsApplied)
	fmt.Printf("  Triggers created:    %d\n", result.TriggersCreated)
	fmt.Printf("  Triggers kept:       %d\n", result.TriggersKept)
	return nil
}
