package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teranos/metronome/config"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
	"github.com/teranos/metronome/scheduler"
	"github.com/teranos/metronome/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage metronome database",
	Long: sym.DB + ` db - manage metronome database operations.

Manage database operations including statistics and diagnostics.

Examples:
  metronome db stats              # Show scheduler statistics
  metronome db stats --limit 10   # Show last 10 execution records`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scheduler database statistics",
	Long:  "Display trigger counts by status, execution history, and system resource usage",
	RunE:  runDbStats,
}

var statsLimitFlag int

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().IntVar(&statsLimitFlag, "limit", 20, "Number of recent executions to show")
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	// Basic row counts
	var totalDefinitions, totalTriggers, totalExecutions int
	err = database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM job_definitions),
			(SELECT COUNT(*) FROM job_triggers),
			(SELECT COUNT(*) FROM trigger_executions)
	`).Scan(&totalDefinitions, &totalTriggers, &totalExecutions)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query row counts: %w", err)
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:   %s\n", cfg.GetDatabasePath())
	fmt.Printf("Job Definitions: %d\n", totalDefinitions)
	fmt.Printf("Job Triggers:    %d\n", totalTriggers)
	fmt.Printf("Executions:      %d\n", totalExecutions)
	fmt.Println()

	// Trigger lifecycle breakdown
	triggers := scheduler.NewTriggerStore(database, nil)
	counts, err := triggers.CountByStatus()
	if err != nil {
		return fmt.Errorf("failed to count triggers by status: %w", err)
	}

	fmt.Printf("Triggers by status:\n")
	for _, status := range []scheduler.TriggerStatus{
		scheduler.TriggerStatusRunnable,
		scheduler.TriggerStatusRunning,
		scheduler.TriggerStatusPaused,
		scheduler.TriggerStatusComplete,
		scheduler.TriggerStatusError,
	} {
		fmt.Printf("  %s %-9s %d\n", sym.StatusGlyph(string(status)), status, counts[status])
	}
	fmt.Println()

	// System resource snapshot from an unstarted loop over the same
	// database; workers are idle here, memory numbers are live.
	loop := scheduler.NewLoop(context.Background(), database, scheduler.NewRegistry(), nil,
		loopConfigFrom(cfg.GetSchedulerConfig()), logger.Logger)
	stats := loop.GetSystemStats()

	fmt.Printf("System:\n")
	fmt.Printf("  Configured workers: %d\n", stats.WorkersTotal)
	fmt.Printf("  Process RSS:        %.1f MB\n", stats.ProcessRSSMB)
	fmt.Printf("  Memory:             %.1f/%.1f GB (%.0f%%)\n",
		stats.MemoryUsedGB, stats.MemoryTotalGB, stats.MemoryPercent)
	fmt.Println()

	// Recent executions across every trigger; ListByTrigger scopes to one
	// trigger, so the cross-trigger view queries directly.
	rows, err := database.Query(`
		SELECT id, trigger_id, node_id, status, started_at, duration_ms
		FROM trigger_executions
		ORDER BY started_at DESC
		LIMIT ?
	`, statsLimitFlag)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query executions: %w", err)
	}
	if err == nil {
		defer rows.Close()

		var (
			hasRows   bool
			completed int
			failed    int
			deferred  int
		)

		fmt.Printf("Recent Executions (last %d):\n", statsLimitFlag)
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

		for rows.Next() {
			hasRows = true
			var (
				id         string
				triggerID  string
				nodeID     string
				status     string
				startedAt  string
				durationMs sql.NullInt64
			)
			if err := rows.Scan(&id, &triggerID, &nodeID, &status, &startedAt, &durationMs); err != nil {
				return fmt.Errorf("failed to scan execution: %w", err)
			}

			switch status {
			case scheduler.ExecutionStatusCompleted:
				completed++
			case scheduler.ExecutionStatusFailed:
				failed++
			case scheduler.ExecutionStatusDeferred:
				deferred++
			}

			duration := "-"
			if durationMs.Valid {
				duration = fmt.Sprintf("%dms", durationMs.Int64)
			}

			fmt.Printf("  [%s] %s %-9s trigger=%s node=%s (%s)\n",
				displayStoredTime(startedAt),
				sym.StatusGlyph(status),
				status,
				truncate(triggerID, 12),
				truncate(nodeID, 20),
				duration,
			)
		}

		if !hasRows {
			fmt.Println("  No executions recorded yet")
		} else {
			fmt.Println()
			fmt.Printf("Execution Summary:\n")
			fmt.Printf("  Completed: %d\n", completed)
			fmt.Printf("  Failed:    %d\n", failed)
			fmt.Printf("  Deferred:  %d\n", deferred)
		}
	}

	return nil
}

// displayStoredTime trims a stored RFC3339 timestamp to date and seconds.
func displayStoredTime(stored string) string {
	if len(stored) >= 19 {
		return stored[:10] + " " + stored[11:19]
	}
	return stored
}
