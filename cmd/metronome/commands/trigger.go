package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/teranos/metronome/scheduler"
	"github.com/teranos/metronome/sym"
)

// displayTimeLayout is how the CLI renders stored timestamps.
const displayTimeLayout = "2006-01-02 15:04:05"

// TriggerCmd represents the trigger command - trigger operations
var TriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: sym.Trigger + " Manage job triggers",
	Long: sym.Trigger + ` Trigger - inspect and manage job triggers.

A trigger schedules executions of a job definition. Triggers move through
a small lifecycle: runnable (waiting to become due), running (a node holds
the lease), paused (suspended by an operator), complete (no further
execution), and error (parked until reset).

Trigger management commands:
  metronome trigger ls              # List triggers
  metronome trigger show <id>       # Show trigger details
  metronome trigger pause <id>      # Suspend a runnable trigger
  metronome trigger resume <id>     # Resume a paused trigger
  metronome trigger reset <id>      # Return an errored trigger to runnable
  metronome trigger history <id>    # Show the trigger's execution history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// TriggerLsCmd lists triggers
var TriggerLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List job triggers",
	Long: `List job triggers, optionally filtered by status.

Status filters:
  runnable - Triggers waiting to become due
  running  - Triggers currently leased by a node
  paused   - Triggers suspended by an operator
  complete - Triggers with no further execution
  error    - Triggers parked after a failure

Examples:
  metronome trigger ls                    # List all triggers
  metronome trigger ls --status error     # List only parked triggers
  metronome trigger ls --limit 50         # Show up to 50 triggers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runTriggerLs(statusFilter, limit)
	},
}

// TriggerShowCmd shows the details of one trigger
var TriggerShowCmd = &cobra.Command{
	Use:   "show <trigger-id>",
	Short: "Show details of a trigger",
	Long: `Display detailed information for a trigger:
- Definition, job type, and schedule
- Current status and next fire time
- Lease holder and expiry while running
- Last error for parked triggers
- Opaque trigger data maintained by the job type

Example:
  metronome trigger show 6e3115bc-0d0b-4837-a336-4bc2ba337e79`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerShow(args[0])
	},
}

// TriggerPauseCmd pauses a trigger
var TriggerPauseCmd = &cobra.Command{
	Use:   "pause <trigger-id>",
	Short: "Pause a runnable trigger",
	Long: `Pause a runnable trigger. Paused triggers are never claimed; resume
later with 'metronome trigger resume'.

A running trigger cannot be paused mid-execution. Wait for the current
execution to finish, then pause.

Example:
  metronome trigger pause 6e3115bc-0d0b-4837-a336-4bc2ba337e79`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerPause(args[0])
	},
}

// TriggerResumeCmd resumes a paused trigger
var TriggerResumeCmd = &cobra.Command{
	Use:   "resume <trigger-id>",
	Short: "Resume a paused trigger",
	Long: `Resume a paused trigger. The trigger keeps its nextTime, so a trigger
that became due while paused fires on the next claim pass.

Example:
  metronome trigger resume 6e3115bc-0d0b-4837-a336-4bc2ba337e79`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerResume(args[0])
	},
}

// TriggerResetCmd returns an errored trigger to runnable
var TriggerResetCmd = &cobra.Command{
	Use:   "reset <trigger-id>",
	Short: "Reset an errored trigger to runnable",
	Long: `Return a trigger parked in the error state to runnable. The stored
nextTime is preserved, so an overdue trigger fires on the next claim pass.

Inspect the failure first:
  metronome trigger show <id>       # Last error message
  metronome trigger history <id>    # Failed execution records

Example:
  metronome trigger reset 6e3115bc-0d0b-4837-a336-4bc2ba337e79`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerReset(args[0])
	},
}

// TriggerHistoryCmd lists a trigger's execution records
var TriggerHistoryCmd = &cobra.Command{
	Use:   "history <trigger-id>",
	Short: "Show execution history for a trigger",
	Long: `List the audit trail of executions for a trigger: which node ran it,
over what processing range, for how long, and how it ended.

Status filters:
  running   - Executions still in flight
  completed - Executions that succeeded
  failed    - Executions that returned an error
  deferred  - Executions skipped because the window was still open

Examples:
  metronome trigger history 6e3115bc-0d0b-4837-a336-4bc2ba337e79
  metronome trigger history 6e3115bc-0d0b-4837-a336-4bc2ba337e79 --status failed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runTriggerHistory(args[0], statusFilter, limit)
	},
}

func init() {
	TriggerLsCmd.Flags().String("status", "", "Filter by status (runnable, running, paused, complete, error)")
	TriggerLsCmd.Flags().Int("limit", 20, "Maximum number of triggers to display")

	TriggerHistoryCmd.Flags().String("status", "", "Filter by status (running, completed, failed, deferred)")
	TriggerHistoryCmd.Flags().Int("limit", 20, "Maximum number of executions to display")

	TriggerCmd.AddCommand(TriggerLsCmd)
	TriggerCmd.AddCommand(TriggerShowCmd)
	TriggerCmd.AddCommand(TriggerPauseCmd)
	TriggerCmd.AddCommand(TriggerResumeCmd)
	TriggerCmd.AddCommand(TriggerResetCmd)
	TriggerCmd.AddCommand(TriggerHistoryCmd)
}

// runTriggerLs lists triggers
func runTriggerLs(statusFilter string, limit int) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	triggers := scheduler.NewTriggerStore(database, nil)

	// Convert status filter to pointer (empty string = nil = all triggers)
	var status *scheduler.TriggerStatus
	if statusFilter != "" {
		s := scheduler.TriggerStatus(statusFilter)
		if !s.Valid() {
			return fmt.Errorf("unknown status %q (runnable, running, paused, complete, error)", statusFilter)
		}
		status = &s
	}

	list, err := triggers.List(status, limit)
	if err != nil {
		return fmt.Errorf("failed to list triggers: %w", err)
	}

	if len(list) == 0 {
		fmt.Printf("%s No triggers found\n", sym.Trigger)
		return nil
	}

	// Print table header
	fmt.Printf("%-38s %-10s %-25s %-20s %s\n", "TRIGGER ID", "STATUS", "DEFINITION", "NEXT TIME", "OWNER")
	fmt.Printf("%-38s %-10s %-25s %-20s %s\n", "----------", "------", "----------", "---------", "-----")

	// Print triggers
	for _, trigger := range list {
		fmt.Printf("%-38s %s %-8s %-25s %-20s %s\n",
			trigger.ID,
			sym.StatusGlyph(string(trigger.Status)),
			trigger.Status,
			truncate(trigger.JobDefinitionID, 25),
			formatOptionalTime(trigger.NextTime),
			valueOrDash(trigger.LockOwner))
	}

	fmt.Printf("\nTotal: %d trigger(s)\n", len(list))
	return nil
}

// runTriggerShow displays detailed information for a trigger
func runTriggerShow(triggerID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	triggers := scheduler.NewTriggerStore(database, nil)
	trigger, err := triggers.Get(triggerID)
	if err != nil {
		return fmt.Errorf("failed to get trigger: %w", err)
	}

	fmt.Printf("%s Trigger ID: %s\n", sym.Trigger, trigger.ID)
	fmt.Printf("  Definition: %s\n", trigger.JobDefinitionID)

	// The definition carries the human-readable title and job type
	definitions := scheduler.NewDefinitionStore(database, nil)
	if def, defErr := definitions.Get(trigger.JobDefinitionID); defErr == nil {
		fmt.Printf("  Title:      %s\n", def.Title)
		fmt.Printf("  Job type:   %s\n", def.JobType)
	}

	fmt.Printf("  Schedule:   %s\n", trigger.Schedule.String())
	fmt.Printf("  Status:     %s %s\n", sym.StatusGlyph(string(trigger.Status)), trigger.Status)
	fmt.Printf("\n")

	fmt.Printf("Next time:  %s\n", formatOptionalTime(trigger.NextTime))
	fmt.Printf("Start time: %s\n", trigger.StartTime.Format(displayTimeLayout))
	fmt.Printf("\n")

	if trigger.LockOwner != "" {
		fmt.Printf("Lease owner:  %s\n", trigger.LockOwner)
		fmt.Printf("Lease expiry: %s\n", formatOptionalTime(trigger.LockExpiresAt))
		fmt.Printf("\n")
	}

	if trigger.LastError != "" {
		fmt.Printf("Last error: %s\n", trigger.LastError)
		fmt.Printf("\n")
	}

	if len(trigger.Data) > 0 {
		fmt.Printf("Data: %s\n", string(trigger.Data))
		fmt.Printf("\n")
	}

	fmt.Printf("Created: %s\n", trigger.CreatedAt.Format(displayTimeLayout))
	fmt.Printf("Updated: %s\n", trigger.UpdatedAt.Format(displayTimeLayout))
	return nil
}

// runTriggerPause pauses a trigger
func runTriggerPause(triggerID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	triggers := scheduler.NewTriggerStore(database, nil)
	if err := triggers.Pause(triggerID); err != nil {
		return fmt.Errorf("failed to pause trigger: %w", err)
	}

	fmt.Printf("%s Trigger %s paused\n", sym.Trigger, triggerID)
	return nil
}

// runTriggerResume resumes a paused trigger
func runTriggerResume(triggerID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	triggers := scheduler.NewTriggerStore(database, nil)
	if err := triggers.Resume(triggerID); err != nil {
		return fmt.Errorf("failed to resume trigger: %w", err)
	}

	fmt.Printf("%s Trigger %s resumed\n", sym.Trigger, triggerID)
	return nil
}

// runTriggerReset returns an errored trigger to runnable
func runTriggerReset(triggerID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	triggers := scheduler.NewTriggerStore(database, nil)
	if err := triggers.ResetError(triggerID); err != nil {
		return fmt.Errorf("failed to reset trigger: %w", err)
	}

	fmt.Printf("%s Trigger %s reset to runnable\n", sym.Trigger, triggerID)
	return nil
}

// runTriggerHistory lists execution records for a trigger
func runTriggerHistory(triggerID, statusFilter string, limit int) error {
	switch statusFilter {
	case "", scheduler.ExecutionStatusRunning, scheduler.ExecutionStatusCompleted,
		scheduler.ExecutionStatusFailed, scheduler.ExecutionStatusDeferred:
	default:
		return fmt.Errorf("unknown status %q (running, completed, failed, deferred)", statusFilter)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	executions := scheduler.NewExecutionStore(database, nil)
	list, total, err := executions.ListByTrigger(triggerID, limit, 0, statusFilter)
	if err != nil {
		return fmt.Errorf("failed to list executions: %w", err)
	}

	if len(list) == 0 {
		fmt.Printf("%s No executions recorded for trigger %s\n", sym.Trigger, triggerID)
		return nil
	}

	// Print table header
	fmt.Printf("%-38s %-11s %-20s %-20s %-20s %s\n", "EXECUTION ID", "STATUS", "NODE", "RANGE FROM", "RANGE TO", "DURATION")
	fmt.Printf("%-38s %-11s %-20s %-20s %-20s %s\n", "------------", "------", "----", "----------", "--------", "--------")

	// Print executions
	for _, exec := range list {
		fmt.Printf("%-38s %s %-9s %-20s %-20s %-20s %s\n",
			exec.ID,
			sym.StatusGlyph(exec.Status),
			exec.Status,
			truncate(exec.NodeID, 20),
			formatOptionalTime(exec.RangeFrom),
			formatOptionalTime(exec.RangeTo),
			formatDuration(exec.DurationMs))
	}

	fmt.Printf("\nShowing %d of %d execution(s)\n", len(list), total)
	return nil
}

// formatOptionalTime renders a nullable timestamp, "-" when absent.
func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(displayTimeLayout)
}

// formatDuration renders an execution duration, "-" while still running.
func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

// valueOrDash substitutes "-" for empty strings in table cells.
func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
