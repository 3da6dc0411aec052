package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/config"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
	"github.com/teranos/metronome/processor"
	"github.com/teranos/metronome/scheduler"
	"github.com/teranos/metronome/sym"
)

// StartCmd runs the scheduler daemon in the foreground.
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: sym.Sched + " Start the scheduler daemon",
	Long: sym.Sched + ` Start the scheduler daemon in foreground mode.

The daemon will:
- Claim due triggers from the shared database, oldest first
- Execute event processors through the configured engine
- Renew leases on a heartbeat while executions run
- Recover leases abandoned by crashed nodes
- Run until interrupted (Ctrl+C) with graceful shutdown

Multiple daemons may share one database. The lease protocol ensures each
trigger fires on exactly one node at a time, so adding nodes adds capacity
without double execution.

Example:
  metronome start               # Start with configured settings
  metronome start --workers 3   # Override the worker count`,
	RunE: runStart,
}

var (
	startWorkers int
	startDBPath  string
	startNodeID  string
)

func init() {
	StartCmd.Flags().IntVar(&startWorkers, "workers", 0, "Number of concurrent workers (overrides config)")
	StartCmd.Flags().StringVar(&startDBPath, "db-path", "", "Custom database path (overrides config)")
	StartCmd.Flags().StringVar(&startNodeID, "node-id", "", "Stable node identity (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Default to 1 (Info) so the daemon reports what it is doing
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	// The pre-run hook initialized console output at the default level;
	// rebuild with the daemon's verbosity, output format, and theme.
	if err := logger.InitializeWithVerbosity(cfg.Logging.JSON, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	logger.SetTheme(cfg.GetLoggingTheme())

	database, err := openDatabase(startDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	loopCfg := loopConfigFrom(cfg.GetSchedulerConfig())
	if startWorkers > 0 {
		loopCfg.Workers = startWorkers
	}
	if startNodeID != "" {
		loopCfg.NodeID = startNodeID
	}

	clk := clock.System()

	engine, err := processor.NewEngineFromConfig(cfg.Engine, clk, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to configure engine")
	}

	registry := scheduler.NewRegistry()
	if err := processor.RegisterExecutionJob(registry, engine, clk, logger.Logger); err != nil {
		return errors.Wrap(err, "failed to register job types")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := scheduler.NewLoop(ctx, database, registry, clk, loopCfg, logger.Logger)
	loop.Start()

	if watcher := setupConfigWatcher(cfg); watcher != nil {
		defer watcher.Stop()
	}

	printStartupBanner(verbosity, resolveDBPath(startDBPath))

	fmt.Printf("%s Scheduler started\n", sym.DaemonUp)
	fmt.Printf("  Node:           %s\n", loop.NodeID())
	fmt.Printf("  Workers:        %d\n", loop.Workers())
	fmt.Printf("  Poll interval:  %v\n", loopCfg.PollInterval)
	fmt.Printf("  Lease duration: %v\n", loopCfg.LeaseDuration)
	fmt.Printf("  Engine:         %s\n", engineLabel(cfg.Engine))
	if logger.ShouldOutput(verbosity, logger.OutputConfig) {
		fmt.Printf("  Heartbeat:      %v\n", loopCfg.HeartbeatInterval)
		fmt.Printf("  Lease sweep:    %v\n", loopCfg.LeaseSweepInterval)
		fmt.Printf("  Throttle:       %s\n", throttleLabel(loopCfg.MaxExecutionsPerMinute))
		fmt.Printf("  Retention:      %s\n", retentionLabel(loopCfg.ExecutionRetentionDays))
	}
	fmt.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Sched)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Printf("\n%s Shutting down gracefully (press Ctrl+C again to force)...\n", sym.DaemonDown)

	// Stop returns claimed triggers to runnable; bound the wait with a
	// second Ctrl+C for stuck engines.
	shutdownDone := make(chan struct{})
	go func() {
		loop.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		stats := loop.Stats()
		pterm.Success.Printf("%s Scheduler stopped (claimed %d, completed %d, failed %d, deferred %d)\n",
			sym.DaemonDown, stats.Claimed, stats.Completed, stats.Failed, stats.Deferred)
		return nil
	case <-sigChan:
		pterm.Warning.Println("\nForce shutdown - exiting immediately")
		os.Exit(1)
		return nil // unreachable
	}
}

// loopConfigFrom maps the file configuration onto the loop's runtime
// config. Zero intervals pass through; NewLoop applies its own defaults.
func loopConfigFrom(sc config.SchedulerConfig) scheduler.LoopConfig {
	return scheduler.LoopConfig{
		NodeID:                 sc.NodeID,
		Workers:                sc.Workers,
		PollInterval:           sc.PollInterval(),
		LeaseDuration:          sc.LeaseDuration(),
		HeartbeatInterval:      sc.HeartbeatInterval(),
		LeaseSweepInterval:     sc.LeaseSweepInterval(),
		MaxExecutionsPerMinute: sc.MaxExecutionsPerMinute,
		StatsInterval:          sc.StatsInterval(),
		ExecutionRetentionDays: sc.ExecutionRetentionDays,
	}
}

// setupConfigWatcher hooks config file watching into the running daemon.
// The logging theme applies live; anything touching the loop, engine, or
// database needs a restart and is logged as such. Returns nil when no
// config file exists to watch.
func setupConfigWatcher(cfg *config.Config) *config.ConfigWatcher {
	configPath := config.WatchableConfigPath()
	if configPath == "" {
		logger.Infow("No config file found, live reload disabled")
		return nil
	}

	watcher, err := config.NewConfigWatcher(configPath)
	if err != nil {
		logger.Warnw("Config watching unavailable, restart to apply changes",
			"file", configPath, "error", err)
		return nil
	}

	// Set global watcher so override writes from this process are ignored
	config.SetGlobalWatcher(watcher)

	watcher.OnReload(func(newCfg *config.Config) error {
		if err := newCfg.Validate(); err != nil {
			return errors.Wrap(err, "reloaded config rejected, keeping current settings")
		}

		logger.SetTheme(newCfg.GetLoggingTheme())

		if loopConfigFrom(newCfg.GetSchedulerConfig()) != loopConfigFrom(cfg.GetSchedulerConfig()) ||
			newCfg.Engine != cfg.Engine ||
			newCfg.Database.Path != cfg.Database.Path ||
			newCfg.Logging.JSON != cfg.Logging.JSON {
			logger.Infow("Scheduler, engine, or database settings changed; restart the daemon to apply them")
		}
		return nil
	})

	watcher.Start()
	logger.Infow("Config watcher started", "file", configPath)
	return watcher
}

// engineLabel summarizes the engine configuration for startup output.
func engineLabel(ec config.EngineConfig) string {
	switch ec.Type {
	case processor.EngineTypeWebhook:
		return fmt.Sprintf("webhook (%s)", ec.WebhookURL)
	case processor.EngineTypeExec:
		return fmt.Sprintf("exec (%s)", ec.ExecCommand)
	default:
		return "noop (log only)"
	}
}

func throttleLabel(perMinute int) string {
	if perMinute <= 0 {
		return "unthrottled"
	}
	return fmt.Sprintf("%d executions/minute", perMinute)
}

func retentionLabel(days int) string {
	if days <= 0 {
		return "keep forever"
	}
	return fmt.Sprintf("%d days", days)
}
