package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/db"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/internal/util"
	"github.com/teranos/metronome/logger"
)

const (
	// maxConsecutiveErrors is how many worker passes may fail before the
	// worker starts backing off.
	maxConsecutiveErrors = 5
	// maxWorkerBackoff caps the doubling error backoff.
	maxWorkerBackoff = 30 * time.Second
	// stopTimeout bounds how long Stop waits for workers to finish.
	stopTimeout = 30 * time.Second
	// executionCleanupInterval is how often the retention sweep runs.
	executionCleanupInterval = time.Hour
)

// LoopConfig configures the scheduler loop.
type LoopConfig struct {
	NodeID                 string        `json:"node_id"`
	Workers                int           `json:"workers"`
	PollInterval           time.Duration `json:"poll_interval"`
	LeaseDuration          time.Duration `json:"lease_duration"`
	HeartbeatInterval      time.Duration `json:"heartbeat_interval"`
	LeaseSweepInterval     time.Duration `json:"lease_sweep_interval"`
	MaxExecutionsPerMinute int           `json:"max_executions_per_minute"` // 0 disables the throttle
	StatsInterval          time.Duration `json:"stats_interval"`            // 0 disables periodic stats
	ExecutionRetentionDays int           `json:"execution_retention_days"`  // 0 keeps history forever
}

// DefaultLoopConfig returns the defaults the daemon ships with.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Workers:            5,
		PollInterval:       time.Second,
		LeaseDuration:      time.Minute,
		HeartbeatInterval:  5 * time.Second,
		LeaseSweepInterval: 30 * time.Second,
		StatsInterval:      time.Minute,
	}
}

// LoopStats counts what the loop has done since start.
type LoopStats struct {
	Claimed   int64 `json:"claimed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Deferred  int64 `json:"deferred"`
	LeaseLost int64 `json:"lease_lost"`
}

// Loop drives the scheduler: a bounded pool of workers claims due triggers,
// executes their jobs, and applies the resulting updates. A per-execution
// heartbeat keeps the lease alive; background sweeps recover leases that
// crashed nodes left behind and trim old execution history.
type Loop struct {
	triggers    *TriggerStore
	definitions *DefinitionStore
	executions  *ExecutionStore
	registry    *Registry
	clock       clock.Clock
	cfg         LoopConfig
	limiter     *rate.Limiter

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *zap.SugaredLogger

	mu            sync.Mutex
	stats         LoopStats
	activeWorkers int
}

// NewLoop creates a scheduler loop over the shared database. Cancelling ctx
// shuts the loop down; Stop does the same with a bounded wait. A nil clock
// falls back to the system clock, a nil log to a no-op logger.
func NewLoop(ctx context.Context, database *sql.DB, registry *Registry, clk clock.Clock, cfg LoopConfig, log *zap.SugaredLogger) *Loop {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	defaults := DefaultLoopConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaults.LeaseDuration
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.LeaseSweepInterval <= 0 {
		cfg.LeaseSweepInterval = defaults.LeaseSweepInterval
	}

	var limiter *rate.Limiter
	if cfg.MaxExecutionsPerMinute > 0 {
		n := cfg.MaxExecutionsPerMinute
		limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	return &Loop{
		triggers:    NewTriggerStore(database, clk),
		definitions: NewDefinitionStore(database, clk),
		executions:  NewExecutionStore(database, clk),
		registry:    registry,
		clock:       clk,
		cfg:         cfg,
		limiter:     limiter,
		parentCtx:   ctx,
		ctx:         loopCtx,
		cancel:      cancel,
		logger:      log,
	}
}

// NodeID returns this loop's node identity.
func (l *Loop) NodeID() string {
	return l.cfg.NodeID
}

// Workers returns the configured worker count.
func (l *Loop) Workers() int {
	return l.cfg.Workers
}

// Triggers exposes the loop's trigger store.
func (l *Loop) Triggers() *TriggerStore {
	return l.triggers
}

// Start releases any leases a previous crash left expired, then starts the
// workers and background sweeps.
func (l *Loop) Start() {
	// Recreate the context if a previous Stop cancelled it. Must happen
	// before any goroutine spawns.
	select {
	case <-l.ctx.Done():
		l.ctx, l.cancel = context.WithCancel(l.parentCtx)
	default:
	}

	released, err := l.triggers.ReleaseExpiredLeases()
	if err != nil {
		l.logger.Warnw("Failed to release expired leases at startup", "error", err)
	} else if released > 0 {
		l.logger.Infow("Recovered triggers from expired leases",
			logger.FieldCount, released)
	}

	for i := 0; i < l.cfg.Workers; i++ {
		l.wg.Add(1)
		go l.worker(i)
	}

	l.wg.Add(1)
	go l.leaseSweeper()

	if l.cfg.StatsInterval > 0 {
		l.wg.Add(1)
		go l.statsReporter()
	}
	if l.cfg.ExecutionRetentionDays > 0 {
		l.wg.Add(1)
		go l.retentionSweeper()
	}

	l.logger.Infow("Scheduler loop started",
		logger.FieldNodeID, l.cfg.NodeID,
		"workers", l.cfg.Workers,
		"poll_interval", l.cfg.PollInterval,
		"lease_duration", l.cfg.LeaseDuration,
		"heartbeat_interval", l.cfg.HeartbeatInterval,
	)
}

// Stop shuts the loop down: cancels workers, waits up to stopTimeout for
// them to finish, then returns every trigger this node still holds so other
// nodes pick the work up without waiting out the leases.
func (l *Loop) Stop() {
	l.cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		l.logger.Warnw("Stop timed out waiting for workers", "timeout", stopTimeout)
	}

	released, err := l.triggers.ForceReleaseOwned(l.cfg.NodeID)
	if err != nil {
		if !db.IsDatabaseClosed(err) {
			l.logger.Warnw("Failed to force-release owned triggers", "error", err)
		}
	} else if released > 0 {
		l.logger.Infow("Returned triggers on shutdown", logger.FieldCount, released)
	}

	l.logger.Infow("Scheduler loop stopped", logger.FieldNodeID, l.cfg.NodeID)
}

// worker claims and executes due triggers until the loop shuts down. When a
// pass claims nothing it waits one poll interval; when it does claim, it
// immediately tries again to drain the due backlog. Consecutive failures
// back off with doubling sleeps, capped.
func (l *Loop) worker(id int) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	backoff := time.Second

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			claimed, err := l.runOnce(id)
			if err != nil {
				select {
				case <-l.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
					// database went away during shutdown
					return
				}
				consecutiveErrors++
				l.logger.Errorw("Worker pass failed",
					logger.FieldWorker, id,
					"error", err,
					"consecutive_errors", consecutiveErrors)
				if consecutiveErrors >= maxConsecutiveErrors {
					l.logger.Warnw("Worker backing off after consecutive errors",
						logger.FieldWorker, id,
						"backoff", backoff)
					l.sleep(backoff)
					backoff = min(backoff*2, maxWorkerBackoff)
				}
				break
			}

			if consecutiveErrors > 0 {
				l.logger.Infow("Worker recovered",
					logger.FieldWorker, id,
					"previous_error_count", consecutiveErrors)
			}
			consecutiveErrors = 0
			backoff = time.Second

			if !claimed {
				break
			}

			select {
			case <-l.ctx.Done():
				return
			default:
			}
		}
	}
}

// runOnce performs one claim pass. Returns true when a trigger was claimed
// and executed.
func (l *Loop) runOnce(workerID int) (bool, error) {
	if l.limiter != nil && !l.limiter.Allow() {
		// over the per-node execution budget: skip claiming this pass
		return false, nil
	}

	trigger, err := l.triggers.ClaimDue(l.cfg.NodeID, l.cfg.LeaseDuration)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim due trigger")
	}
	if trigger == nil {
		return false, nil
	}

	l.record(func(s *LoopStats) { s.Claimed++ })
	l.execute(workerID, trigger)
	return true, nil
}

// execute runs one claimed trigger end to end: audit row, job execution
// with heartbeat, outcome resolution, conditional release.
func (l *Loop) execute(workerID int, trigger *JobTrigger) {
	l.mu.Lock()
	l.activeWorkers++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.activeWorkers--
		l.mu.Unlock()
	}()

	log := l.logger.With(
		logger.FieldWorker, workerID,
		logger.FieldTriggerID, trigger.ID,
		logger.FieldDefinitionID, trigger.JobDefinitionID,
		logger.FieldNodeID, l.cfg.NodeID,
	)

	start := l.clock.Now().UTC()

	exec := &Execution{
		TriggerID:       trigger.ID,
		JobDefinitionID: trigger.JobDefinitionID,
		NodeID:          l.cfg.NodeID,
	}
	if err := l.executions.Create(exec); err != nil {
		// the audit trail never blocks execution
		log.Warnw("Failed to record execution start", "error", err)
	}

	update, execCtx, execErr := l.runJob(trigger, log)

	// Outcome resolution: a bare error fails the trigger while preserving
	// its stored nextTime and data. A canceled run (shutdown or lease loss)
	// is not the job's fault and goes back to runnable instead; on lease
	// loss the update is discarded below anyway. Engines may flatten the
	// cancellation out of the error chain, so the loop context is checked
	// as well.
	if execErr != nil && update.IsZero() {
		if errors.Is(execErr, context.Canceled) || l.ctx.Err() != nil {
			update = TriggerUpdate{Status: util.Ptr(TriggerStatusRunnable)}
		} else {
			update = TriggerUpdate{Status: util.Ptr(TriggerStatusError)}
		}
	}

	outcome := classifyOutcome(update, execErr)
	completed := l.clock.Now().UTC()
	durationMs := completed.Sub(start).Milliseconds()

	if execErr != nil {
		log.Errorw("Trigger execution failed",
			"error", execErr,
			logger.FieldDurationMS, durationMs)
	}

	if err := l.triggers.ApplyUpdate(trigger.ID, l.cfg.NodeID, update, execErr); err != nil {
		if errors.IsLeaseLostError(err) {
			l.record(func(s *LoopStats) { s.LeaseLost++ })
			log.Warnw("Trigger update discarded, lease re-owned elsewhere", "error", err)
		} else {
			log.Errorw("Failed to apply trigger update", "error", err)
		}
	}

	exec.Status = outcome
	exec.CompletedAt = &completed
	exec.DurationMs = &durationMs
	if execErr != nil {
		exec.ErrorMessage = util.Ptr(execErr.Error())
	}
	if execCtx != nil {
		exec.RangeFrom, exec.RangeTo = execCtx.reportedRange()
	}
	if err := l.executions.Update(exec); err != nil {
		log.Warnw("Failed to record execution outcome", "error", err)
	}

	switch outcome {
	case ExecutionStatusCompleted:
		l.record(func(s *LoopStats) { s.Completed++ })
	case ExecutionStatusFailed:
		l.record(func(s *LoopStats) { s.Failed++ })
	case ExecutionStatusDeferred:
		l.record(func(s *LoopStats) { s.Deferred++ })
	}

	log.Infow("Trigger execution finished",
		logger.FieldStatus, outcome,
		logger.FieldDurationMS, durationMs,
	)
}

// runJob loads the definition, builds the job, and executes it under a
// heartbeat that keeps the lease alive. The returned ExecutionContext is
// nil when the definition or job could not be built.
func (l *Loop) runJob(trigger *JobTrigger, log *zap.SugaredLogger) (TriggerUpdate, *ExecutionContext, error) {
	def, err := l.definitions.Get(trigger.JobDefinitionID)
	if err != nil {
		return TriggerUpdate{}, nil, errors.Wrapf(err, "failed to load definition for trigger %s", trigger.ID)
	}

	job, err := l.registry.Build(def)
	if err != nil {
		return TriggerUpdate{}, nil, err
	}

	execCtx := NewExecutionContext(trigger, def)

	jobCtx, cancelJob := context.WithCancel(l.ctx)
	defer cancelJob()

	// Engines log through the context, so their lines correlate back to
	// the trigger and node that dispatched them.
	jobCtx = logger.WithTriggerID(jobCtx, trigger.ID)
	jobCtx = logger.WithNodeID(jobCtx, l.cfg.NodeID)

	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		l.heartbeat(jobCtx, cancelJob, trigger.ID, execCtx, log)
	}()

	update, execErr := job.Execute(jobCtx, execCtx)

	cancelJob()
	hb.Wait()

	return update, execCtx, execErr
}

// heartbeat renews the trigger's lease until ctx is cancelled. On lease
// loss it cancels the job's context and clears the liveness flag; the
// orphaned run may finish, but its update will be discarded by the
// conditional release.
func (l *Loop) heartbeat(ctx context.Context, cancelJob context.CancelFunc, triggerID string, execCtx *ExecutionContext, log *zap.SugaredLogger) {
	ticker := time.NewTicker(l.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.triggers.RenewLease(triggerID, l.cfg.NodeID, l.cfg.LeaseDuration)
			if err == nil {
				continue
			}
			if errors.IsLeaseLostError(err) {
				log.Warnw("Lease lost mid-execution, cancelling job")
				execCtx.markLeaseLost()
				cancelJob()
				return
			}
			// transient store error: keep trying while the lease holds
			log.Warnw("Failed to renew trigger lease", "error", err)
		}
	}
}

// leaseSweeper periodically recovers triggers whose holders died without
// releasing them.
func (l *Loop) leaseSweeper() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.LeaseSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			released, err := l.triggers.ReleaseExpiredLeases()
			if err != nil {
				if db.IsDatabaseClosed(err) {
					return
				}
				l.logger.Warnw("Lease sweep failed", "error", err)
				continue
			}
			if released > 0 {
				l.logger.Infow("Recovered triggers from expired leases",
					logger.FieldCount, released)
			}
		}
	}
}

// retentionSweeper trims execution history past the retention window.
func (l *Loop) retentionSweeper() {
	defer l.wg.Done()

	ticker := time.NewTicker(executionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.executions.CleanupOldExecutions(l.cfg.ExecutionRetentionDays)
			if err != nil {
				if db.IsDatabaseClosed(err) {
					return
				}
				l.logger.Warnw("Execution cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				l.logger.Infow("Trimmed old execution history",
					logger.FieldCount, deleted,
					"retention_days", l.cfg.ExecutionRetentionDays)
			}
		}
	}
}

func (l *Loop) statsReporter() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.logStats()
		}
	}
}

func (l *Loop) logStats() {
	stats := l.Stats()
	system := l.GetSystemStats()

	l.logger.Infow("Scheduler stats",
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"deferred", stats.Deferred,
		"lease_lost", stats.LeaseLost,
		"active_workers", system.WorkersActive,
		"workers", system.WorkersTotal,
		"process_rss_mb", system.ProcessRSSMB,
		"mem_used_percent", system.MemoryPercent,
	)
}

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// ActiveWorkers returns how many workers are executing right now.
func (l *Loop) ActiveWorkers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeWorkers
}

func (l *Loop) record(mutate func(*LoopStats)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mutate(&l.stats)
}

// sleep waits for d or until the loop shuts down, whichever comes first.
func (l *Loop) sleep(d time.Duration) {
	select {
	case <-l.ctx.Done():
	case <-time.After(d):
	}
}

// classifyOutcome maps a job result onto an execution audit status.
func classifyOutcome(update TriggerUpdate, execErr error) string {
	switch {
	case execErr != nil:
		return ExecutionStatusFailed
	case update.Status != nil && *update.Status == TriggerStatusError:
		return ExecutionStatusFailed
	case update.deferred:
		return ExecutionStatusDeferred
	default:
		return ExecutionStatusCompleted
	}
}
