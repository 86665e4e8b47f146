// Package runner supervises an external OCR batch job: one instance per
// engine system-wide, one job per pass, capped exponential backoff on failure
// and a heartbeat after every pass.
//
// The loop is an explicit state machine:
//
//	IDLE -> ACQUIRE_LOCK -> RUN_JOB -> {COOLDOWN_SLEEP | BACKOFF_SLEEP} -> RUN_JOB ...
//
// Cancelling the context moves any state to EXIT, which always releases the lock.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/collate/internal/lock"
)

// Timing holds the hot-reloadable intervals.
type Timing struct {
	Cooldown       time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
}

// Config configures a Runner.
type Config struct {
	Engine        string
	LockDir       string
	LogDir        string
	HeartbeatPath string
	AlertsPath    string
	Timing        Timing
	Executor      Executor
	Classifier    Classifier // Optional
	Clock         Clock      // Defaults to SystemClock
	Logger        *slog.Logger
	// MaxPasses stops the loop after this many passes; zero runs until cancelled.
	MaxPasses int
}

// Runner is the batch supervisor for one engine.
type Runner struct {
	cfg    Config
	clock  Clock
	logger *slog.Logger
	runID  string

	mu     sync.Mutex
	timing Timing

	state     RunState
	nextSleep time.Duration
}

// New validates cfg and returns a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Engine == "" {
		return nil, fmt.Errorf("engine name is required")
	}
	if cfg.LockDir == "" || cfg.LogDir == "" || cfg.HeartbeatPath == "" {
		return nil, fmt.Errorf("lock, log and heartbeat paths are required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Timing.BackoffBase <= 0 {
		return nil, fmt.Errorf("backoff base must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: logger.With("engine", cfg.Engine),
		runID:  uuid.NewString(),
		timing: cfg.Timing,
		state: RunState{
			PID:     os.Getpid(),
			Backoff: NewBackoff(cfg.Timing.BackoffBase, cfg.Timing.BackoffCeiling),
		},
	}, nil
}

// RunID identifies this supervisor session in heartbeats and alerts.
func (r *Runner) RunID() string { return r.runID }

// SetTiming replaces cooldown and backoff bounds; takes effect on the next sleep.
func (r *Runner) SetTiming(t Timing) {
	r.mu.Lock()
	r.timing = t
	r.mu.Unlock()
	r.state.Backoff.SetBounds(t.BackoffBase, t.BackoffCeiling)
	r.logger.Info("runner timing updated",
		"cooldown", t.Cooldown, "backoff_base", t.BackoffBase, "backoff_ceiling", t.BackoffCeiling)
}

func (r *Runner) currentTiming() Timing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timing
}

// State returns a snapshot of the run state.
func (r *Runner) State() RunState {
	return r.state
}

// Run drives the state machine until ctx is cancelled (returns nil after
// releasing the lock) or a fatal condition occurs (lock contention, missing
// executable). Job failures are never fatal.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if rerr := r.release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	state := StateIdle
	for state != StateExit {
		next, serr := r.step(ctx, state)
		if serr != nil {
			return serr
		}
		if next != state {
			r.logger.Debug("state transition", "from", state, "to", next)
		}
		state = next
	}
	r.logger.Info("runner stopped", "passes", r.state.Pass)
	return nil
}

// step performs the work of one state and returns the next.
func (r *Runner) step(ctx context.Context, s State) (State, error) {
	switch s {
	case StateIdle:
		if p, ok := r.cfg.Executor.(Preflighter); ok {
			if err := p.Preflight(); err != nil {
				return StateExit, err
			}
		}
		return StateAcquireLock, nil

	case StateAcquireLock:
		l, err := lock.Acquire(r.cfg.LockDir)
		if err != nil {
			return StateExit, fmt.Errorf("failed to acquire runner lock: %w", err)
		}
		r.state.Token = l
		r.logger.Info("runner lock acquired", "lock", l.Path(), "pid", l.PID(), "run_id", r.runID)
		return StateRunJob, nil

	case StateRunJob:
		if ctx.Err() != nil {
			return StateExit, nil
		}
		if r.cfg.MaxPasses > 0 && r.state.Pass >= r.cfg.MaxPasses {
			return StateExit, nil
		}
		return r.runJob(ctx), nil

	case StateCooldown:
		if err := r.clock.Sleep(ctx, r.nextSleep); err != nil {
			return StateExit, nil
		}
		return StateRunJob, nil

	case StateBackoff:
		if err := r.clock.Sleep(ctx, r.nextSleep); err != nil {
			return StateExit, nil
		}
		return StateRunJob, nil

	default:
		return StateExit, nil
	}
}

// runJob executes one pass and records its outcome.
func (r *Runner) runJob(ctx context.Context) State {
	r.state.Pass++
	started := r.clock.Now()
	logPath := filepath.Join(r.cfg.LogDir,
		fmt.Sprintf("run-%s-%04d.log", started.UTC().Format("20060102-150405"), r.state.Pass))

	r.logger.Info("starting job", "pass", r.state.Pass, "log", logPath)
	code, err := r.cfg.Executor.Run(ctx, logPath)
	if err != nil {
		r.logger.Error("job did not run", "pass", r.state.Pass, "error", err)
		if code == 0 {
			code = -1
		}
	}
	r.state.LastExit = code
	r.state.LastLog = logPath

	if ctx.Err() != nil {
		// Terminated mid-job; record the outcome but do not schedule another pass.
		r.writeHeartbeat(StateExit, 0)
		return StateExit
	}

	r.logger.Info("job finished", "pass", r.state.Pass, "exit_code", code,
		"duration", r.clock.Now().Sub(started))
	if code == 0 {
		return r.onSuccess(logPath)
	}
	return r.onFailure(code)
}

func (r *Runner) onSuccess(logPath string) State {
	r.state.Backoff.Reset()
	r.nextSleep = r.currentTiming().Cooldown
	r.writeHeartbeat(StateCooldown, r.nextSleep)
	r.checkAlerts(logPath)
	return StateCooldown
}

func (r *Runner) onFailure(code int) State {
	r.nextSleep = r.state.Backoff.Next()
	r.logger.Warn("job failed, backing off",
		"exit_code", code,
		"consecutive_failures", r.state.Backoff.Failures(),
		"sleep", r.nextSleep)
	r.writeHeartbeat(StateBackoff, r.nextSleep)
	return StateBackoff
}

func (r *Runner) writeHeartbeat(next State, sleep time.Duration) {
	now := r.clock.Now()
	r.state.Heartbeat = now
	hb := Heartbeat{
		Timestamp:           now.UTC(),
		Engine:              r.cfg.Engine,
		RunID:               r.runID,
		PID:                 r.state.PID,
		Pass:                r.state.Pass,
		ExitCode:            r.state.LastExit,
		LogPath:             r.state.LastLog,
		State:               next.String(),
		NextSleepSeconds:    sleep.Seconds(),
		ConsecutiveFailures: r.state.Backoff.Failures(),
	}
	if err := WriteHeartbeat(r.cfg.HeartbeatPath, hb); err != nil {
		r.logger.Error("failed to write heartbeat", "error", err)
	}
}

// checkAlerts scans a successful run's log. Findings are recorded but never
// change control flow.
func (r *Runner) checkAlerts(logPath string) {
	if r.cfg.Classifier == nil || r.cfg.AlertsPath == "" {
		return
	}
	f, err := os.Open(logPath)
	if err != nil {
		r.logger.Warn("failed to open job log for alert scan", "log", logPath, "error", err)
		return
	}
	defer f.Close()

	matches, err := r.cfg.Classifier.Classify(f)
	if err != nil {
		r.logger.Warn("alert scan incomplete", "log", logPath, "error", err)
	}
	if len(matches) == 0 {
		return
	}

	seen := make(map[string]bool)
	var patterns, samples []string
	for _, m := range matches {
		if !seen[m.Pattern] {
			seen[m.Pattern] = true
			patterns = append(patterns, m.Pattern)
		}
		if len(samples) < maxAlertSamples {
			samples = append(samples, fmt.Sprintf("%d: %s", m.LineNo, m.Line))
		}
	}
	sort.Strings(patterns)

	alert := Alert{
		Timestamp: r.clock.Now().UTC(),
		Engine:    r.cfg.Engine,
		RunID:     r.runID,
		Pass:      r.state.Pass,
		LogPath:   logPath,
		Patterns:  patterns,
		Matches:   len(matches),
		Samples:   samples,
	}
	if err := AppendAlert(r.cfg.AlertsPath, alert); err != nil {
		r.logger.Error("failed to write alert", "error", err)
		return
	}
	r.logger.Warn("transient failure markers in successful run",
		"log", logPath, "patterns", patterns, "matches", len(matches))
}

func (r *Runner) release() error {
	if r.state.Token == nil {
		return nil
	}
	err := r.state.Token.Release()
	if err != nil {
		r.logger.Error("failed to release runner lock", "error", err)
		return err
	}
	r.logger.Info("runner lock released", "lock", r.state.Token.Path())
	return nil
}
