package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrMissingExecutable is returned by preflight when the job binary cannot be found.
var ErrMissingExecutable = errors.New("executable not found")

// Executor runs one OCR batch job to completion.
type Executor interface {
	// Run blocks until the job exits, writing combined output to logPath.
	// A non-zero exitCode with a nil error is an ordinary job failure.
	Run(ctx context.Context, logPath string) (exitCode int, err error)
}

// Preflighter is implemented by executors that can validate their setup before the first pass.
type Preflighter interface {
	Preflight() error
}

// CommandExecutor runs an external command.
type CommandExecutor struct {
	Argv []string
	Dir  string
	Env  []string // Extra KEY=VALUE entries appended to the inherited environment
	// KillGrace is how long a job gets after SIGTERM before it is killed
	// when the supervisor itself is terminated. Zero kills it outright.
	KillGrace time.Duration
}

// Preflight resolves the job executable.
func (e *CommandExecutor) Preflight() error {
	if len(e.Argv) == 0 {
		return fmt.Errorf("%w: empty command", ErrMissingExecutable)
	}
	if _, err := exec.LookPath(e.Argv[0]); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingExecutable, e.Argv[0], err)
	}
	return nil
}

// Run starts the command and waits for it.
// The job is only interrupted when ctx is cancelled, i.e. when the whole
// supervisor is shutting down.
func (e *CommandExecutor) Run(ctx context.Context, logPath string) (int, error) {
	if len(e.Argv) == 0 {
		return -1, fmt.Errorf("%w: empty command", ErrMissingExecutable)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return -1, fmt.Errorf("failed to create job log: %w", err)
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, e.Argv[0], e.Argv[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Cancel = func() error {
		if e.KillGrace <= 0 {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.KillGrace

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run job: %w", err)
}
