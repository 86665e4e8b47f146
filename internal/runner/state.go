package runner

import (
	"time"

	"github.com/jackzampolin/collate/internal/lock"
)

// State is a node of the supervisor state machine.
type State int

const (
	StateIdle State = iota
	StateAcquireLock
	StateRunJob
	StateCooldown
	StateBackoff
	StateExit
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquireLock:
		return "acquire_lock"
	case StateRunJob:
		return "run_job"
	case StateCooldown:
		return "cooldown_sleep"
	case StateBackoff:
		return "backoff_sleep"
	case StateExit:
		return "exit"
	default:
		return "unknown"
	}
}

// RunState is the process-wide state owned by a single Runner.
// It is created at startup, updated every pass and released on exit.
type RunState struct {
	Token     *lock.Lock
	PID       int
	Heartbeat time.Time
	Backoff   *Backoff
	Pass      int
	LastExit  int
	LastLog   string
}
