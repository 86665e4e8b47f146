// Package lock implements a named, process-wide advisory lock backed by an
// atomically created directory holding the owner's PID.
//
// A lock whose recorded process no longer exists is reclaimed automatically.
// A lock held by a live process fails fast with *HeldError.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// PidFileName is the file inside the lock directory that records the owner.
	PidFileName = "pid"
	// ReclaimSuffix names the guard file, beside the lock directory, held
	// while a stale lock is removed.
	ReclaimSuffix = ".reclaim"
)

// ErrHeld is returned when the lock is owned by another live process.
var ErrHeld = errors.New("lock held by live process")

var (
	errReclaimed = errors.New("stale lock reclaimed")
	errPending   = errors.New("lock owner not yet recorded")
)

// processAlive is swapped in tests.
var processAlive = IsProcessAlive

// HeldError reports the live owner of a contended lock.
type HeldError struct {
	Path string
	PID  int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("lock %s held by pid %d", e.Path, e.PID)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// Options tune acquisition.
type Options struct {
	// PendingGrace is how long a lock directory without a readable pid file
	// is assumed to belong to an acquirer that has not written it yet.
	PendingGrace time.Duration
	// Attempts bounds reclaim/pending retries.
	Attempts uint
	// Delay between retries.
	Delay time.Duration
}

// DefaultOptions returns the acquisition settings used by Acquire.
func DefaultOptions() Options {
	return Options{
		PendingGrace: 2 * time.Second,
		Attempts:     30,
		Delay:        100 * time.Millisecond,
	}
}

// Lock is the token returned by a successful acquisition.
// Release must be called on every exit path.
type Lock struct {
	dir  string
	pid  int
	once sync.Once
	err  error
}

// Acquire takes the lock at dir with default options.
func Acquire(dir string) (*Lock, error) {
	return AcquireWithOptions(dir, DefaultOptions())
}

// AcquireWithOptions takes the lock at dir.
// Acquisition is all-or-nothing: on error nothing is left behind by this call.
func AcquireWithOptions(dir string, opts Options) (*Lock, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock parent: %w", err)
	}

	var l *Lock
	err := retry.Do(
		func() error {
			acquired, err := tryAcquire(dir, opts.PendingGrace)
			if err != nil {
				return err
			}
			l = acquired
			return nil
		},
		retry.Attempts(opts.Attempts),
		retry.Delay(opts.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errReclaimed) || errors.Is(err, errPending)
		}),
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func tryAcquire(dir string, pendingGrace time.Duration) (*Lock, error) {
	pidPath := filepath.Join(dir, PidFileName)

	err := os.Mkdir(dir, 0o755)
	if err == nil {
		if werr := WritePidFile(pidPath); werr != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to record lock owner: %w", werr)
		}
		return &Lock{dir: dir, pid: os.Getpid()}, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("failed to create lock %s: %w", dir, err)
	}

	pid, rerr := ReadPidFile(pidPath)
	if rerr == nil && processAlive(pid) {
		return nil, &HeldError{Path: dir, PID: pid}
	}
	if rerr != nil && recent(dir, pendingGrace) {
		return nil, errPending
	}
	return reclaim(dir, pendingGrace)
}

// reclaim removes a lock whose owner is dead or never recorded itself.
// Reclaimers serialize on an exclusive guard file and re-read the owner
// under it, so a lock taken over by another acquirer in the meantime is
// never removed.
func reclaim(dir string, pendingGrace time.Duration) (*Lock, error) {
	guard := dir + ReclaimSuffix
	f, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create reclaim guard: %w", err)
		}
		// A reclaimer that died mid-reclaim leaves its guard behind.
		if !recent(guard, pendingGrace) {
			_ = os.Remove(guard)
		}
		return nil, errPending
	}
	_ = f.Close()
	defer os.Remove(guard)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, errReclaimed
	}

	pid, rerr := ReadPidFile(filepath.Join(dir, PidFileName))
	switch {
	case rerr == nil && processAlive(pid):
		return nil, &HeldError{Path: dir, PID: pid}
	case rerr != nil && recent(dir, pendingGrace):
		return nil, errPending
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to reclaim stale lock %s: %w", dir, err)
	}
	return nil, errReclaimed
}

func recent(path string, window time.Duration) bool {
	info, err := os.Stat(path)
	return err == nil && time.Since(info.ModTime()) < window
}

// Path returns the lock directory.
func (l *Lock) Path() string { return l.dir }

// PID returns the owning process ID.
func (l *Lock) PID() int { return l.pid }

// Release removes the lock. It is safe to call more than once and never
// removes a lock that has since been taken over by another process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		pidPath := filepath.Join(l.dir, PidFileName)
		pid, err := ReadPidFile(pidPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				_ = os.Remove(l.dir)
				return
			}
			l.err = fmt.Errorf("failed to verify lock owner: %w", err)
			return
		}
		if pid != l.pid {
			l.err = fmt.Errorf("lock %s now owned by pid %d", l.dir, pid)
			return
		}
		if err := os.Remove(pidPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.err = fmt.Errorf("failed to remove pid file: %w", err)
			return
		}
		if err := os.Remove(l.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.err = fmt.Errorf("failed to remove lock directory: %w", err)
		}
	})
	return l.err
}

// Holder reports the PID recorded in the lock at dir and whether it is alive.
// A missing lock returns pid 0 and no error.
func Holder(dir string) (pid int, alive bool, err error) {
	pid, err = ReadPidFile(filepath.Join(dir, PidFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return pid, processAlive(pid), nil
}
