package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Heartbeat is rewritten after every pass to prove the supervisor is alive.
type Heartbeat struct {
	Timestamp           time.Time `json:"timestamp" yaml:"timestamp"`
	Engine              string    `json:"engine" yaml:"engine"`
	RunID               string    `json:"run_id" yaml:"run_id"`
	PID                 int       `json:"pid" yaml:"pid"`
	Pass                int       `json:"pass" yaml:"pass"`
	ExitCode            int       `json:"exit_code" yaml:"exit_code"`
	LogPath             string    `json:"log_path" yaml:"log_path"`
	State               string    `json:"state" yaml:"state"`
	NextSleepSeconds    float64   `json:"next_sleep_seconds" yaml:"next_sleep_seconds"`
	ConsecutiveFailures int       `json:"consecutive_failures" yaml:"consecutive_failures"`
}

// Alert records transient-failure markers found in a successful run's log.
type Alert struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Engine    string    `json:"engine" yaml:"engine"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	Pass      int       `json:"pass" yaml:"pass"`
	LogPath   string    `json:"log_path" yaml:"log_path"`
	Patterns  []string  `json:"patterns" yaml:"patterns"`
	Matches   int       `json:"matches" yaml:"matches"`
	Samples   []string  `json:"samples" yaml:"samples"`
}

// WriteHeartbeat atomically replaces the heartbeat file.
func WriteHeartbeat(path string, hb Heartbeat) error {
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// ReadHeartbeat loads a heartbeat file.
func ReadHeartbeat(path string) (*Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("invalid heartbeat %s: %w", path, err)
	}
	return &hb, nil
}

// AppendAlert appends one JSON line to the alert log.
func AppendAlert(path string, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open alert log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return f.Close()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
