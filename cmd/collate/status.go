package main

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/inventory"
	"github.com/jackzampolin/collate/internal/lock"
	"github.com/jackzampolin/collate/internal/runner"
)

var statusInventory bool

type engineStatus struct {
	Engine string `json:"engine" yaml:"engine"`
	// LockPID is the supervisor holding the engine lock, 0 when unlocked.
	LockPID   int               `json:"lock_pid" yaml:"lock_pid"`
	Running   bool              `json:"running" yaml:"running"`
	StaleLock bool              `json:"stale_lock,omitempty" yaml:"stale_lock,omitempty"`
	Heartbeat *runner.Heartbeat `json:"heartbeat,omitempty" yaml:"heartbeat,omitempty"`
	Age       string            `json:"heartbeat_age,omitempty" yaml:"heartbeat_age,omitempty"`
	Error     string            `json:"error,omitempty" yaml:"error,omitempty"`
}

type queueStatus struct {
	Path    string `json:"path" yaml:"path"`
	Records int    `json:"records" yaml:"records"`
}

type statusReport struct {
	Engines   []engineStatus    `json:"engines" yaml:"engines"`
	Queue     queueStatus       `json:"review_queue" yaml:"review_queue"`
	Inventory *inventory.Report `json:"inventory,omitempty" yaml:"inventory,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show runner heartbeats, review queue size and OCR coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}

		report := statusReport{Engines: []engineStatus{}}
		now := time.Now()
		for _, name := range engineNames(e.cfg) {
			report.Engines = append(report.Engines, engineStatusFor(e, name, now))
		}

		report.Queue.Path = queuePath(e)
		if report.Queue.Records, err = countLines(report.Queue.Path); err != nil {
			return err
		}

		if statusInventory {
			if report.Inventory, err = inventory.New(e.home, nil, logger).Scan(); err != nil {
				return err
			}
		}
		return printer.Print(report)
	},
}

func engineStatusFor(e *env, name string, now time.Time) engineStatus {
	st := engineStatus{Engine: name}
	pid, alive, err := lock.Holder(e.home.LockDir(name))
	if err != nil {
		st.Error = err.Error()
	}
	st.LockPID = pid
	st.Running = alive
	st.StaleLock = pid != 0 && !alive

	hb, err := runner.ReadHeartbeat(e.home.HeartbeatPath(name))
	switch {
	case err == nil:
		st.Heartbeat = hb
		st.Age = now.Sub(hb.Timestamp).Round(time.Second).String()
	case !errors.Is(err, fs.ErrNotExist) && st.Error == "":
		st.Error = err.Error()
	}
	return st
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

func init() {
	statusCmd.Flags().BoolVar(&statusInventory, "inventory", true, "include raw PDF inventory and OCR coverage")

	rootCmd.AddCommand(statusCmd)
}
