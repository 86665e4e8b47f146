package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 10m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return sched, nil
}

// RunScheduled sweeps at every activation of the schedule until ctx is done.
// Sweeps never overlap: an activation that passes while a sweep is running
// is skipped. A failed sweep is logged and the schedule continues.
func (s *Sweeper) RunScheduled(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	for {
		next := sched.Next(time.Now())
		s.logger.Info("next sweep scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := s.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduled sweep failed", "error", err)
		}
	}
}
