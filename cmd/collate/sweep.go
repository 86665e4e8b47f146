package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/sweep"
)

var (
	sweepForce    bool
	sweepSchedule string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Harmonize all documents and aggregate their review queues",
	Long: `Harmonize every document found under either engine's OCR output, then
append the review queues of the documents harmonized in this sweep to the
consolidated queue.

Documents whose inputs and harmonizer settings are unchanged since their
last harmonization are skipped unless --force is given. A document that
fails is reported and does not stop the sweep.

With --schedule (or sweep.schedule in the config file) sweeps repeat on a
cron schedule until terminated.

Examples:
  collate sweep
  collate sweep --force
  collate sweep --schedule "*/30 * * * *"
  collate sweep --schedule @hourly`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv()
		if err != nil {
			return err
		}
		s, err := newSweeper(e, sweepForce)
		if err != nil {
			return err
		}

		schedule := sweepSchedule
		if schedule == "" {
			schedule = e.cfg.Sweep.Schedule
		}
		if schedule != "" {
			if _, err := sweep.ParseSchedule(schedule); err != nil {
				return err
			}
			return s.RunScheduled(ctx, schedule)
		}

		summary, err := s.Sweep(ctx)
		if summary != nil {
			if perr := printer.Print(summary); perr != nil && err == nil {
				err = perr
			}
		}
		return err
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepForce, "force", false, "re-harmonize documents whose inputs are unchanged")
	sweepCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "cron expression; repeat sweeps until terminated")

	rootCmd.AddCommand(sweepCmd)
}
