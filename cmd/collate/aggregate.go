package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/harmonize"
	"github.com/jackzampolin/collate/internal/review"
)

var aggregateOut string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [document=path...]",
	Short: "Append per-document review queues to the consolidated queue",
	Long: `Append the valid records of per-document review queues to the
consolidated review queue, each tagged with its document identifier.

Without arguments every document under {outputs}/harmonized is aggregated.
The consolidated queue is append-only: running this twice appends twice.

Examples:
  collate aggregate
  collate aggregate core=out/core/review_queue.jsonl --out queue.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}

		var sources []review.Source
		if len(args) > 0 {
			if sources, err = parseSources(args); err != nil {
				return err
			}
		} else if sources, err = harmonizedSources(e.home.HarmonizedDir()); err != nil {
			return err
		}

		agg, err := newAggregator(e)
		if err != nil {
			return err
		}
		dst := aggregateOut
		if dst == "" {
			dst = queuePath(e)
		}
		stats, err := agg.Aggregate(cmd.Context(), sources, dst)
		if err != nil {
			return err
		}
		return printer.Print(stats)
	},
}

func parseSources(args []string) ([]review.Source, error) {
	sources := make([]review.Source, 0, len(args))
	for _, arg := range args {
		id, path, ok := strings.Cut(arg, "=")
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("invalid source %q: want document=path", arg)
		}
		sources = append(sources, review.Source{DocumentID: id, Path: path})
	}
	return sources, nil
}

// harmonizedSources lists the review queue of every harmonized document.
func harmonizedSources(dir string) ([]review.Source, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list harmonized documents: %w", err)
	}
	var sources []review.Source
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sources = append(sources, review.Source{
			DocumentID: entry.Name(),
			Path:       filepath.Join(dir, entry.Name(), harmonize.ReviewQueueFile),
		})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].DocumentID < sources[j].DocumentID })
	return sources, nil
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateOut, "out", "", "consolidated queue (default {outputs}/review_queue.jsonl)")

	rootCmd.AddCommand(aggregateCmd)
}
