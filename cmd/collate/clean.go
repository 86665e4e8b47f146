package main

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <in> <out>",
	Short: "Clean a markdown transcription",
	Long: `Clean markdown produced by the layout-aware OCR engine: strip grounding
tags, apply the configured common fixes, rejoin hyphenated and wrapped
lines, drop page numbers and repeated lines, and promote all-caps lines to
headings. Page markers are preserved.

Example:
  collate clean result.md result.cleaned.md`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if err := newCleaner(e.cfg).CleanFile(args[0], args[1]); err != nil {
			return err
		}
		logger.Info("cleaned transcription", "in", args[0], "out", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
