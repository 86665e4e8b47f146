package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/harmonize"
)

var (
	harmonizeA      string
	harmonizeB      string
	harmonizeOut    string
	harmonizeCleanB bool
)

// harmonizeReport is printed after harmonizing one document.
type harmonizeReport struct {
	Document string            `json:"document" yaml:"document"`
	SourceB  string            `json:"source_b" yaml:"source_b"`
	Output   harmonize.Paths   `json:"output" yaml:"output"`
	Summary  harmonize.Summary `json:"summary" yaml:"summary"`
}

var harmonizeCmd = &cobra.Command{
	Use:   "harmonize <document>",
	Short: "Harmonize one document's two transcriptions",
	Long: `Harmonize the plain-text (A) and markdown (B) transcriptions of one document.

Without --a or --b the sources are read from the OCR root: A from
{ocr}/macos_vision/<document>/result.txt, B from {ocr}/deepseek/<document>/
(result.cleaned.md, else result.md or the per-page files, cleaned first).

Outputs harmonized.md, harmonized.meta.json, review_queue.jsonl and
review_queue.md to --out (default {outputs}/harmonized/<document>/).

Examples:
  collate harmonize core_rulebook
  collate harmonize doc --a vision.txt --b deepseek.md --clean-b --out ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID := args[0]
		e, err := loadEnv()
		if err != nil {
			return err
		}
		h, err := newHarmonizer(e.cfg)
		if err != nil {
			return err
		}

		var in harmonize.Input
		mode := "file"
		if harmonizeA == "" && harmonizeB == "" {
			s, err := newSweeper(e, true)
			if err != nil {
				return err
			}
			b, bmode, err := s.ResolveSourceB(docID)
			if err != nil {
				return err
			}
			in, err = harmonize.LoadInput(docID, e.home.SourceAPath(docID), "")
			if err != nil && (b == nil || !errors.Is(err, harmonize.ErrMissingInput)) {
				return err
			}
			in.B = b
			mode = string(bmode)
		} else {
			if in, err = harmonize.LoadInput(docID, harmonizeA, harmonizeB); err != nil {
				return err
			}
			if harmonizeCleanB && in.B != nil {
				cleaned := newCleaner(e.cfg).Clean(*in.B)
				in.B = &cleaned
			}
			if in.B == nil {
				mode = "missing"
			}
		}

		res, err := h.Harmonize(in)
		if err != nil {
			return err
		}
		out := harmonizeOut
		if out == "" {
			out = e.home.HarmonizedDocDir(docID)
		}
		paths, err := harmonize.Write(out, res)
		if err != nil {
			return fmt.Errorf("failed to write outputs for %s: %w", docID, err)
		}

		return printer.Print(harmonizeReport{
			Document: docID,
			SourceB:  mode,
			Output:   paths,
			Summary:  res.Summary,
		})
	},
}

func init() {
	harmonizeCmd.Flags().StringVar(&harmonizeA, "a", "", "source A plain-text transcription")
	harmonizeCmd.Flags().StringVar(&harmonizeB, "b", "", "source B markdown transcription")
	harmonizeCmd.Flags().StringVar(&harmonizeOut, "out", "", "output directory")
	harmonizeCmd.Flags().BoolVar(&harmonizeCleanB, "clean-b", false, "clean source B before harmonizing")

	rootCmd.AddCommand(harmonizeCmd)
}
