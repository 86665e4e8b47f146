package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/home"
	"github.com/jackzampolin/collate/internal/output"
	"github.com/jackzampolin/collate/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string

	printer *output.Printer
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "collate",
	Short: "Dual-source OCR reconciliation",
	Long: `Collate reconciles the transcriptions of two OCR engines into one
harmonized text per document, with a review queue for every line a human
should check.

It includes:
  - A batch supervisor that keeps each engine's OCR job running
  - A harmonizer that aligns, scores and merges the two transcriptions
  - A review queue aggregator that consolidates per-document queues`,
	Version:      version.GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		printer = output.NewPrinter(cmd.OutOrStdout(), format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.collate/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "collate home directory (default: $DATA_ROOT or ~/.collate)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	rootCmd.AddCommand(versionCmd)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// env is the resolved home layout and configuration for one command.
type env struct {
	home *home.Dir
	mgr  *config.Manager
	cfg  *config.Config
}

// loadEnv resolves the home directory, loads {home}/.env and ./.env, reads
// the configuration and applies its data roots to the layout.
func loadEnv() (*env, error) {
	path := homeDir
	if path == "" {
		path = os.Getenv("DATA_ROOT")
	}
	base, err := home.New(path)
	if err != nil {
		return nil, err
	}

	file := cfgFile
	if file == "" && base.ConfigExists() {
		file = base.ConfigPath()
	}
	mgr, err := config.NewManager(file, base.EnvPath(), ".env")
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	h, err := home.NewWithRoots(base.Path(), home.Roots{
		Raw:     cfg.Paths.Raw,
		OCR:     cfg.Paths.OCR,
		Outputs: cfg.Paths.Outputs,
		State:   cfg.Paths.State,
	})
	if err != nil {
		return nil, err
	}
	return &env{home: h, mgr: mgr, cfg: cfg}, nil
}
