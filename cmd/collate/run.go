package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/runner"
)

var (
	runMaxPasses   int
	runWatchConfig bool
)

var runCmd = &cobra.Command{
	Use:   "run [engine] [-- command...]",
	Short: "Supervise an engine's OCR batch job",
	Long: `Run the batch supervisor for one OCR engine.

The configured job command runs to completion, then again after a cooldown.
Failed runs are retried with capped exponential backoff. Only one supervisor
per engine may run at a time; a second one exits with an error. A heartbeat
is written after every pass and transient-failure markers in the log of a
successful run are recorded as alerts.

Without an engine argument the engine comes from COLLATE_ENGINE (or
runner.engine in the config file), else the only configured engine.

Timing changes in the config file take effect at the next sleep.

Examples:
  collate run deepseek
  COLLATE_ENGINE=deepseek collate run
  collate run macos_vision --max-passes 1
  collate run deepseek -- python3 run_remote_deepseek_batch.py --resume`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := loadEnv()
		if err != nil {
			return err
		}

		engine, engCfg, err := resolveEngine(args, cmd.ArgsLenAtDash(), e.cfg)
		if err != nil {
			return err
		}

		if err := e.home.EnsureEngineDirs(engine); err != nil {
			return err
		}

		classifier, err := runner.NewPatternClassifier(e.cfg.Runner.AlertPatterns)
		if err != nil {
			return err
		}

		r, err := runner.New(runner.Config{
			Engine:        engine,
			LockDir:       e.home.LockDir(engine),
			LogDir:        e.home.EngineLogsDir(engine),
			HeartbeatPath: e.home.HeartbeatPath(engine),
			AlertsPath:    e.home.AlertsPath(engine),
			Timing:        timingFrom(e.cfg.Runner),
			Executor: &runner.CommandExecutor{
				Argv:      engCfg.Command,
				Dir:       config.ResolveEnvVars(engCfg.WorkDir),
				Env:       engCfg.ResolvedEnv(),
				KillGrace: time.Duration(e.cfg.Runner.KillGraceSeconds) * time.Second,
			},
			Classifier: classifier,
			Logger:     logger,
			MaxPasses:  runMaxPasses,
		})
		if err != nil {
			return err
		}

		if runWatchConfig && e.mgr.ConfigFileUsed() != "" {
			e.mgr.OnChange(func(c *config.Config) {
				r.SetTiming(timingFrom(c.Runner))
			})
			e.mgr.WatchConfig()
		}

		logger.Info("runner starting",
			"engine", engine, "run_id", r.RunID(), "command", engCfg.Command,
			"config", e.mgr.ConfigFileUsed())
		return r.Run(ctx)
	},
}

// resolveEngine picks the engine to supervise: the positional argument, else
// runner.engine (COLLATE_ENGINE), else the single configured engine.
// Arguments after dash replace the engine's job command.
func resolveEngine(args []string, dash int, cfg *config.Config) (string, config.EngineCfg, error) {
	named, command := args, []string(nil)
	if dash >= 0 && dash <= len(args) {
		named, command = args[:dash], args[dash:]
	}
	if len(named) > 1 {
		return "", config.EngineCfg{}, fmt.Errorf("unexpected arguments %v; pass a job command after --", named[1:])
	}

	var engine string
	switch names := engineNames(cfg); {
	case len(named) == 1:
		engine = named[0]
	case cfg.Runner.Engine != "":
		engine = cfg.Runner.Engine
	case len(names) == 1:
		engine = names[0]
	case len(names) == 0:
		return "", config.EngineCfg{}, errors.New("no engine selected and none configured (set COLLATE_ENGINE or pass an engine name)")
	default:
		return "", config.EngineCfg{}, fmt.Errorf("no engine selected (set COLLATE_ENGINE or pass one of: %s)", strings.Join(names, ", "))
	}

	engCfg, ok := cfg.GetEngine(engine)
	if len(command) > 0 {
		engCfg.Command = command
		ok = true
	}
	if !ok {
		return "", config.EngineCfg{}, fmt.Errorf("unknown engine %q (configured: %s)", engine, strings.Join(engineNames(cfg), ", "))
	}
	return engine, engCfg, nil
}

func timingFrom(rc config.RunnerCfg) runner.Timing {
	return runner.Timing{
		Cooldown:       time.Duration(rc.CooldownSeconds) * time.Second,
		BackoffBase:    time.Duration(rc.BackoffBaseSeconds) * time.Second,
		BackoffCeiling: time.Duration(rc.BackoffCeilingSeconds) * time.Second,
	}
}

func engineNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Engines))
	for name := range cfg.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	runCmd.Flags().IntVar(&runMaxPasses, "max-passes", 0, "stop after this many passes (0 runs until terminated)")
	runCmd.Flags().BoolVar(&runWatchConfig, "watch-config", true, "apply timing changes from the config file while running")

	rootCmd.AddCommand(runCmd)
}
