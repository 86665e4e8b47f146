package config

import "fmt"

// Config holds collate configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Paths      PathsCfg             `mapstructure:"paths" yaml:"paths"`
	Runner     RunnerCfg            `mapstructure:"runner" yaml:"runner"`
	Engines    map[string]EngineCfg `mapstructure:"engines" yaml:"engines"`
	Harmonizer HarmonizerCfg        `mapstructure:"harmonizer" yaml:"harmonizer"`
	Review     ReviewCfg            `mapstructure:"review" yaml:"review"`
	Sweep      SweepCfg             `mapstructure:"sweep" yaml:"sweep"`
	Cleanup    CleanupCfg           `mapstructure:"cleanup" yaml:"cleanup"`
}

// PathsCfg holds the data roots. Empty values derive from the home directory.
type PathsCfg struct {
	Raw     string `mapstructure:"raw" yaml:"raw"`         // Raw source PDFs (RAW_ROOT)
	OCR     string `mapstructure:"ocr" yaml:"ocr"`         // Engine outputs (OCR_ROOT)
	Outputs string `mapstructure:"outputs" yaml:"outputs"` // Harmonized outputs (OUTPUTS_ROOT)
	State   string `mapstructure:"state" yaml:"state"`     // Locks, heartbeats, logs (STATE_ROOT)
}

// RunnerCfg configures the batch supervisor loop.
type RunnerCfg struct {
	Engine                string   `mapstructure:"engine" yaml:"engine"` // Supervised by `run` when none is named
	BackoffBaseSeconds    int      `mapstructure:"backoff_base_seconds" yaml:"backoff_base_seconds"`
	BackoffCeilingSeconds int      `mapstructure:"backoff_ceiling_seconds" yaml:"backoff_ceiling_seconds"`
	CooldownSeconds       int      `mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
	KillGraceSeconds      int      `mapstructure:"kill_grace_seconds" yaml:"kill_grace_seconds"` // SIGTERM to SIGKILL on shutdown
	AlertPatterns         []string `mapstructure:"alert_patterns" yaml:"alert_patterns"`         // Regular expressions
}

// EngineCfg describes the external OCR batch job for one engine.
type EngineCfg struct {
	Command []string `mapstructure:"command" yaml:"command"`
	WorkDir string   `mapstructure:"work_dir" yaml:"work_dir"`
	Env     []string `mapstructure:"env" yaml:"env"` // KEY=VALUE, supports ${ENV_VAR}
}

// HarmonizerCfg tunes reconciliation.
type HarmonizerCfg struct {
	Margin                 float64      `mapstructure:"margin" yaml:"margin"`
	MinScore               float64      `mapstructure:"min_score" yaml:"min_score"`
	SingleSourceConfidence float64      `mapstructure:"single_source_confidence" yaml:"single_source_confidence"`
	SingleSourceThreshold  float64      `mapstructure:"single_source_threshold" yaml:"single_source_threshold"`
	MinLineSimilarity      float64      `mapstructure:"min_line_similarity" yaml:"min_line_similarity"`
	LexiconPath            string       `mapstructure:"lexicon_path" yaml:"lexicon_path"` // One word per line; empty uses the built-in list
	Weights                ScoreWeights `mapstructure:"weights" yaml:"weights"`
}

// ScoreWeights are the plausibility signal weights.
type ScoreWeights struct {
	CharClass float64 `mapstructure:"char_class" yaml:"char_class"`
	Lexicon   float64 `mapstructure:"lexicon" yaml:"lexicon"`
	CaseShape float64 `mapstructure:"case_shape" yaml:"case_shape"`
	Length    float64 `mapstructure:"length" yaml:"length"`
}

// ReviewCfg configures review queue aggregation.
type ReviewCfg struct {
	QueuePath       string `mapstructure:"queue_path" yaml:"queue_path"`               // Empty uses {outputs}/review_queue.jsonl
	SingleWriter    bool   `mapstructure:"single_writer" yaml:"single_writer"`         // Serialize appends with a lock
	LockWaitSeconds int    `mapstructure:"lock_wait_seconds" yaml:"lock_wait_seconds"` // How long to wait for another writer
}

// SweepCfg configures the harmonize + aggregate sweep.
type SweepCfg struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"` // Cron expression; empty runs once
	Force    bool   `mapstructure:"force" yaml:"force"`       // Ignore unchanged-input cache
}

// CleanupCfg configures markdown cleanup of source B.
type CleanupCfg struct {
	CommonFixes []FixCfg `mapstructure:"common_fixes" yaml:"common_fixes"`
}

// FixCfg is a literal replacement applied during cleanup.
type FixCfg struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Runner: RunnerCfg{
			BackoffBaseSeconds:    60,
			BackoffCeilingSeconds: 900,
			CooldownSeconds:       30,
			KillGraceSeconds:      30,
			AlertPatterns: []string{
				`(?i)timed?\s?out`,
				`(?i)connection refused`,
				`(?i)empty response body`,
				`\[OCR_ERROR\]`,
			},
		},
		Engines: map[string]EngineCfg{
			"deepseek": {
				Command: []string{"python3", "run_remote_deepseek_batch.py"},
			},
			"macos_vision": {
				Command: []string{"python3", "run_macos_vision_batch.py"},
			},
		},
		Harmonizer: HarmonizerCfg{
			Margin:                 0.35,
			MinScore:               0.4,
			SingleSourceConfidence: 0.5,
			SingleSourceThreshold:  0.6,
			MinLineSimilarity:      0.5,
			Weights: ScoreWeights{
				CharClass: 0.3,
				Lexicon:   0.4,
				CaseShape: 0.2,
				Length:    0.1,
			},
		},
		Review: ReviewCfg{
			SingleWriter:    true,
			LockWaitSeconds: 30,
		},
		Cleanup: CleanupCfg{
			CommonFixes: []FixCfg{
				{From: "Shadownrun", To: "Shadowrun"},
				{From: "Shadowrn", To: "Shadowrun"},
				{From: "Edltion", To: "Edition"},
				{From: "THlRD", To: "THIRD"},
				{From: "FASA Corporatlon", To: "FASA Corporation"},
			},
		},
	}
}

// GetEngine returns an engine config by name.
func (c *Config) GetEngine(name string) (EngineCfg, bool) {
	cfg, ok := c.Engines[name]
	return cfg, ok
}

// Validate checks value ranges. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	r := c.Runner
	if r.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("%w: runner.backoff_base_seconds must be positive", ErrInvalid)
	}
	if r.BackoffCeilingSeconds < r.BackoffBaseSeconds {
		return fmt.Errorf("%w: runner.backoff_ceiling_seconds must be >= backoff_base_seconds", ErrInvalid)
	}
	if r.CooldownSeconds < 0 || c.Review.LockWaitSeconds < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalid)
	}
	if r.KillGraceSeconds <= 0 {
		return fmt.Errorf("%w: runner.kill_grace_seconds must be positive", ErrInvalid)
	}

	h := c.Harmonizer
	for name, v := range map[string]float64{
		"margin":                   h.Margin,
		"min_score":                h.MinScore,
		"single_source_confidence": h.SingleSourceConfidence,
		"single_source_threshold":  h.SingleSourceThreshold,
		"min_line_similarity":      h.MinLineSimilarity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: harmonizer.%s must be within [0,1], got %v", ErrInvalid, name, v)
		}
	}
	w := h.Weights
	if w.CharClass < 0 || w.Lexicon < 0 || w.CaseShape < 0 || w.Length < 0 {
		return fmt.Errorf("%w: harmonizer.weights must not be negative", ErrInvalid)
	}
	if w.CharClass+w.Lexicon+w.CaseShape+w.Length == 0 {
		return fmt.Errorf("%w: harmonizer.weights must not all be zero", ErrInvalid)
	}
	return nil
}
