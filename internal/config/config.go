package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// ErrInvalid is returned when configuration values are out of range.
var ErrInvalid = errors.New("invalid configuration")

// rootEnvVars maps path keys to the environment variables the pipeline
// scripts have always used for their roots.
var rootEnvVars = map[string]string{
	"paths.raw":     "RAW_ROOT",
	"paths.ocr":     "OCR_ROOT",
	"paths.outputs": "OUTPUTS_ROOT",
	"paths.state":   "STATE_ROOT",
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// envFiles are dotenv files loaded before the environment is read; missing
// files are ignored and variables already set in the environment win.
func NewManager(cfgFile string, envFiles ...string) (*Manager, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

func loadEnvFiles(paths []string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error reading env file %s: %w", p, err)
		}
	}
	return nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	setDefaults(v, DefaultConfig())

	// Environment variables with COLLATE_ prefix, e.g. COLLATE_RUNNER_COOLDOWN_SECONDS
	v.SetEnvPrefix("COLLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range rootEnvVars {
		envKey := "COLLATE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	if err := v.BindEnv("runner.engine", "COLLATE_RUNNER_ENGINE", "COLLATE_ENGINE"); err != nil {
		return fmt.Errorf("failed to bind COLLATE_ENGINE: %w", err)
	}

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.collate")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers scalar leaves individually so environment variables
// can override them; list and map values are registered whole.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("paths.raw", d.Paths.Raw)
	v.SetDefault("paths.ocr", d.Paths.OCR)
	v.SetDefault("paths.outputs", d.Paths.Outputs)
	v.SetDefault("paths.state", d.Paths.State)

	v.SetDefault("runner.engine", d.Runner.Engine)
	v.SetDefault("runner.backoff_base_seconds", d.Runner.BackoffBaseSeconds)
	v.SetDefault("runner.backoff_ceiling_seconds", d.Runner.BackoffCeilingSeconds)
	v.SetDefault("runner.cooldown_seconds", d.Runner.CooldownSeconds)
	v.SetDefault("runner.kill_grace_seconds", d.Runner.KillGraceSeconds)
	v.SetDefault("runner.alert_patterns", d.Runner.AlertPatterns)

	v.SetDefault("engines", d.Engines)

	v.SetDefault("harmonizer.margin", d.Harmonizer.Margin)
	v.SetDefault("harmonizer.min_score", d.Harmonizer.MinScore)
	v.SetDefault("harmonizer.single_source_confidence", d.Harmonizer.SingleSourceConfidence)
	v.SetDefault("harmonizer.single_source_threshold", d.Harmonizer.SingleSourceThreshold)
	v.SetDefault("harmonizer.min_line_similarity", d.Harmonizer.MinLineSimilarity)
	v.SetDefault("harmonizer.lexicon_path", d.Harmonizer.LexiconPath)
	v.SetDefault("harmonizer.weights.char_class", d.Harmonizer.Weights.CharClass)
	v.SetDefault("harmonizer.weights.lexicon", d.Harmonizer.Weights.Lexicon)
	v.SetDefault("harmonizer.weights.case_shape", d.Harmonizer.Weights.CaseShape)
	v.SetDefault("harmonizer.weights.length", d.Harmonizer.Weights.Length)

	v.SetDefault("review.queue_path", d.Review.QueuePath)
	v.SetDefault("review.single_writer", d.Review.SingleWriter)
	v.SetDefault("review.lock_wait_seconds", d.Review.LockWaitSeconds)

	v.SetDefault("sweep.schedule", d.Sweep.Schedule)
	v.SetDefault("sweep.force", d.Sweep.Force)

	v.SetDefault("cleanup.common_fixes", d.Cleanup.CommonFixes)
}

// load parses the current viper state into a validated Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFileUsed returns the config file path, or "" when running on defaults.
func (cm *Manager) ConfigFileUsed() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
// Edits that fail validation are logged and ignored.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.reload(e.Name)
	})
	cm.v.WatchConfig()
}

func (cm *Manager) reload(source string) {
	cfg, err := cm.load()
	if err != nil {
		slog.Warn("ignoring config change", "file", source, "error", err)
		return
	}

	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ResolvedEnv returns the engine's KEY=VALUE entries with ${ENV_VAR} expanded.
func (e EngineCfg) ResolvedEnv() []string {
	out := make([]string, 0, len(e.Env))
	for _, kv := range e.Env {
		out = append(out, ResolveEnvVars(kv))
	}
	return out
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Collate configuration
# Data roots may also come from RAW_ROOT, OCR_ROOT, OUTPUTS_ROOT and STATE_ROOT
# (environment or {home}/.env). Engine env entries use ${ENV_VAR} syntax.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
