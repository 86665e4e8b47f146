package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the collate home directory.
	DefaultDirName = ".collate"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// EnvFileName is the dotenv file holding root overrides.
	EnvFileName = ".env"

	// EngineA is the directory name for the line-oriented plain-text engine.
	EngineA = "macos_vision"

	// EngineB is the directory name for the markdown-producing engine.
	EngineB = "deepseek"
)

// Roots are the externally provided data locations.
// Empty fields are derived from the home directory.
type Roots struct {
	Raw     string
	OCR     string
	Outputs string
	State   string
}

// Dir represents the collate directory layout.
type Dir struct {
	path  string
	roots Roots
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.collate).
func New(path string) (*Dir, error) {
	return NewWithRoots(path, Roots{})
}

// NewWithRoots creates a Dir whose data roots may live outside the home directory.
func NewWithRoots(path string, roots Roots) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	if roots.Raw == "" {
		roots.Raw = filepath.Join(path, "raw")
	}
	if roots.OCR == "" {
		roots.OCR = filepath.Join(path, "ocr")
	}
	if roots.Outputs == "" {
		roots.Outputs = filepath.Join(path, "outputs")
	}
	if roots.State == "" {
		roots.State = filepath.Join(path, "state")
	}

	return &Dir{path: path, roots: roots}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// Roots returns the resolved data roots.
func (d *Dir) Roots() Roots {
	return d.roots
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnvPath returns the path to the dotenv file.
func (d *Dir) EnvPath() string {
	return filepath.Join(d.path, EnvFileName)
}

// EnsureExists creates the home directory and the writable roots if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.path, d.roots.Outputs, d.roots.State, d.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// RawDir returns the directory holding raw source PDFs.
func (d *Dir) RawDir() string {
	return d.roots.Raw
}

// EngineDir returns the output directory of an OCR engine.
func (d *Dir) EngineDir(engine string) string {
	return filepath.Join(d.roots.OCR, engine)
}

// DocumentDir returns the engine output directory for a document.
func (d *Dir) DocumentDir(engine, docID string) string {
	return filepath.Join(d.EngineDir(engine), docID)
}

// SourceAPath returns the plain-text transcription for a document.
func (d *Dir) SourceAPath(docID string) string {
	return filepath.Join(d.DocumentDir(EngineA, docID), "result.txt")
}

// SourceBPath returns the cleaned markdown transcription for a document.
func (d *Dir) SourceBPath(docID string) string {
	return filepath.Join(d.DocumentDir(EngineB, docID), "result.cleaned.md")
}

// SourceBRawPath returns the uncleaned markdown transcription for a document.
func (d *Dir) SourceBRawPath(docID string) string {
	return filepath.Join(d.DocumentDir(EngineB, docID), "result.md")
}

// SourceBPagesDir returns the per-page markdown directory for a document.
func (d *Dir) SourceBPagesDir(docID string) string {
	return filepath.Join(d.DocumentDir(EngineB, docID), "pages")
}

// HarmonizedDir returns the directory holding all harmonized documents.
func (d *Dir) HarmonizedDir() string {
	return filepath.Join(d.roots.Outputs, "harmonized")
}

// HarmonizedDocDir returns the harmonized output directory for a document.
func (d *Dir) HarmonizedDocDir(docID string) string {
	return filepath.Join(d.HarmonizedDir(), docID)
}

// ReviewQueuePath returns the consolidated review queue.
func (d *Dir) ReviewQueuePath() string {
	return filepath.Join(d.roots.Outputs, "review_queue.jsonl")
}

// EngineStateDir returns the runner state directory for an engine.
func (d *Dir) EngineStateDir(engine string) string {
	return filepath.Join(d.roots.State, engine)
}

// LockDir returns the advisory lock directory for an engine runner.
func (d *Dir) LockDir(engine string) string {
	return filepath.Join(d.EngineStateDir(engine), "runner.lock")
}

// HeartbeatPath returns the heartbeat record for an engine runner.
func (d *Dir) HeartbeatPath(engine string) string {
	return filepath.Join(d.EngineStateDir(engine), "heartbeat.json")
}

// AlertsPath returns the alert log for an engine runner.
func (d *Dir) AlertsPath(engine string) string {
	return filepath.Join(d.EngineStateDir(engine), "alerts.jsonl")
}

// AggregatorLockDir returns the single-writer lock for the consolidated queue.
func (d *Dir) AggregatorLockDir() string {
	return filepath.Join(d.roots.State, "aggregate.lock")
}

// LogsDir returns the directory for captured job logs.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.roots.State, "logs")
}

// EngineLogsDir returns the job log directory for an engine.
func (d *Dir) EngineLogsDir(engine string) string {
	return filepath.Join(d.LogsDir(), engine)
}

// EnsureEngineDirs creates the state and log directories for an engine runner.
func (d *Dir) EnsureEngineDirs(engine string) error {
	if err := os.MkdirAll(d.EngineStateDir(engine), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(d.EngineLogsDir(engine), 0o755)
}
