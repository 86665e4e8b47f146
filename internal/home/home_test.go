package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-collate")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-collate" {
			t.Errorf("expected path /tmp/test-collate, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})

	t.Run("explicit roots are kept", func(t *testing.T) {
		dir, err := NewWithRoots("/tmp/test-collate", Roots{OCR: "/mnt/ocr", Outputs: "/mnt/out"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.EngineDir(EngineA) != "/mnt/ocr/macos_vision" {
			t.Errorf("unexpected engine dir %s", dir.EngineDir(EngineA))
		}
		if dir.ReviewQueuePath() != "/mnt/out/review_queue.jsonl" {
			t.Errorf("unexpected review queue path %s", dir.ReviewQueuePath())
		}
		if dir.RawDir() != "/tmp/test-collate/raw" {
			t.Errorf("expected derived raw dir, got %s", dir.RawDir())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-collate")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-collate/config.yaml"},
		{"SourceAPath", dir.SourceAPath("core"), "/tmp/test-collate/ocr/macos_vision/core/result.txt"},
		{"SourceBPath", dir.SourceBPath("core"), "/tmp/test-collate/ocr/deepseek/core/result.cleaned.md"},
		{"SourceBPagesDir", dir.SourceBPagesDir("core"), "/tmp/test-collate/ocr/deepseek/core/pages"},
		{"HarmonizedDocDir", dir.HarmonizedDocDir("core"), "/tmp/test-collate/outputs/harmonized/core"},
		{"LockDir", dir.LockDir("deepseek"), "/tmp/test-collate/state/deepseek/runner.lock"},
		{"HeartbeatPath", dir.HeartbeatPath("deepseek"), "/tmp/test-collate/state/deepseek/heartbeat.json"},
		{"EngineLogsDir", dir.EngineLogsDir("deepseek"), "/tmp/test-collate/state/logs/deepseek"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	collateDir := filepath.Join(tmpDir, "collate-test")

	dir, err := New(collateDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}

	for _, p := range []string{dir.Roots().Outputs, dir.Roots().State, dir.LogsDir()} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Errorf("%s should exist after EnsureExists", p)
		}
	}
}

func TestDir_EnsureEngineDirs(t *testing.T) {
	dir, _ := New(t.TempDir())

	if err := dir.EnsureEngineDirs("deepseek"); err != nil {
		t.Fatalf("EnsureEngineDirs failed: %v", err)
	}
	if _, err := os.Stat(dir.EngineStateDir("deepseek")); err != nil {
		t.Errorf("state dir missing: %v", err)
	}
	if _, err := os.Stat(dir.EngineLogsDir("deepseek")); err != nil {
		t.Errorf("logs dir missing: %v", err)
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	if err := os.WriteFile(dir.ConfigPath(), []byte("runner: {}\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}
