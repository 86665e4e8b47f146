package sweep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/collate/internal/harmonize"
	"github.com/jackzampolin/collate/internal/home"
	"github.com/jackzampolin/collate/internal/lock"
	"github.com/jackzampolin/collate/internal/review"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newHome(t *testing.T) *home.Dir {
	t.Helper()
	h, err := home.NewWithRoots(t.TempDir(), home.Roots{})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func newSweeper(t *testing.T, h *home.Dir, opts review.Options, force bool) *Sweeper {
	t.Helper()
	agg, err := review.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{Home: h, Aggregator: agg, Force: force})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// seed lays out four documents: a conflicting pair with raw source B, an
// A-only document, a B-only document split into page files, and a document
// whose engine directories hold no output.
func seed(t *testing.T, h *home.Dir) {
	t.Helper()
	writeFile(t, h.SourceAPath("doc-conflict"), "The rain fell.\n")
	writeFile(t, h.SourceBRawPath("doc-conflict"), "The rain feII.\n")

	writeFile(t, h.SourceAPath("doc-a-only"), "Chapter One\nIt was a dark night.\n")

	pages := h.SourceBPagesDir("doc-pages")
	writeFile(t, filepath.Join(pages, "page_0001.md"), "First page text.\n")
	writeFile(t, filepath.Join(pages, "page_0002.md"), "Second page text.\n")

	for _, engine := range []string{home.EngineA, home.EngineB} {
		if err := os.MkdirAll(h.DocumentDir(engine, "doc-empty"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func resultFor(t *testing.T, sum *Summary, id string) DocResult {
	t.Helper()
	for _, r := range sum.Results {
		if r.DocumentID == id {
			return r
		}
	}
	t.Fatalf("no result for %s", id)
	return DocResult{}
}

func TestSweep(t *testing.T) {
	h := newHome(t)
	seed(t, h)

	sum, err := newSweeper(t, h, review.Options{}, false).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if sum.Documents != 4 || sum.Harmonized != 3 || sum.Failed != 1 || sum.Unchanged != 0 {
		t.Errorf("unexpected counts %+v", sum)
	}

	modes := map[string]SourceBMode{
		"doc-conflict": SourceBRaw,
		"doc-a-only":   SourceBMissing,
		"doc-pages":    SourceBPages,
	}
	for id, mode := range modes {
		r := resultFor(t, sum, id)
		if r.Status != StatusHarmonized {
			t.Errorf("%s: expected harmonized, got %s (%s)", id, r.Status, r.Error)
		}
		if r.SourceBMode != mode {
			t.Errorf("%s: expected source B %s, got %s", id, mode, r.SourceBMode)
		}
		if _, err := os.Stat(filepath.Join(h.HarmonizedDocDir(id), harmonize.MetaFile)); err != nil {
			t.Errorf("%s: expected metadata: %v", id, err)
		}
	}
	if r := resultFor(t, sum, "doc-empty"); r.Status != StatusFailed || r.Error == "" {
		t.Errorf("doc-empty: expected failure with message, got %+v", r)
	}

	md, err := os.ReadFile(filepath.Join(h.HarmonizedDocDir("doc-pages"), harmonize.MarkdownFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), "First page text.") || !strings.Contains(string(md), "Second page text.") {
		t.Errorf("page files should be harmonized, got %q", md)
	}

	queue, err := os.ReadFile(h.ReviewQueuePath())
	if err != nil {
		t.Fatalf("expected consolidated queue: %v", err)
	}
	if !strings.Contains(string(queue), `"document_id":"doc-conflict"`) {
		t.Errorf("conflict should reach the consolidated queue, got %s", queue)
	}
	if sum.Aggregation.Documents != 3 {
		t.Errorf("expected 3 aggregated queues, got %d", sum.Aggregation.Documents)
	}

	if _, err := os.Stat(filepath.Join(h.HarmonizedDir(), SummaryFile)); err != nil {
		t.Errorf("expected sweep summary: %v", err)
	}
}

func TestSweep_SkipsUnchanged(t *testing.T) {
	h := newHome(t)
	seed(t, h)
	ctx := context.Background()

	if _, err := newSweeper(t, h, review.Options{}, false).Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(h.ReviewQueuePath())
	if err != nil {
		t.Fatal(err)
	}

	sum, err := newSweeper(t, h, review.Options{}, false).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Harmonized != 0 || sum.Unchanged != 3 {
		t.Errorf("expected all documents unchanged, got %+v", sum)
	}
	after, err := os.ReadFile(h.ReviewQueuePath())
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("unchanged documents must not be re-aggregated")
	}

	// A changed input is redone.
	writeFile(t, h.SourceAPath("doc-conflict"), "The rain fell hard.\n")
	sum, err = newSweeper(t, h, review.Options{}, false).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Harmonized != 1 || resultFor(t, sum, "doc-conflict").Status != StatusHarmonized {
		t.Errorf("expected only doc-conflict redone, got %+v", sum)
	}

	// Force redoes everything.
	sum, err = newSweeper(t, h, review.Options{}, true).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Harmonized != 3 {
		t.Errorf("expected forced sweep to redo 3 documents, got %d", sum.Harmonized)
	}
}

func TestSweep_AggregationFailureInvalidates(t *testing.T) {
	h := newHome(t)
	seed(t, h)
	lockDir := filepath.Join(t.TempDir(), "aggregate.lock")

	held, err := lock.Acquire(lockDir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = newSweeper(t, h, review.Options{LockDir: lockDir}, false).Sweep(context.Background())
	if !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("expected lock contention, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.HarmonizedDocDir("doc-conflict"), harmonize.MetaFile)); !os.IsNotExist(err) {
		t.Error("metadata should be removed when aggregation fails")
	}
	if err := held.Release(); err != nil {
		t.Fatal(err)
	}

	sum, err := newSweeper(t, h, review.Options{LockDir: lockDir}, false).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Harmonized != 3 {
		t.Errorf("expected invalidated documents to be redone, got %+v", sum)
	}
}

func TestSweep_Cancelled(t *testing.T) {
	h := newHome(t)
	seed(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSweeper(t, h, review.Options{}, false).Sweep(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(h.ReviewQueuePath()); !os.IsNotExist(err) {
		t.Error("cancelled sweep should not aggregate")
	}
}

func TestResolveSourceB(t *testing.T) {
	h := newHome(t)
	s := newSweeper(t, h, review.Options{}, false)

	writeFile(t, h.SourceBRawPath("doc"), "raw  sam-\nurai\n")
	text, mode, err := s.ResolveSourceB("doc")
	if err != nil {
		t.Fatal(err)
	}
	if mode != SourceBRaw || text == nil || *text != "raw  samurai\n" {
		t.Errorf("expected cleaned raw text, got %s %q", mode, deref(text))
	}

	writeFile(t, h.SourceBPath("doc"), "already cleaned")
	text, mode, err = s.ResolveSourceB("doc")
	if err != nil {
		t.Fatal(err)
	}
	if mode != SourceBCleaned || *text != "already cleaned" {
		t.Errorf("cleaned transcription should win, got %s %q", mode, deref(text))
	}

	text, mode, err = s.ResolveSourceB("absent")
	if err != nil || text != nil || mode != SourceBMissing {
		t.Errorf("expected missing source B, got %s %v %v", mode, text, err)
	}
}

func TestResolveSourceB_Pages(t *testing.T) {
	h := newHome(t)
	s := newSweeper(t, h, review.Options{}, false)
	dir := h.SourceBPagesDir("doc")
	writeFile(t, filepath.Join(dir, "page_0010.md"), "Tenth page.\n")
	writeFile(t, filepath.Join(dir, "page_0002.md"), "Second page.\n")
	writeFile(t, filepath.Join(dir, "notes.md"), "ignored\n")

	text, mode, err := s.ResolveSourceB("doc")
	if err != nil {
		t.Fatal(err)
	}
	want := "===== PAGE 2 =====\nSecond page.\n===== PAGE 10 =====\nTenth page.\n"
	if mode != SourceBPages || deref(text) != want {
		t.Errorf("expected %q, got %s %q", want, mode, deref(text))
	}
}

func TestDiscover(t *testing.T) {
	h := newHome(t)
	s := newSweeper(t, h, review.Options{}, false)

	ids, err := s.Discover()
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no documents without engine dirs, got %v %v", ids, err)
	}

	writeFile(t, h.SourceAPath("b-doc"), "x")
	writeFile(t, h.SourceBRawPath("a-doc"), "x")
	writeFile(t, h.SourceBRawPath("b-doc"), "x")
	writeFile(t, filepath.Join(h.EngineDir(home.EngineA), ".hidden", "result.txt"), "x")
	writeFile(t, filepath.Join(h.EngineDir(home.EngineA), "stray.txt"), "x")

	ids, err = s.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "a-doc,b-doc" {
		t.Errorf("expected sorted union, got %v", ids)
	}
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"*/15 * * * *", "0 3 * * 1-5", "@hourly", "@every 10m"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Errorf("%q: unexpected error %v", expr, err)
		}
	}
	for _, expr := range []string{"", "* * *", "61 * * * *", "0 0 * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("%q: expected error", expr)
		}
	}
}

func TestRunScheduled(t *testing.T) {
	s := newSweeper(t, newHome(t), review.Options{}, false)

	if err := s.RunScheduled(context.Background(), "not a schedule"); err == nil {
		t.Error("expected invalid schedule error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.RunScheduled(ctx, "@hourly"); err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
