// Package sweep harmonizes every discovered document and consolidates the
// review queues of the documents it rewrote.
package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/jackzampolin/collate/internal/cleanup"
	"github.com/jackzampolin/collate/internal/harmonize"
	"github.com/jackzampolin/collate/internal/home"
	"github.com/jackzampolin/collate/internal/review"
)

// SummaryFile is written to the harmonized directory after every sweep.
const SummaryFile = "summary.json"

// SourceBMode records where a document's source B text came from.
type SourceBMode string

const (
	SourceBCleaned SourceBMode = "cleaned"
	SourceBRaw     SourceBMode = "raw"
	SourceBPages   SourceBMode = "pages"
	SourceBMissing SourceBMode = "missing"
)

// Status is the outcome for one document.
type Status string

const (
	StatusHarmonized Status = "harmonized"
	StatusUnchanged  Status = "unchanged"
	StatusFailed     Status = "failed"
)

// DocResult is the outcome for one document.
type DocResult struct {
	DocumentID  string             `json:"document_id" yaml:"document_id"`
	Status      Status             `json:"status" yaml:"status"`
	SourceBMode SourceBMode        `json:"source_b" yaml:"source_b"`
	Summary     *harmonize.Summary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary reports one sweep.
type Summary struct {
	Documents   int          `json:"documents" yaml:"documents"`
	Harmonized  int          `json:"harmonized" yaml:"harmonized"`
	Unchanged   int          `json:"unchanged" yaml:"unchanged"`
	Failed      int          `json:"failed" yaml:"failed"`
	Aggregation review.Stats `json:"aggregation" yaml:"aggregation"`
	Results     []DocResult  `json:"results" yaml:"results"`
}

// Config configures a Sweeper.
type Config struct {
	Home       *home.Dir
	Harmonizer *harmonize.Harmonizer
	Cleaner    *cleanup.Cleaner
	Aggregator *review.Aggregator
	// QueuePath overrides the consolidated queue location.
	QueuePath string
	// Force re-harmonizes documents whose inputs are unchanged.
	Force  bool
	Logger *slog.Logger
}

// Sweeper runs sweeps. It is not safe for concurrent use.
type Sweeper struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Home == nil {
		return nil, fmt.Errorf("home directory is required")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if cfg.Harmonizer == nil {
		cfg.Harmonizer = harmonize.New(harmonize.DefaultOptions(), nil)
	}
	if cfg.Cleaner == nil {
		cfg.Cleaner = cleanup.New(nil)
	}
	if cfg.QueuePath == "" {
		cfg.QueuePath = cfg.Home.ReviewQueuePath()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cfg: cfg, logger: logger}, nil
}

// Discover returns the sorted union of document directories of both engines.
func (s *Sweeper) Discover() ([]string, error) {
	seen := make(map[string]bool)
	for _, engine := range []string{home.EngineA, home.EngineB} {
		entries, err := os.ReadDir(s.cfg.Home.EngineDir(engine))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s outputs: %w", engine, err)
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				seen[e.Name()] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ResolveSourceB returns the cleaned source B text of a document, preferring
// an already cleaned transcription, then the raw one, then per-page files.
func (s *Sweeper) ResolveSourceB(docID string) (*string, SourceBMode, error) {
	h := s.cfg.Home

	data, err := os.ReadFile(h.SourceBPath(docID))
	switch {
	case err == nil:
		text := string(data)
		return &text, SourceBCleaned, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, SourceBMissing, fmt.Errorf("failed to read cleaned source B: %w", err)
	}

	data, err = os.ReadFile(h.SourceBRawPath(docID))
	switch {
	case err == nil:
		text := s.cfg.Cleaner.Clean(string(data))
		return &text, SourceBRaw, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, SourceBMissing, fmt.Errorf("failed to read raw source B: %w", err)
	}

	text, ok, err := s.synthesizePages(docID)
	if err != nil {
		return nil, SourceBMissing, err
	}
	if !ok {
		return nil, SourceBMissing, nil
	}
	text = s.cfg.Cleaner.Clean(text)
	return &text, SourceBPages, nil
}

// synthesizePages joins pages/page_NNNN.md files in page order, each under
// its page marker.
func (s *Sweeper) synthesizePages(docID string) (string, bool, error) {
	dir := s.cfg.Home.SourceBPagesDir(docID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to list source B pages: %w", err)
	}

	type pageFile struct {
		num  int
		path string
	}
	var pages []pageFile
	for _, e := range entries {
		var n int
		if e.IsDir() {
			continue
		}
		if _, err := fmt.Sscanf(e.Name(), "page_%d.md", &n); err != nil || n < 1 {
			continue
		}
		pages = append(pages, pageFile{num: n, path: filepath.Join(dir, e.Name())})
	}
	if len(pages) == 0 {
		return "", false, nil
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	var b strings.Builder
	for _, p := range pages {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return "", false, fmt.Errorf("failed to read %s: %w", p.path, err)
		}
		b.WriteString(harmonize.PageMarker(p.num))
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(string(data), "\n"))
		b.WriteString("\n")
	}
	return b.String(), true, nil
}

// Sweep harmonizes every discovered document, aggregates the review queues
// of the documents it rewrote and writes the sweep summary. A failing
// document is recorded and does not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*Summary, error) {
	ids, err := s.Discover()
	if err != nil {
		return nil, err
	}

	sum := &Summary{Results: make([]DocResult, 0, len(ids))}
	var written []review.Source
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			s.invalidate(written)
			return sum, err
		}
		res := s.sweepDocument(id)
		sum.Documents++
		switch res.Status {
		case StatusHarmonized:
			sum.Harmonized++
			written = append(written, review.Source{
				DocumentID: id,
				Path:       filepath.Join(s.cfg.Home.HarmonizedDocDir(id), harmonize.ReviewQueueFile),
			})
		case StatusUnchanged:
			sum.Unchanged++
		case StatusFailed:
			sum.Failed++
		}
		sum.Results = append(sum.Results, res)
	}

	if len(written) > 0 {
		stats, err := s.cfg.Aggregator.Aggregate(ctx, written, s.cfg.QueuePath)
		sum.Aggregation = stats
		if err != nil {
			// Without metadata the next sweep redoes these documents and
			// appends their queues again.
			s.invalidate(written)
			return sum, fmt.Errorf("failed to aggregate review queues: %w", err)
		}
	}

	if err := s.writeSummary(sum); err != nil {
		return sum, err
	}
	s.logger.Info("sweep complete",
		"documents", sum.Documents, "harmonized", sum.Harmonized,
		"unchanged", sum.Unchanged, "failed", sum.Failed,
		"review_records", sum.Aggregation.Appended)
	return sum, nil
}

func (s *Sweeper) sweepDocument(id string) DocResult {
	res := DocResult{DocumentID: id, SourceBMode: SourceBMissing}
	fail := func(err error) DocResult {
		res.Status = StatusFailed
		res.Error = err.Error()
		s.logger.Warn("failed to harmonize document", "document", id, "error", err)
		return res
	}

	b, mode, err := s.ResolveSourceB(id)
	res.SourceBMode = mode
	if err != nil {
		return fail(err)
	}
	in, err := harmonize.LoadInput(id, s.cfg.Home.SourceAPath(id), "")
	if err != nil && !errors.Is(err, harmonize.ErrMissingInput) {
		return fail(err)
	}
	in.B = b
	if in.A == nil && in.B == nil {
		return fail(&harmonize.MissingInputError{DocumentID: id})
	}

	outDir := s.cfg.Home.HarmonizedDocDir(id)
	if !s.cfg.Force && s.unchanged(outDir, in) {
		res.Status = StatusUnchanged
		s.logger.Debug("document unchanged", "document", id)
		return res
	}

	result, err := s.cfg.Harmonizer.Harmonize(in)
	if err != nil {
		return fail(err)
	}
	if _, err := harmonize.Write(outDir, result); err != nil {
		return fail(err)
	}
	res.Status = StatusHarmonized
	res.Summary = &result.Summary
	s.logger.Info("document harmonized",
		"document", id, "source_b", mode,
		"lines", result.Summary.Lines, "review_items", result.Summary.ReviewItems)
	return res
}

// unchanged reports whether the outputs in dir were produced from the same
// inputs by an identically configured harmonizer.
func (s *Sweeper) unchanged(dir string, in harmonize.Input) bool {
	meta, err := harmonize.ReadMeta(filepath.Join(dir, harmonize.MetaFile))
	if err != nil {
		return false
	}
	return meta.Fingerprint == s.cfg.Harmonizer.Fingerprint() &&
		reflect.DeepEqual(meta.Inputs, in.Digests())
}

func (s *Sweeper) invalidate(sources []review.Source) {
	for _, src := range sources {
		path := filepath.Join(s.cfg.Home.HarmonizedDocDir(src.DocumentID), harmonize.MetaFile)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("failed to invalidate harmonized metadata", "document", src.DocumentID, "error", err)
		}
	}
}

func (s *Sweeper) writeSummary(sum *Summary) error {
	dir := s.cfg.Home.HarmonizedDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create harmonized dir: %w", err)
	}
	data, err := encodeSummary(sum)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sweep summary: %w", err)
	}
	return nil
}

func encodeSummary(sum *Summary) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return nil, fmt.Errorf("failed to encode sweep summary: %w", err)
	}
	return buf.Bytes(), nil
}
