// Package inventory reports raw source PDFs and how far each OCR engine has
// transcribed them.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/collate/internal/home"
)

// EngineMetaFile is the per-document record an engine batch job writes.
const EngineMetaFile = "meta.json"

// Engine output states.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
	StatusPending = "pending" // No output yet
	StatusUnknown = "unknown" // Output without a readable record
)

// PageCounter returns the number of pages of a PDF.
type PageCounter func(path string) (int, error)

// EngineCoverage is one engine's progress on a document.
type EngineCoverage struct {
	Engine      string `json:"engine" yaml:"engine"`
	Status      string `json:"status" yaml:"status"`
	Pages       int    `json:"pages" yaml:"pages"`
	FailedPages int    `json:"failed_pages" yaml:"failed_pages"`
}

// Document is one raw PDF.
type Document struct {
	ID      string           `json:"id" yaml:"id"`
	Path    string           `json:"path" yaml:"path"` // Relative to the raw root
	Pages   int              `json:"pages" yaml:"pages"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
	Engines []EngineCoverage `json:"engines" yaml:"engines"`
}

// Totals summarize a Report.
type Totals struct {
	Documents  int            `json:"documents" yaml:"documents"`
	Pages      int            `json:"pages" yaml:"pages"`
	Unreadable int            `json:"unreadable" yaml:"unreadable"`
	Complete   map[string]int `json:"complete" yaml:"complete"` // Documents with status ok, per engine
}

// Report is the inventory of the raw root.
type Report struct {
	Documents []Document `json:"documents" yaml:"documents"`
	Totals    Totals     `json:"totals" yaml:"totals"`
}

// DocumentID derives the identifier engines use for a PDF: its path relative
// to the raw root with separators replaced by "__" and the extension removed.
func DocumentID(rel string) string {
	rel = filepath.ToSlash(rel)
	if ext := filepath.Ext(rel); strings.EqualFold(ext, ".pdf") {
		rel = strings.TrimSuffix(rel, ext)
	}
	return strings.ReplaceAll(rel, "/", "__")
}

// CountPages counts pages with pdfcpu in relaxed validation mode.
func CountPages(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}
	return n, nil
}

// Scanner builds inventory reports.
type Scanner struct {
	home    *home.Dir
	count   PageCounter
	engines []string
	logger  *slog.Logger
}

// New returns a Scanner over h. A nil counter uses CountPages.
func New(h *home.Dir, count PageCounter, logger *slog.Logger) *Scanner {
	if count == nil {
		count = CountPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		home:    h,
		count:   count,
		engines: []string{home.EngineA, home.EngineB},
		logger:  logger,
	}
}

// Scan lists every PDF under the raw root. An unreadable PDF is reported
// with its error rather than failing the scan.
func (s *Scanner) Scan() (*Report, error) {
	root := s.home.RawDir()
	report := &Report{
		Documents: []Document{},
		Totals:    Totals{Complete: make(map[string]int)},
	}
	for _, engine := range s.engines {
		report.Totals.Complete[engine] = 0
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		doc := Document{ID: DocumentID(rel), Path: filepath.ToSlash(rel)}
		if n, err := s.count(path); err != nil {
			doc.Error = err.Error()
			report.Totals.Unreadable++
			s.logger.Warn("failed to count pages", "path", path, "error", err)
		} else {
			doc.Pages = n
			report.Totals.Pages += n
		}
		for _, engine := range s.engines {
			cov := s.coverage(engine, doc.ID)
			if cov.Status == StatusOK {
				report.Totals.Complete[engine]++
			}
			doc.Engines = append(doc.Engines, cov)
		}
		report.Documents = append(report.Documents, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(report.Documents, func(i, j int) bool {
		return report.Documents[i].ID < report.Documents[j].ID
	})
	report.Totals.Documents = len(report.Documents)
	return report, nil
}

// engineMeta is the subset of an engine's per-document record we read.
type engineMeta struct {
	Status      string `json:"status"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failed_pages"`
}

func (s *Scanner) coverage(engine, docID string) EngineCoverage {
	cov := EngineCoverage{Engine: engine, Status: StatusPending}
	dir := s.home.DocumentDir(engine, docID)

	data, err := os.ReadFile(filepath.Join(dir, EngineMetaFile))
	if err == nil {
		var m engineMeta
		if jerr := json.Unmarshal(data, &m); jerr == nil && m.Status != "" {
			cov.Status = m.Status
			cov.Pages = m.Pages
			cov.FailedPages = m.FailedPages
			return cov
		}
	}

	if _, err := os.Stat(dir); err == nil {
		cov.Status = StatusUnknown
	}
	return cov
}
