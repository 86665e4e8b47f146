package harmonize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output file names within a document's output directory.
const (
	MarkdownFile       = "harmonized.md"
	MetaFile           = "harmonized.meta.json"
	ReviewQueueFile    = "review_queue.jsonl"
	ReviewMarkdownFile = "review_queue.md"
)

// Meta is the metadata record written next to the harmonized text.
type Meta struct {
	DocumentID  string           `json:"document_id"`
	Inputs      InputDigests     `json:"inputs"`
	Fingerprint string           `json:"fingerprint"`
	PageMarkers bool             `json:"page_markers"`
	Summary     Summary          `json:"summary"`
	Pages       []PageReport     `json:"pages"`
	Lines       []HarmonizedLine `json:"lines"`
}

// Meta returns the metadata record for res.
func (res *Result) Meta() Meta {
	lines := res.Lines
	if lines == nil {
		lines = []HarmonizedLine{}
	}
	pages := res.Pages
	if pages == nil {
		pages = []PageReport{}
	}
	return Meta{
		DocumentID:  res.Document.ID,
		Inputs:      res.Inputs,
		Fingerprint: res.Fingerprint,
		PageMarkers: res.Marked,
		Summary:     res.Summary,
		Pages:       pages,
		Lines:       lines,
	}
}

// ReadMeta loads a metadata record.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return &m, nil
}

// Paths are the files written for one document.
type Paths struct {
	Markdown       string `json:"markdown" yaml:"markdown"`
	Meta           string `json:"meta" yaml:"meta"`
	ReviewQueue    string `json:"review_queue" yaml:"review_queue"`
	ReviewMarkdown string `json:"review_markdown" yaml:"review_markdown"`
}

// Write stores all outputs of res under dir. The metadata is written last so
// its presence marks a complete set.
func Write(dir string, res *Result) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("failed to create output dir: %w", err)
	}
	p := Paths{
		Markdown:       filepath.Join(dir, MarkdownFile),
		Meta:           filepath.Join(dir, MetaFile),
		ReviewQueue:    filepath.Join(dir, ReviewQueueFile),
		ReviewMarkdown: filepath.Join(dir, ReviewMarkdownFile),
	}

	queue, err := EncodeReviewQueue(res.Review)
	if err != nil {
		return p, err
	}
	meta, err := encodeJSON(res.Meta(), true)
	if err != nil {
		return p, fmt.Errorf("failed to encode metadata: %w", err)
	}

	// A stale meta must not vouch for partially rewritten outputs.
	if err := os.Remove(p.Meta); err != nil && !os.IsNotExist(err) {
		return p, fmt.Errorf("failed to remove stale metadata: %w", err)
	}
	for _, f := range []struct {
		path string
		data []byte
	}{
		{p.Markdown, []byte(res.Markdown)},
		{p.ReviewQueue, queue},
		{p.ReviewMarkdown, []byte(RenderReviewMarkdown(res))},
		{p.Meta, meta},
	} {
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return p, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}
	return p, nil
}

// EncodeReviewQueue renders review items as JSON lines.
func EncodeReviewQueue(items []ReviewItem) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		data, err := encodeJSON(item, false)
		if err != nil {
			return nil, fmt.Errorf("failed to encode review item: %w", err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// encodeJSON marshals without HTML escaping so candidate text stays verbatim.
func encodeJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderReviewMarkdown renders a human-readable review report.
func RenderReviewMarkdown(res *Result) string {
	var b strings.Builder
	b.WriteString("# OCR Harmonization Review Queue\n\n")
	fmt.Fprintf(&b, "Document: `%s`\n\n", res.Document.ID)
	s := res.Summary
	fmt.Fprintf(&b, "Review items: %d of %d lines (%d conflict, %d low-confidence, %d missing-source)\n",
		s.ReviewItems, s.Lines, s.Conflicts, s.LowConfidence, s.MissingSource)

	for _, item := range res.Review {
		fmt.Fprintf(&b, "\n## Page %d, line %d: %s\n\n", item.Page, item.Line, item.Reason)
		writeCandidate(&b, "Source A", item.CandidateA)
		writeCandidate(&b, "Source B", item.CandidateB)
	}
	return b.String()
}

func writeCandidate(b *strings.Builder, label string, text *string) {
	if text == nil {
		fmt.Fprintf(b, "- %s: (absent)\n", label)
		return
	}
	fmt.Fprintf(b, "- %s:\n\n```text\n%s\n```\n", label, *text)
}
