// Package harmonize reconciles two OCR transcriptions of the same document
// into one canonical text, per-line metadata and a review queue.
//
// Harmonization is a pure function of its inputs and options: identical
// inputs always produce byte-identical outputs.
package harmonize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Options tune reconciliation.
type Options struct {
	// Margin is the score gap at which the better candidate of a differing
	// pair is accepted without review.
	Margin float64 `json:"margin"`
	// MinScore flags accepted winners that are still implausible.
	MinScore float64 `json:"min_score"`
	// SingleSourceConfidence caps the confidence of unmatched lines.
	SingleSourceConfidence float64 `json:"single_source_confidence"`
	// SingleSourceThreshold flags unmatched lines below this confidence.
	SingleSourceThreshold float64 `json:"single_source_threshold"`
	// MinLineSimilarity is the least character similarity for two differing
	// lines to be aligned as a pair.
	MinLineSimilarity float64 `json:"min_line_similarity"`
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		Margin:                 0.35,
		MinScore:               0.4,
		SingleSourceConfidence: 0.5,
		SingleSourceThreshold:  0.6,
		MinLineSimilarity:      0.5,
	}
}

// Input is one document's two optional sources. Nil means the engine
// produced no output for the document.
type Input struct {
	DocumentID string
	A          *string
	B          *string
}

// SourceDigest identifies one input.
type SourceDigest struct {
	Present bool   `json:"present"`
	SHA256  string `json:"sha256,omitempty"`
	Bytes   int    `json:"bytes"`
}

// InputDigests identify both inputs.
type InputDigests struct {
	A SourceDigest `json:"a"`
	B SourceDigest `json:"b"`
}

// Digests hashes both sources.
func (in Input) Digests() InputDigests {
	return InputDigests{A: digest(in.A), B: digest(in.B)}
}

func digest(s *string) SourceDigest {
	if s == nil {
		return SourceDigest{}
	}
	sum := sha256.Sum256([]byte(*s))
	return SourceDigest{Present: true, SHA256: hex.EncodeToString(sum[:]), Bytes: len(*s)}
}

// LoadInput reads the two sources. An empty path or a missing file is an
// absent source; any other read failure is an error.
func LoadInput(docID, pathA, pathB string) (Input, error) {
	in := Input{DocumentID: docID}
	var err error
	if in.A, err = readOptional(pathA); err != nil {
		return in, err
	}
	if in.B, err = readOptional(pathB); err != nil {
		return in, err
	}
	if in.A == nil && in.B == nil {
		return in, &MissingInputError{DocumentID: docID}
	}
	return in, nil
}

func readOptional(path string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	s := string(data)
	return &s, nil
}

// PageReport records per-source quality for one page.
type PageReport struct {
	Page int          `json:"page"`
	A    *PageMetrics `json:"a"`
	B    *PageMetrics `json:"b"`
}

// Result is the complete outcome of harmonizing one document.
type Result struct {
	Document    Document
	Units       []AlignmentUnit
	Lines       []HarmonizedLine
	Review      []ReviewItem
	Pages       []PageReport
	Markdown    string
	Summary     Summary
	Inputs      InputDigests
	Fingerprint string
	Marked      bool // Either input used page markers
}

// Harmonizer reconciles document pairs.
type Harmonizer struct {
	opts   Options
	scorer Scorer
}

// New returns a Harmonizer. A nil scorer uses the LexiconScorer with default
// weights and the built-in word list.
func New(opts Options, scorer Scorer) *Harmonizer {
	if scorer == nil {
		scorer = NewLexiconScorer(DefaultWeights(), nil)
	}
	return &Harmonizer{opts: opts, scorer: scorer}
}

// Fingerprint identifies the options and scorer, so cached results can be
// invalidated when either changes.
func (h *Harmonizer) Fingerprint() string {
	data, _ := json.Marshal(h.opts)
	scorer := fmt.Sprintf("%T", h.scorer)
	if fp, ok := h.scorer.(interface{ Fingerprint() string }); ok {
		scorer = fp.Fingerprint()
	}
	sum := sha256.Sum256(append(data, scorer...))
	return hex.EncodeToString(sum[:])
}

// Harmonize reconciles one document. It fails only when both sources are
// absent.
func (h *Harmonizer) Harmonize(in Input) (*Result, error) {
	if in.A == nil && in.B == nil {
		return nil, &MissingInputError{DocumentID: in.DocumentID}
	}

	var pa, pb *pagedText
	if in.A != nil {
		p := splitPages(*in.A)
		pa = &p
	}
	if in.B != nil {
		p := splitPages(*in.B)
		pb = &p
	}

	res := &Result{
		Document:    buildDocument(in.DocumentID, pa, pb),
		Inputs:      in.Digests(),
		Fingerprint: h.Fingerprint(),
		Marked:      (pa != nil && pa.marked) || (pb != nil && pb.marked),
	}

	k := newKeyer()
	for _, page := range res.Document.Pages {
		res.Summary.Pages++
		res.Pages = append(res.Pages, pageReport(page))
		h.harmonizePage(k, page, res)
	}
	res.Markdown = render(res)
	return res, nil
}

func pageReport(p Page) PageReport {
	r := PageReport{Page: p.Number}
	if p.A != nil {
		m := ComputePageMetrics(*p.A)
		r.A = &m
	}
	if p.B != nil {
		m := ComputePageMetrics(*p.B)
		r.B = &m
	}
	return r
}

func (h *Harmonizer) harmonizePage(k *keyer, page Page, res *Result) {
	var linesA, linesB []string
	if page.A != nil {
		linesA = segmentLines(*page.A)
	}
	if page.B != nil {
		linesB = segmentLines(*page.B)
	}

	var pairs []pairing
	switch {
	case len(linesA) == 0:
		for j := range linesB {
			pairs = append(pairs, pairing{a: -1, b: j})
		}
	case len(linesB) == 0:
		for i := range linesA {
			pairs = append(pairs, pairing{a: i, b: -1})
		}
	default:
		pairs = align(keys(k, linesA), keys(k, linesB), h.opts.MinLineSimilarity)
	}

	for pos, p := range pairs {
		unit := AlignmentUnit{Page: page.Number, Position: pos + 1}
		if p.a >= 0 {
			unit.A = strPtr(linesA[p.a])
		}
		if p.b >= 0 {
			unit.B = strPtr(linesB[p.b])
		}

		var line HarmonizedLine
		var review *ReviewItem
		if unit.A != nil && unit.B != nil {
			line, review = h.resolvePair(k, &unit)
		} else {
			line, review = h.resolveSingle(&unit)
		}
		line.Page, line.Line, line.Match = unit.Page, unit.Position, unit.Match

		res.Units = append(res.Units, unit)
		res.Lines = append(res.Lines, line)
		res.Summary.addLine(line)
		if review != nil {
			review.Page, review.Line, review.Status = unit.Page, unit.Position, StatusPending
			res.Review = append(res.Review, *review)
			res.Summary.addReview(*review)
		}
	}
}

func keys(k *keyer, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = k.key(l)
	}
	return out
}

// resolvePair selects the text of a matched pair and sets unit.Match.
func (h *Harmonizer) resolvePair(k *keyer, unit *AlignmentUnit) (HarmonizedLine, *ReviewItem) {
	a, b := *unit.A, *unit.B

	if a == b {
		unit.Match = MatchExact
		return HarmonizedLine{Text: a, Confidence: 1, Attribution: AttrMerged}, nil
	}
	if k.key(a) == k.key(b) {
		// Formatting-only difference: keep the markdown rendering of B.
		unit.Match = MatchNear
		return HarmonizedLine{Text: b, Confidence: 1, Attribution: AttrB}, nil
	}

	sa, sb := h.scorer.Score(a), h.scorer.Score(b)
	text, attr, sw, sl := b, AttrB, sb, sa
	if sa > sb {
		text, attr, sw, sl = a, AttrA, sa, sb
	}
	confidence := 0.0
	if sw > 0 {
		confidence = (sw - sl) / sw
	}
	line := HarmonizedLine{Text: text, Confidence: round(confidence, 4), Attribution: attr}

	if sw-sl >= h.opts.Margin {
		unit.Match = MatchNear
		if sw < h.opts.MinScore {
			return line, &ReviewItem{CandidateA: strPtr(a), CandidateB: strPtr(b), Reason: ReasonLowConfidence}
		}
		return line, nil
	}

	unit.Match = MatchConflicting
	return line, &ReviewItem{CandidateA: strPtr(a), CandidateB: strPtr(b), Reason: ReasonConflict}
}

// resolveSingle handles a line present in only one source.
func (h *Harmonizer) resolveSingle(unit *AlignmentUnit) (HarmonizedLine, *ReviewItem) {
	unit.Match = MatchSingleSource
	text, attr := "", AttrSingleSource
	switch {
	case unit.A != nil:
		text, attr = *unit.A, AttrA
	case unit.B != nil:
		text, attr = *unit.B, AttrB
	}

	confidence := round(h.opts.SingleSourceConfidence*h.scorer.Score(text), 4)
	line := HarmonizedLine{Text: text, Confidence: confidence, Attribution: attr}
	if confidence >= h.opts.SingleSourceThreshold {
		return line, nil
	}
	return line, &ReviewItem{CandidateA: unit.A, CandidateB: unit.B, Reason: ReasonMissingSource}
}

// render concatenates harmonized lines in alignment order. Page markers are
// kept when either input used them.
func render(res *Result) string {
	var b strings.Builder
	if !res.Marked {
		for _, l := range res.Lines {
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
		return b.String()
	}

	byPage := make(map[int][]string)
	for _, l := range res.Lines {
		byPage[l.Page] = append(byPage[l.Page], l.Text)
	}
	for i, p := range res.Document.Pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(PageMarker(p.Number))
		b.WriteByte('\n')
		for _, text := range byPage[p.Number] {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
