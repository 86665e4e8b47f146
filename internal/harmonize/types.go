package harmonize

import (
	"errors"
	"fmt"
)

// ErrMissingInput is returned when neither source is present for a document.
var ErrMissingInput = errors.New("missing input")

// MissingInputError reports a document with no usable source.
type MissingInputError struct {
	DocumentID string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("document %q: neither source A nor source B is present", e.DocumentID)
}

func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// MatchKind classifies an alignment unit.
type MatchKind string

const (
	MatchExact        MatchKind = "exact"
	MatchNear         MatchKind = "near-match"
	MatchConflicting  MatchKind = "conflicting"
	MatchSingleSource MatchKind = "single-source"
)

// Attribution records which source a harmonized line came from.
type Attribution string

const (
	AttrA            Attribution = "A"
	AttrB            Attribution = "B"
	AttrMerged       Attribution = "merged"
	AttrSingleSource Attribution = "single-source"
)

// Reason explains why a line needs human review.
type Reason string

const (
	ReasonConflict      Reason = "conflict"
	ReasonLowConfidence Reason = "low-confidence"
	ReasonMissingSource Reason = "missing-source"
)

// StatusPending is the status of every newly emitted review item.
const StatusPending = "pending"

// Page is one page of a document. A nil source means that engine produced
// nothing for the page.
type Page struct {
	Number int     `json:"page"`
	A      *string `json:"a,omitempty"`
	B      *string `json:"b,omitempty"`
}

// Document is the unit of harmonization.
type Document struct {
	ID    string `json:"document_id"`
	Pages []Page `json:"pages"`
}

// AlignmentUnit is one position in a page alignment: a matched pair or a
// single-source line.
type AlignmentUnit struct {
	Page     int       `json:"page"`
	Position int       `json:"position"`
	A        *string   `json:"a"`
	B        *string   `json:"b"`
	Match    MatchKind `json:"match"`
}

// HarmonizedLine is one line of the canonical output.
type HarmonizedLine struct {
	Page        int         `json:"page"`
	Line        int         `json:"line"`
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
	Attribution Attribution `json:"attribution"`
	Match       MatchKind   `json:"match"`
}

// ReviewItem is an ambiguous line awaiting human resolution.
type ReviewItem struct {
	Page       int     `json:"page"`
	Line       int     `json:"line"`
	CandidateA *string `json:"candidate_a"`
	CandidateB *string `json:"candidate_b"`
	Reason     Reason  `json:"reason"`
	Status     string  `json:"status"`
}

// Summary counts the outcome of one harmonization.
type Summary struct {
	Pages         int `json:"pages" yaml:"pages"`
	Lines         int `json:"lines" yaml:"lines"`
	Exact         int `json:"exact" yaml:"exact"`
	NearMatch     int `json:"near_match" yaml:"near_match"`
	Conflicting   int `json:"conflicting" yaml:"conflicting"`
	SingleSource  int `json:"single_source" yaml:"single_source"`
	ReviewItems   int `json:"review_items" yaml:"review_items"`
	Conflicts     int `json:"conflicts" yaml:"conflicts"`
	LowConfidence int `json:"low_confidence" yaml:"low_confidence"`
	MissingSource int `json:"missing_source" yaml:"missing_source"`
}

func (s *Summary) addLine(l HarmonizedLine) {
	s.Lines++
	switch l.Match {
	case MatchExact:
		s.Exact++
	case MatchNear:
		s.NearMatch++
	case MatchConflicting:
		s.Conflicting++
	case MatchSingleSource:
		s.SingleSource++
	}
}

func (s *Summary) addReview(r ReviewItem) {
	s.ReviewItems++
	switch r.Reason {
	case ReasonConflict:
		s.Conflicts++
	case ReasonLowConfidence:
		s.LowConfidence++
	case ReasonMissingSource:
		s.MissingSource++
	}
}

func strPtr(s string) *string { return &s }
