package harmonize

import (
	"fmt"
	"strings"
	"unicode"
)

// Scorer rates how plausible a candidate line is as correctly recognized
// text. Scores are in [0,1]; higher is more plausible.
type Scorer interface {
	Score(text string) float64
}

// Weights combine the LexiconScorer signals.
type Weights struct {
	CharClass float64 `json:"char_class"`
	Lexicon   float64 `json:"lexicon"`
	CaseShape float64 `json:"case_shape"`
	Length    float64 `json:"length"`
}

// DefaultWeights favours dictionary hits, then character validity.
func DefaultWeights() Weights {
	return Weights{CharClass: 0.3, Lexicon: 0.4, CaseShape: 0.2, Length: 0.1}
}

// LexiconScorer is the default Scorer: a weighted mean of
//
//   - character-class validity: share of visible runes that are letters,
//     digits or ordinary punctuation
//   - lexicon hit rate: share of word tokens found in the lexicon
//   - case shape: share of tokens cased like real words (lower, UPPER, Title)
//   - length plausibility: share of tokens of a believable length, halved
//     when the line is shattered into single characters
type LexiconScorer struct {
	weights Weights
	lexicon Lexicon
}

// NewLexiconScorer returns a scorer. A nil lexicon uses the built-in list.
func NewLexiconScorer(w Weights, lex Lexicon) *LexiconScorer {
	if lex == nil {
		lex = DefaultWordList()
	}
	return &LexiconScorer{weights: w, lexicon: lex}
}

// Fingerprint identifies the scoring configuration.
func (s *LexiconScorer) Fingerprint() string {
	lex := fmt.Sprintf("%T", s.lexicon)
	if wl, ok := s.lexicon.(*WordList); ok {
		lex = wl.Digest()
	}
	return fmt.Sprintf("lexicon-scorer:%v/%v/%v/%v:%s",
		s.weights.CharClass, s.weights.Lexicon, s.weights.CaseShape, s.weights.Length, lex)
}

func (s *LexiconScorer) Score(text string) float64 {
	tokens := tokenize(text)
	w := s.weights
	total := w.CharClass + w.Lexicon + w.CaseShape + w.Length
	if total <= 0 {
		return 0
	}
	score := w.CharClass*charClassScore(text) +
		w.Lexicon*s.lexiconScore(tokens) +
		w.CaseShape*caseShapeScore(tokens) +
		w.Length*lengthScore(tokens)
	return clamp01(score / total)
}

// tokenize splits text into runs of letters, digits and inner apostrophes.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’')
	})
}

var validPunct = ".,;:!?'\"()[]-–—/&%$#*+=’‘“”…•"

func charClassScore(text string) float64 {
	visible, valid := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(validPunct, r) {
			valid++
		}
	}
	if visible == 0 {
		return 0
	}
	return float64(valid) / float64(visible)
}

func (s *LexiconScorer) lexiconScore(tokens []string) float64 {
	words, hits := 0, 0
	for _, tok := range tokens {
		tok = strings.Trim(strings.ToLower(tok), "'’")
		if tok == "" {
			continue
		}
		words++
		switch {
		case isNumber(tok), isOrdinal(tok):
			hits++
		case s.lexicon.Contains(strings.ReplaceAll(tok, "’", "'")):
			hits++
		}
	}
	if words == 0 {
		return 0
	}
	return float64(hits) / float64(words)
}

func caseShapeScore(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	ok := 0
	for _, tok := range tokens {
		if plausibleShape(tok) {
			ok++
		}
	}
	return float64(ok) / float64(len(tokens))
}

// plausibleShape accepts lower, UPPER, Title and numeric tokens. Mixed case
// ("feII") and letter/digit mixes ("c0mbat") are typical misreads.
func plausibleShape(tok string) bool {
	rs := []rune(strings.Trim(tok, "'’"))
	if len(rs) <= 1 || isNumber(string(rs)) || isOrdinal(strings.ToLower(string(rs))) {
		return true
	}
	upper, lower, digit := 0, 0, 0
	for _, r := range rs {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		case unicode.IsDigit(r):
			digit++
		}
	}
	if digit > 0 {
		return false
	}
	if upper == 0 || lower == 0 {
		return true
	}
	// Title case: one leading capital.
	return upper == 1 && unicode.IsUpper(rs[0])
}

func lengthScore(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	ok, singles := 0, 0
	for _, tok := range tokens {
		n := len([]rune(tok))
		if n <= 20 {
			ok++
		}
		if n == 1 {
			singles++
		}
	}
	score := float64(ok) / float64(len(tokens))
	if len(tokens) >= 3 && singles*2 > len(tokens) {
		score /= 2
	}
	return score
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isOrdinal(s string) bool {
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(s, suffix) && isNumber(strings.TrimSuffix(s, suffix)) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
