package harmonize

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

var metricTokenRe = regexp.MustCompile(`[a-z0-9]+`)

// PageMetrics are coarse quality indicators for one source page. They are
// recorded in the metadata to help triage engines, not used for selection.
type PageMetrics struct {
	CharCount          int     `json:"char_count"`
	WordCount          int     `json:"word_count"`
	LineCount          int     `json:"line_count"`
	Empty              bool    `json:"empty"`
	Short              bool    `json:"short"`
	SymbolNoiseRatio   float64 `json:"symbol_noise_ratio"`
	DuplicateLineRatio float64 `json:"duplicate_line_ratio"`
	QualityScore       float64 `json:"quality_score"`
	LowQuality         bool    `json:"low_quality"`
	Suspicious         bool    `json:"suspicious"`
}

// ComputePageMetrics scores a page on a 0-100ish scale: empty and short pages,
// symbol noise and repeated lines are penalized; richer text gets a small bonus.
func ComputePageMetrics(text string) PageMetrics {
	stripped := strings.TrimSpace(text)
	words := metricTokenRe.FindAllString(strings.ToLower(stripped), -1)

	var lines []string
	distinct := make(map[string]struct{})
	for _, ln := range strings.Split(stripped, "\n") {
		sig := strings.Join(strings.Fields(strings.ToLower(ln)), " ")
		if sig == "" {
			continue
		}
		lines = append(lines, sig)
		distinct[sig] = struct{}{}
	}

	m := PageMetrics{
		CharCount: len([]rune(stripped)),
		WordCount: len(words),
		LineCount: len(lines),
	}
	m.Empty = m.WordCount == 0
	m.Short = m.WordCount < 25

	visible, symbols := 0, 0
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}
	m.SymbolNoiseRatio = 1
	if visible > 0 {
		m.SymbolNoiseRatio = float64(symbols) / float64(visible)
	}
	if m.LineCount > 1 {
		m.DuplicateLineRatio = float64(m.LineCount-len(distinct)) / float64(m.LineCount)
	}

	score := 100.0
	if m.Empty {
		score -= 120
	}
	if m.Short {
		score -= 30
	}
	score -= 60 * m.SymbolNoiseRatio
	score -= 40 * m.DuplicateLineRatio
	score += float64(min(m.WordCount, 300)) / 20

	m.LowQuality = score < 45 || (m.Short && m.SymbolNoiseRatio > 0.28)
	m.Suspicious = m.Empty || m.WordCount < 15 || m.SymbolNoiseRatio > 0.45 || m.DuplicateLineRatio > 0.45

	m.SymbolNoiseRatio = round(m.SymbolNoiseRatio, 4)
	m.DuplicateLineRatio = round(m.DuplicateLineRatio, 4)
	m.QualityScore = round(score, 3)
	return m
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
