// Package cleanup normalizes markdown produced by the layout-aware OCR engine
// before harmonization: grounding tags, recurring misreads, hyphenation,
// page furniture and wrapped lines.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	refTagRe     = regexp.MustCompile(`(?i)<\|ref\|>.*?<\|/ref\|>`)
	detTagRe     = regexp.MustCompile(`(?i)<\|det\|>.*?<\|/det\|>`)
	hyphenRe     = regexp.MustCompile(`([\p{L}\p{N}_])-\n([\p{L}\p{N}_])`)
	pageNumberRe = regexp.MustCompile(`(?i)^(page\s+)?\d{1,4}$`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	pageMarkerRe = regexp.MustCompile(`^=====\s*PAGE\s+\d+\s*=====\s*$`)
)

// maxHeadingLen is the longest all-caps line promoted to a heading.
const maxHeadingLen = 70

// Fix is a literal replacement for a recurring misread.
type Fix struct {
	From string
	To   string
}

// Cleaner applies the cleanup passes in a fixed order.
// It is not safe for concurrent use.
type Cleaner struct {
	fixes []Fix
	title cases.Caser
}

// New returns a Cleaner applying fixes in order.
func New(fixes []Fix) *Cleaner {
	return &Cleaner{fixes: fixes, title: cases.Title(language.English)}
}

// Clean returns the cleaned text, always ending in a single newline.
// Page marker lines pass through unchanged and bound every line pass.
func (c *Cleaner) Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = refTagRe.ReplaceAllString(text, "")
	text = detTagRe.ReplaceAllString(text, "")
	for _, f := range c.fixes {
		if f.From != "" {
			text = strings.ReplaceAll(text, f.From, f.To)
		}
	}
	text = hyphenRe.ReplaceAllString(text, "$1$2")

	lines := strings.Split(text, "\n")
	lines = removePageNumbers(lines)
	lines = dedupeConsecutive(lines)
	lines = joinWrapped(lines)
	lines = c.promoteHeadings(lines)

	out := blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out) + "\n"
}

// CleanFile cleans in and writes the result to out, creating parent dirs.
func (c *Cleaner) CleanFile(in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(out, []byte(c.Clean(string(data))), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}

func isMarker(line string) bool {
	return pageMarkerRe.MatchString(strings.TrimSpace(line))
}

func removePageNumbers(lines []string) []string {
	out := lines[:0:0]
	for _, line := range lines {
		if pageNumberRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dedupeConsecutive drops a non-blank line equal to the previous non-blank line.
func dedupeConsecutive(lines []string) []string {
	var out []string
	prev := ""
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s != "" && s == prev && !isMarker(s) {
			continue
		}
		out = append(out, line)
		if s != "" {
			prev = s
		}
	}
	return out
}

// joinWrapped joins a line with its successor when the line does not end a
// sentence or a markdown hard break and the successor starts lower-case.
func joinWrapped(lines []string) []string {
	var out []string
	for i := 0; i < len(lines); i++ {
		cur := lines[i]
		for i+1 < len(lines) && continues(cur, lines[i+1]) {
			cur = strings.TrimRight(cur, " \t") + " " + strings.TrimLeft(lines[i+1], " \t")
			i++
		}
		out = append(out, cur)
	}
	return out
}

func continues(cur, next string) bool {
	if isMarker(cur) || isMarker(next) || strings.HasSuffix(cur, "  ") {
		return false
	}
	c := strings.TrimRight(cur, " \t")
	n := strings.TrimLeft(next, " \t")
	if c == "" || n == "" || strings.ContainsRune(".:;!?", rune(c[len(c)-1])) {
		return false
	}
	r := []rune(n)[0]
	return unicode.IsLower(r)
}

// promoteHeadings turns short all-caps lines into level-two headings.
func (c *Cleaner) promoteHeadings(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		s := strings.TrimSpace(line)
		switch {
		case s == "":
			out = append(out, "")
		case !isMarker(s) && !strings.HasPrefix(s, "#") && len([]rune(s)) < maxHeadingLen && strings.ToUpper(s) == s && hasLetter(s):
			out = append(out, "## "+c.title.String(s))
		default:
			out = append(out, line)
		}
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
