package harmonize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	pageMarkerRe = regexp.MustCompile(`^=====\s*PAGE\s+(\d+)\s*=====\s*$`)
	// Engine placeholders written in place of a page that failed to OCR.
	placeholderRe = regexp.MustCompile(`^\s*\[(OCR_ERROR|MISSING_PAGE_OUTPUT)\]`)
)

// PageMarker renders the page separator used by both engines.
func PageMarker(page int) string {
	return fmt.Sprintf("===== PAGE %d =====", page)
}

// pagedText is one source split into pages.
type pagedText struct {
	pages  map[int]string
	marked bool
}

// splitPages splits text on page markers. Text before the first marker, or
// text without any marker, belongs to page 1.
func splitPages(text string) pagedText {
	pt := pagedText{pages: make(map[int]string)}
	current := 1
	var buf []string
	flush := func() {
		body := strings.Join(buf, "\n")
		buf = buf[:0]
		prev, ok := pt.pages[current]
		switch {
		case ok && strings.TrimSpace(body) == "":
		case ok && prev != "":
			pt.pages[current] = prev + "\n" + body
		case ok || strings.TrimSpace(body) != "":
			pt.pages[current] = body
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := pageMarkerRe.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			flush()
			n, err := strconv.Atoi(m[1])
			if err != nil {
				// Out of int range; treat as content.
				buf = append(buf, line)
				continue
			}
			current = n
			pt.marked = true
			if _, ok := pt.pages[current]; !ok {
				pt.pages[current] = ""
			}
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return pt
}

// numbers returns the page numbers in ascending order.
func (pt pagedText) numbers() []int {
	out := make([]int, 0, len(pt.pages))
	for n := range pt.pages {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// segmentLines returns the line units of a page: non-blank, right-trimmed,
// in source order, without engine error placeholders.
func segmentLines(page string) []string {
	var out []string
	for _, line := range strings.Split(page, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if placeholderRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// buildDocument merges the page sets of both sources.
func buildDocument(id string, a, b *pagedText) Document {
	seen := make(map[int]bool)
	var numbers []int
	for _, src := range []*pagedText{a, b} {
		if src == nil {
			continue
		}
		for n := range src.pages {
			if !seen[n] {
				seen[n] = true
				numbers = append(numbers, n)
			}
		}
	}
	sort.Ints(numbers)

	doc := Document{ID: id, Pages: make([]Page, 0, len(numbers))}
	for _, n := range numbers {
		p := Page{Number: n}
		if a != nil {
			if text, ok := a.pages[n]; ok {
				p.A = strPtr(text)
			}
		}
		if b != nil {
			if text, ok := b.pages[n]; ok {
				p.B = strPtr(text)
			}
		}
		doc.Pages = append(doc.Pages, p)
	}
	return doc
}
