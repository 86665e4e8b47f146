package harmonize

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLexiconScorer_PrefersRealWords(t *testing.T) {
	s := NewLexiconScorer(DefaultWeights(), nil)

	tests := []struct {
		better, worse string
	}{
		{"The rain fell.", "The rain feII."},
		{"The combat rules apply here", "Th3 c0mbat ru|es app|y h#re"},
		{"Chapter One", "C h a p t e r O n e"},
		{"Roll the dice", "R0ll tbe dice"},
	}
	for _, tt := range tests {
		if sb, sw := s.Score(tt.better), s.Score(tt.worse); sb <= sw {
			t.Errorf("expected %q (%v) to outscore %q (%v)", tt.better, sb, tt.worse, sw)
		}
	}
}

func TestLexiconScorer_Range(t *testing.T) {
	s := NewLexiconScorer(DefaultWeights(), nil)
	for _, text := range []string{"", "   ", "|||", "The rain fell.", "12 34", "ÆØÅ ~~~ ^^^"} {
		if v := s.Score(text); v < 0 || v > 1 {
			t.Errorf("score of %q out of range: %v", text, v)
		}
	}
	if v := s.Score("The rain fell."); v != 1 {
		t.Errorf("expected a clean dictionary sentence to score 1, got %v", v)
	}
}

func TestPlausibleShape(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"rain", true},
		{"RAIN", true},
		{"Rain", true},
		{"a", true},
		{"1998", true},
		{"3rd", true},
		{"feII", false},
		{"rAin", false},
		{"c0mbat", false},
	}
	for _, tt := range tests {
		if got := plausibleShape(tt.token); got != tt.want {
			t.Errorf("plausibleShape(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestWordList(t *testing.T) {
	wl := DefaultWordList()
	if wl.Len() == 0 {
		t.Fatal("built-in word list is empty")
	}

	for _, w := range []string{"the", "rain", "attacks", "running", "stopped", "rules"} {
		if !wl.Contains(w) {
			t.Errorf("expected %q to be known", w)
		}
	}
	for _, w := range []string{"feii", "xqzv", "s"} {
		if wl.Contains(w) {
			t.Errorf("expected %q to be unknown", w)
		}
	}
}

func TestLoadWordList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	content := "# custom\nKarma\n\nnuyen\nkarma\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	wl, err := LoadWordList(path)
	if err != nil {
		t.Fatalf("LoadWordList: %v", err)
	}
	if wl.Len() != 2 || !wl.Contains("karma") || !wl.Contains("nuyen") {
		t.Errorf("unexpected word list of %d words", wl.Len())
	}

	other, err := ReadWordList(strings.NewReader("karma\nnuyen\n"))
	if err != nil {
		t.Fatal(err)
	}
	if other.Digest() == DefaultWordList().Digest() {
		t.Error("different lists should have different digests")
	}

	if _, err := LoadWordList(filepath.Join(t.TempDir(), "none.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestKeyer(t *testing.T) {
	k := newKeyer()
	tests := []struct {
		in, want string
	}{
		{"Hello   World ", "hello world"},
		{"## **Bold** Heading", "bold heading"},
		{"*emphasis* and `code`", "emphasis and code"},
		{"ﬁre and ﬂame", "fire and flame"},
		{"1990.", "1990."},
		{"- list item", "list item"},
	}
	for _, tt := range tests {
		if got := k.key(tt.in); got != tt.want {
			t.Errorf("key(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want []pairing
	}{
		{
			name: "identical",
			a:    []string{"one", "two"},
			b:    []string{"one", "two"},
			want: []pairing{{0, 0}, {1, 1}},
		},
		{
			name: "deletion",
			a:    []string{"one", "two", "three"},
			b:    []string{"one", "three"},
			want: []pairing{{0, 0}, {1, -1}, {2, 1}},
		},
		{
			name: "insertion",
			a:    []string{"one", "three"},
			b:    []string{"one", "two", "three"},
			want: []pairing{{0, 0}, {-1, 1}, {1, 2}},
		},
		{
			name: "dissimilar replacement splits A before B",
			a:    []string{"alpha", "bbbbbb", "omega"},
			b:    []string{"alpha", "zzzzzz", "omega"},
			want: []pairing{{0, 0}, {1, -1}, {-1, 1}, {2, 2}},
		},
		{
			name: "similar replacement pairs in order",
			a:    []string{"the quick brown fox", "jumps over the dog"},
			b:    []string{"the quick brwn fox", "jumps ovr the dog"},
			want: []pairing{{0, 0}, {1, 1}},
		},
		{
			name: "replacement with an extra line",
			a:    []string{"the quick brown fox"},
			b:    []string{"page header noise", "the quick brwn fox"},
			want: []pairing{{-1, 0}, {0, 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := align(tt.a, tt.b, 0.5)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("align() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitPages(t *testing.T) {
	pt := splitPages("preface\n===== PAGE 2 =====\nbody\n=====  PAGE 3  =====\n")
	if !pt.marked {
		t.Error("expected markers to be detected")
	}
	if got := pt.numbers(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("unexpected pages %v", got)
	}
	if pt.pages[1] != "preface" || pt.pages[2] != "body" {
		t.Errorf("unexpected page text %q / %q", pt.pages[1], pt.pages[2])
	}

	plain := splitPages("no markers\nat all")
	if plain.marked || len(plain.pages) != 1 {
		t.Errorf("unmarked text should be a single page, got %+v", plain)
	}
}

func TestSegmentLines(t *testing.T) {
	got := segmentLines("  first  \n\n\tsecond\r\n[OCR_ERROR] boom\n   \n[MISSING_PAGE_OUTPUT]\nthird")
	want := []string{"  first", "\tsecond", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("segmentLines() = %q, want %q", got, want)
	}
}

func TestComputePageMetrics(t *testing.T) {
	empty := ComputePageMetrics("")
	if !empty.Empty || !empty.Suspicious || !empty.LowQuality {
		t.Errorf("empty page should be flagged, got %+v", empty)
	}

	text := strings.Repeat("The runner moved through the shadows of the city tonight.\n", 5)
	m := ComputePageMetrics(text)
	if m.Empty || m.WordCount != 50 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.DuplicateLineRatio != 0.8 {
		t.Errorf("expected duplicate ratio 0.8, got %v", m.DuplicateLineRatio)
	}
}
