package cleanup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClean(t *testing.T) {
	c := New([]Fix{{From: "Shadownrun", To: "Shadowrun"}, {From: "Edltion", To: "Edition"}})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips grounding tags",
			in:   "<|ref|>text<|/ref|><|det|>[[1, 2, 3, 4]]<|/det|>\nBody text.",
			want: "Body text.\n",
		},
		{
			name: "applies common fixes",
			in:   "Shadownrun Third Edltion.",
			want: "Shadowrun Third Edition.\n",
		},
		{
			name: "dehyphenates across lines",
			in:   "The street sam-\nurai waits.",
			want: "The street samurai waits.\n",
		},
		{
			name: "drops page numbers",
			in:   "First paragraph.\n42\nPage 43\nSecond paragraph.",
			want: "First paragraph.\nSecond paragraph.\n",
		},
		{
			name: "dedupes consecutive lines",
			in:   "Repeated line.\nRepeated line.\n\nRepeated line.\nOther.",
			want: "Repeated line.\n\nOther.\n",
		},
		{
			name: "joins wrapped lines",
			in:   "The runner crossed\nthe street and\nkept walking.\nNew sentence.",
			want: "The runner crossed the street and kept walking.\nNew sentence.\n",
		},
		{
			name: "keeps hard breaks",
			in:   "Line with break  \ncontinues here.",
			want: "Line with break  \ncontinues here.\n",
		},
		{
			name: "promotes all-caps headings",
			in:   "COMBAT RULES\nText follows.",
			want: "## Combat Rules\nText follows.\n",
		},
		{
			name: "leaves existing headings",
			in:   "## MAGIC\nText.",
			want: "## MAGIC\nText.\n",
		},
		{
			name: "collapses blank runs",
			in:   "One.\n\n\n\n\nTwo.",
			want: "One.\n\nTwo.\n",
		},
		{
			name: "preserves page markers",
			in:   "===== PAGE 1 =====\nfirst page text\n===== PAGE 2 =====\nsecond page text\n===== PAGE 2 =====",
			want: "===== PAGE 1 =====\nfirst page text\n===== PAGE 2 =====\nsecond page text\n===== PAGE 2 =====\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Clean(tt.in); got != tt.want {
				t.Errorf("Clean()\nwant %q\ngot  %q", tt.want, got)
			}
		})
	}
}

func TestCleanFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "result.md")
	out := filepath.Join(dir, "nested", "result.cleaned.md")
	if err := os.WriteFile(in, []byte("HEADER\r\n\r\nBody text.\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := New(nil).CleanFile(in, out); err != nil {
		t.Fatalf("CleanFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "## Header\n\nBody text.\n" {
		t.Errorf("unexpected output %q", data)
	}

	if err := New(nil).CleanFile(filepath.Join(dir, "missing.md"), out); err == nil {
		t.Error("expected error for missing input")
	}
}
