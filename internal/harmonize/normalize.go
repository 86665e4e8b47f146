package harmonize

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// keyer derives comparison keys: the text a reader would see, independent of
// markdown markup, Unicode compatibility forms, case and spacing. Two lines
// with equal keys differ only in formatting.
type keyer struct {
	md goldmark.Markdown
}

func newKeyer() *keyer {
	return &keyer{md: goldmark.New()}
}

func (k *keyer) key(line string) string {
	plain := k.plainText(line)
	if strings.TrimSpace(plain) == "" {
		// Lines that are all markup (e.g. "1990." parses as an empty list item).
		plain = line
	}
	plain = norm.NFKC.String(plain)
	return strings.Join(strings.Fields(strings.ToLower(plain)), " ")
}

// plainText renders the inline text content of a markdown line.
func (k *keyer) plainText(line string) string {
	src := []byte(line)
	doc := k.md.Parser().Parse(gtext.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.RawHTML:
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				b.Write(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
