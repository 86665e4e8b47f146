package harmonize

import (
	"github.com/pmezard/go-difflib/difflib"
)

// pairing is one alignment step over line indices. -1 marks the absent side.
type pairing struct {
	a, b int
}

// align matches two line sequences by their comparison keys. The result
// preserves the relative order of both inputs; within a gap A-only lines
// precede B-only lines.
func align(keysA, keysB []string, minSimilarity float64) []pairing {
	m := difflib.NewMatcherWithJunk(keysA, keysB, false, nil)

	var out []pairing
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i, j := op.I1, op.J1; i < op.I2; i, j = i+1, j+1 {
				out = append(out, pairing{a: i, b: j})
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				out = append(out, pairing{a: i, b: -1})
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				out = append(out, pairing{a: -1, b: j})
			}
		case 'r':
			out = append(out, alignBlock(keysA, keysB, op.I1, op.I2, op.J1, op.J2, minSimilarity)...)
		}
	}
	return out
}

// alignBlock pairs the lines of a replace block by a weighted longest common
// subsequence over character similarity. Pairs below minSimilarity are never
// formed.
func alignBlock(keysA, keysB []string, i1, i2, j1, j2 int, minSimilarity float64) []pairing {
	n, m := i2-i1, j2-j1

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, m)
		for j := range sim[i] {
			sim[i][j] = similarity(keysA[i1+i], keysB[j1+j])
		}
	}

	// best[i][j] is the best total similarity aligning a[i:] with b[j:].
	best := make([][]float64, n+1)
	for i := range best {
		best[i] = make([]float64, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			v := best[i+1][j]
			if best[i][j+1] > v {
				v = best[i][j+1]
			}
			if sim[i][j] >= minSimilarity && sim[i][j]+best[i+1][j+1] > v {
				v = sim[i][j] + best[i+1][j+1]
			}
			best[i][j] = v
		}
	}

	var out []pairing
	var pendingA, pendingB []int
	flushGap := func() {
		for _, i := range pendingA {
			out = append(out, pairing{a: i, b: -1})
		}
		for _, j := range pendingB {
			out = append(out, pairing{a: -1, b: j})
		}
		pendingA, pendingB = pendingA[:0], pendingB[:0]
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case sim[i][j] >= minSimilarity && best[i][j] == sim[i][j]+best[i+1][j+1]:
			flushGap()
			out = append(out, pairing{a: i1 + i, b: j1 + j})
			i++
			j++
		case best[i][j] == best[i+1][j]:
			pendingA = append(pendingA, i1+i)
			i++
		default:
			pendingB = append(pendingB, j1+j)
			j++
		}
	}
	for ; i < n; i++ {
		pendingA = append(pendingA, i1+i)
	}
	for ; j < m; j++ {
		pendingB = append(pendingB, j1+j)
	}
	flushGap()
	return out
}

// similarity is the difflib ratio over the runes of two keys.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcherWithJunk(runes(a), runes(b), false, nil)
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
