package harmonize

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed wordlist.txt
var defaultWordList []byte

// Lexicon answers whether a lower-case word is a known word.
type Lexicon interface {
	Contains(word string) bool
}

// WordList is a set of known words.
type WordList struct {
	words  map[string]struct{}
	digest string
}

// DefaultWordList returns the built-in English lexicon.
func DefaultWordList() *WordList {
	wl, err := ReadWordList(bytes.NewReader(defaultWordList))
	if err != nil {
		panic(fmt.Sprintf("built-in word list: %v", err))
	}
	return wl
}

// LoadWordList reads a word list file, one word per line. Blank lines and
// lines starting with # are ignored.
func LoadWordList(path string) (*WordList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lexicon: %w", err)
	}
	defer f.Close()
	wl, err := ReadWordList(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	return wl, nil
}

// ReadWordList parses a word list from r.
func ReadWordList(r io.Reader) (*WordList, error) {
	wl := &WordList{words: make(map[string]struct{})}
	h := sha256.New()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		if _, ok := wl.words[w]; !ok {
			wl.words[w] = struct{}{}
		}
		h.Write([]byte(w))
		h.Write([]byte{'\n'})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	wl.digest = hex.EncodeToString(h.Sum(nil))
	return wl, nil
}

// Len returns the number of distinct words.
func (wl *WordList) Len() int { return len(wl.words) }

// Digest identifies the list contents.
func (wl *WordList) Digest() string { return wl.digest }

// inflections are stripped in order when a word is not found verbatim.
var inflections = []string{"'s", "s", "es", "ed", "d", "ing", "ly", "er", "est"}

// Contains reports whether word, or its stem after removing one common
// inflection, is in the list.
func (wl *WordList) Contains(word string) bool {
	if _, ok := wl.words[word]; ok {
		return true
	}
	for _, suffix := range inflections {
		if len(word) > len(suffix)+1 && strings.HasSuffix(word, suffix) {
			stem := strings.TrimSuffix(word, suffix)
			if _, ok := wl.words[stem]; ok {
				return true
			}
			// running -> run, stopped -> stop
			if n := len(stem); (suffix == "ing" || suffix == "ed") && n > 2 && stem[n-1] == stem[n-2] {
				if _, ok := wl.words[stem[:n-1]]; ok {
					return true
				}
			}
		}
	}
	return false
}
