package runner

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
)

// maxAlertSamples bounds the log lines carried by one alert record.
const maxAlertSamples = 5

// Match is one log line that matched an alert pattern.
type Match struct {
	Pattern string
	LineNo  int
	Line    string
}

// Classifier inspects captured job output after a successful run.
type Classifier interface {
	Classify(r io.Reader) ([]Match, error)
}

// PatternClassifier flags lines matching any of a set of regular expressions.
type PatternClassifier struct {
	patterns []*regexp.Regexp
}

// NewPatternClassifier compiles the configured alert patterns.
func NewPatternClassifier(patterns []string) (*PatternClassifier, error) {
	c := &PatternClassifier{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid alert pattern %q: %w", p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

// Classify returns every line that matches a pattern, first pattern wins per line.
func (c *PatternClassifier) Classify(r io.Reader) ([]Match, error) {
	if len(c.patterns) == 0 {
		return nil, nil
	}

	var matches []Match
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		for _, re := range c.patterns {
			if re.MatchString(line) {
				matches = append(matches, Match{Pattern: re.String(), LineNo: lineNo, Line: line})
				break
			}
		}
	}
	if err := sc.Err(); err != nil {
		return matches, fmt.Errorf("failed to scan job log: %w", err)
	}
	return matches, nil
}
