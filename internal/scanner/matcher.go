package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// defaultMatchTimeout bounds a single rule evaluation. Artifact content is
// untrusted, so a backtracking pattern must never be allowed to spin; a
// timeout surfaces as a per-rule failure and the scan moves on.
const defaultMatchTimeout = 250 * time.Millisecond

// Matcher enumerates non-overlapping matches of one rule inside content.
// max <= 0 means no cap. Implementations return matched substrings in
// left-to-right order.
type Matcher interface {
	FindAll(content string, max int) ([]string, error)
}

// RegexMatcher wraps a compiled regexp2 pattern.
type RegexMatcher struct {
	expr string
	re   *regexp2.Regexp
}

// NewRegexMatcher compiles expr. Patterns opt into case folding with (?i).
func NewRegexMatcher(expr string) (*RegexMatcher, error) {
	re, err := regexp2.Compile(expr, 0)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	re.MatchTimeout = defaultMatchTimeout
	return &RegexMatcher{expr: expr, re: re}, nil
}

// MustRegexMatcher is for the built-in catalog, where a bad pattern is a
// programming error.
func MustRegexMatcher(expr string) *RegexMatcher {
	m, err := NewRegexMatcher(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *RegexMatcher) FindAll(content string, max int) ([]string, error) {
	var out []string
	match, err := m.re.FindStringMatch(content)
	for match != nil && err == nil {
		out = append(out, match.String())
		if max > 0 && len(out) >= max {
			return out, nil
		}
		match, err = m.re.FindNextMatch(match)
	}
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", m.expr, err)
	}
	return out, nil
}

func (m *RegexMatcher) String() string { return m.expr }

// LiteralMatcher finds a fixed substring. Cheap path for rules that do not
// need a regex at all.
type LiteralMatcher struct {
	needle string
	fold   bool
}

// NewLiteralMatcher builds a literal matcher; fold enables case-insensitive
// search.
func NewLiteralMatcher(needle string, fold bool) *LiteralMatcher {
	if fold {
		needle = strings.ToLower(needle)
	}
	return &LiteralMatcher{needle: needle, fold: fold}
}

func (m *LiteralMatcher) FindAll(content string, max int) ([]string, error) {
	if m.needle == "" {
		return nil, nil
	}
	haystack := content
	if m.fold {
		haystack = strings.ToLower(content)
	}
	var out []string
	for i := 0; ; {
		j := strings.Index(haystack[i:], m.needle)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(m.needle)
		out = append(out, content[start:end])
		if max > 0 && len(out) >= max {
			break
		}
		i = end
	}
	return out, nil
}

func (m *LiteralMatcher) String() string { return m.needle }
