// Package filter selects product objects by glob patterns over their path
// relative to the product prefix.
//
// Syntax follows doublestar: "*" and "?" stay within one path segment, "**"
// spans any number of segments, "[...]" and "{a,b}" work as in shells.
// A pattern without a "/" matches at any depth, so "*.xml" selects both
// "manifest.xml" and "MTD/manifest.xml". A leading "/" anchors a pattern to
// the product root instead.
package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"eodl/internal/errs"
)

const matchAll = "**"

// Matcher is immutable after Compile and safe for concurrent use.
type Matcher struct {
	patterns []string
}

// Compile validates patterns and builds a Matcher. An empty set yields a
// matcher that selects every path.
func Compile(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		return &Matcher{patterns: []string{matchAll}}, nil
	}

	compiled := make([]string, 0, len(patterns))
	for _, p := range patterns {
		normalized, err := normalize(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, normalized)
	}
	return &Matcher{patterns: compiled}, nil
}

func normalize(pattern string) (string, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return "", &errs.Error{Kind: errs.KindFilter, Op: "compile", Err: fmt.Errorf("empty glob pattern")}
	}

	switch {
	case strings.HasPrefix(p, "/"):
		p = strings.TrimLeft(p, "/")
	case !strings.Contains(p, "/") && p != matchAll:
		p = matchAll + "/" + p
	}

	if p == "" || !doublestar.ValidatePattern(p) {
		return "", &errs.Error{Kind: errs.KindFilter, Op: "compile", Err: fmt.Errorf("invalid glob pattern %q", pattern)}
	}
	return p, nil
}

// Matches reports whether any pattern matches path.
func (m *Matcher) Matches(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, p := range m.patterns {
		if doublestar.MatchUnvalidated(p, path) {
			return true
		}
	}
	return false
}

// Patterns returns the normalized patterns.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}
