// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package gate

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// compiledPattern is an exemption entry: either a literal path or a
// *-suffixed prefix pattern compiled as a glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob // nil for literal patterns
}

// PathMatcher matches request paths against exempt patterns.
//
// Paths and literal patterns are normalized with a trailing slash before
// matching. A literal pattern exempts its exact path; a pattern ending in '*'
// exempts every path that starts with its prefix. An empty pattern list
// exempts nothing.
type PathMatcher struct {
	patterns []compiledPattern
}

// NewPathMatcher compiles the exemption patterns.
// Returns an error if a wildcard pattern fails to compile.
func NewPathMatcher(patterns []string) (*PathMatcher, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		entry := compiledPattern{pattern: p}
		if strings.HasSuffix(p, "*") {
			g, err := glob.Compile(p)
			if err != nil {
				return nil, oops.Code("GATE_INVALID_PATTERN").
					With("pattern", p).
					Wrap(err)
			}
			entry.glob = g
		} else if !strings.HasSuffix(p, "/") {
			entry.pattern = p + "/"
		}
		compiled = append(compiled, entry)
	}
	return &PathMatcher{patterns: compiled}, nil
}

// RequiresAuth reports whether the path needs authentication.
func (m *PathMatcher) RequiresAuth(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return true
	}

	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	for _, p := range m.patterns {
		if p.glob != nil {
			if p.glob.Match(path) {
				return false
			}
			continue
		}
		if path == p.pattern {
			return false
		}
	}
	return true
}
