// Package matcher compiles a query string plus flags into an immutable
// predicate over entry names or full paths. A compiled Matcher is shared
// across query workers without synchronization.
package matcher

import (
	"regexp"
	"strings"
	"unicode"
)

// CaseMode selects case sensitivity.
type CaseMode int

const (
	// CaseSmart is sensitive iff the query contains an uppercase rune.
	CaseSmart CaseMode = iota
	CaseSensitive
	CaseInsensitive
)

// PathMode selects the match key: basename, full path, or auto.
type PathMode int

const (
	// PathAuto matches the full path iff the query contains a separator.
	PathAuto PathMode = iota
	PathBasename
	PathFull
)

// Flags configures query compilation.
type Flags struct {
	Case  CaseMode
	Regex bool
	Path  PathMode
}

// InvalidRegexError reports a regex query that failed to compile. The
// underlying diagnostic is preserved so an interactive caller can display
// it inline without aborting.
type InvalidRegexError struct {
	Pattern string
	Err     error
}

func (e *InvalidRegexError) Error() string {
	return `invalid regex "` + e.Pattern + `": ` + e.Err.Error()
}

func (e *InvalidRegexError) Unwrap() error {
	return e.Err
}

// Matcher is a compiled query. Immutable after Compile.
type Matcher struct {
	query         string
	re            *regexp.Regexp // nil in literal mode
	literal       string         // literal pattern, lowered when insensitive
	caseSensitive bool           // effective, after smart resolution
	matchPath     bool           // effective, after auto resolution
}

// Compile resolves smart case and auto path against the query text and
// builds the predicate. Literal queries compile to a substring search;
// regex queries compile through RE2 with the inline fold flag when
// insensitive.
func Compile(query string, flags Flags) (*Matcher, error) {
	m := &Matcher{query: query}

	switch flags.Case {
	case CaseSensitive:
		m.caseSensitive = true
	case CaseInsensitive:
		m.caseSensitive = false
	case CaseSmart:
		m.caseSensitive = strings.IndexFunc(query, unicode.IsUpper) >= 0
	}

	switch flags.Path {
	case PathFull:
		m.matchPath = true
	case PathBasename:
		m.matchPath = false
	case PathAuto:
		m.matchPath = strings.ContainsRune(query, '/')
	}

	if flags.Regex {
		pattern := query
		if !m.caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &InvalidRegexError{Pattern: query, Err: err}
		}
		m.re = re
		return m, nil
	}

	if m.caseSensitive {
		m.literal = query
	} else {
		m.literal = strings.ToLower(query)
	}
	return m, nil
}

// Query returns the original query text.
func (m *Matcher) Query() string { return m.query }

// MatchPath reports whether the matcher applies to the full reconstructed
// path rather than the basename.
func (m *Matcher) MatchPath() bool { return m.matchPath }

// CaseSensitive reports the effective case sensitivity.
func (m *Matcher) CaseSensitive() bool { return m.caseSensitive }

// Empty reports whether the query matches every entry.
func (m *Matcher) Empty() bool {
	return m.re == nil && m.literal == ""
}

// PreFolded reports whether the engine may satisfy this matcher by
// passing already case-folded text to MatchFolded. True exactly for
// case-insensitive literal queries, where the database's folded name
// table turns matching into a plain substring scan.
func (m *Matcher) PreFolded() bool {
	return m.re == nil && !m.caseSensitive
}

// Match evaluates the predicate against text, folding on the fly when the
// query is case-insensitive and text is original-case.
func (m *Matcher) Match(text string) bool {
	if m.re != nil {
		return m.re.MatchString(text)
	}
	if m.literal == "" {
		return true
	}
	if m.caseSensitive {
		return strings.Contains(text, m.literal)
	}
	return containsFold(text, m.literal)
}

// MatchFolded evaluates a case-insensitive literal query against text the
// caller has already folded.
func (m *Matcher) MatchFolded(folded string) bool {
	if m.literal == "" {
		return true
	}
	return strings.Contains(folded, m.literal)
}

// FindSpan returns the byte span of the first match in text for UI
// highlighting. ok is false when text does not match (or the query is
// empty, which has no meaningful span).
func (m *Matcher) FindSpan(text string) (start, end int, ok bool) {
	if m.re != nil {
		loc := m.re.FindStringIndex(text)
		if loc == nil {
			return 0, 0, false
		}
		return loc[0], loc[1], true
	}
	if m.literal == "" {
		return 0, 0, false
	}
	var i int
	if m.caseSensitive {
		i = strings.Index(text, m.literal)
	} else {
		i = indexFold(text, m.literal)
	}
	if i < 0 {
		return 0, 0, false
	}
	return i, i + len(m.literal), true
}

// containsFold is a fold-then-search fallback for entries without a
// precomputed folded name. The needle is already lowered.
func containsFold(text, loweredNeedle string) bool {
	return indexFold(text, loweredNeedle) >= 0
}

func indexFold(text, loweredNeedle string) int {
	return strings.Index(strings.ToLower(text), loweredNeedle)
}
