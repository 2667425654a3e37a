package lines

import (
	"regexp"
	"strings"
)

// Replace substitutes every occurrence of old in the document with repl and
// returns the new Store and the number of substitutions. old and repl may
// span lines. An empty old leaves the document unchanged.
func Replace(s *Store, old, repl string) (*Store, int) {
	if old == "" {
		return s.Derive(s.Values()), 0
	}
	text := s.joined()
	n := strings.Count(text, old)
	if n == 0 {
		return s.Derive(s.Values()), 0
	}
	return s.reparse(strings.ReplaceAll(text, old, repl)), n
}

// ReplaceRegexp substitutes every match of re in the document with repl,
// which may refer to capture groups as $1 or ${name}. The pattern sees the
// whole document with LF line endings, so it can match across lines.
func ReplaceRegexp(s *Store, re *regexp.Regexp, repl string) (*Store, int) {
	text := s.joined()
	n := len(re.FindAllStringIndex(text, -1))
	if n == 0 {
		return s.Derive(s.Values()), 0
	}
	return s.reparse(re.ReplaceAllString(text, repl)), n
}

// joined is the LF form of Text.
func (s *Store) joined() string {
	return s.WithCRLF(false).Text()
}

// reparse splits text produced from s.joined, keeping the line ending of s.
func (s *Store) reparse(text string) *Store {
	n := Parse(text)
	n.crlf = s.CRLF() && n.Len() > 0
	return n
}
