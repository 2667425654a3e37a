// Package lines holds the immutable line sequence every other part of ddup
// operates on.
package lines

import (
	"strings"
)

// Line is a single line value and its zero-based position in the document
// it was read from. Positions are only meaningful within one Store.
type Line struct {
	Value string
	Pos   int
}

// Store is an ordered, immutable sequence of lines.
// Transforms never modify a Store; they return a new one.
type Store struct {
	values          []string
	trailingNewline bool
	// crlf is set when every line of the source ended in CRLF.
	crlf bool
}

// New creates a Store from already-split line values. The slice is copied.
func New(values []string) *Store {
	cp := make([]string, len(values))
	copy(cp, values)
	return &Store{values: cp}
}

// Parse splits text on newline boundaries. A single trailing newline does
// not produce an extra empty line, but is remembered so Text round-trips it.
// A document that uses CRLF throughout is written back with CRLF; mixed
// endings are normalized to LF.
func Parse(text string) *Store {
	if text == "" {
		return &Store{}
	}
	n := strings.Count(text, "\n")
	crlf := n > 0 && strings.Count(text, "\r\n") == n
	text = strings.ReplaceAll(text, "\r\n", "\n")
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = strings.TrimSuffix(text, "\n")
	}
	return &Store{
		values:          strings.Split(text, "\n"),
		trailingNewline: trailing,
		crlf:            crlf,
	}
}

// Len returns the number of lines.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// At returns the line at position i. It panics if i is out of range.
func (s *Store) At(i int) Line {
	return Line{Value: s.values[i], Pos: i}
}

// Lines returns every line with its position.
func (s *Store) Lines() []Line {
	out := make([]Line, s.Len())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// Values returns a copy of the raw line values.
func (s *Store) Values() []string {
	out := make([]string, s.Len())
	if s != nil {
		copy(out, s.values)
	}
	return out
}

// Slice returns the lines in [from, to), clamped to the document bounds.
func (s *Store) Slice(from, to int) []Line {
	if from < 0 {
		from = 0
	}
	if to > s.Len() {
		to = s.Len()
	}
	if from >= to {
		return nil
	}
	out := make([]Line, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, s.At(i))
	}
	return out
}

// CRLF reports whether Text joins lines with CRLF.
func (s *Store) CRLF() bool {
	return s != nil && s.crlf
}

// TrailingNewline reports whether the source text ended with a newline.
func (s *Store) TrailingNewline() bool {
	return s != nil && s.trailingNewline
}

// Derive builds a new Store from values, carrying over the trailing newline
// and line ending of s. Positions in the new Store are recomputed from zero.
func (s *Store) Derive(values []string) *Store {
	n := New(values)
	n.trailingNewline = s.TrailingNewline() && len(values) > 0
	n.crlf = s.CRLF()
	return n
}

// WithTrailingNewline returns a copy of s whose Text ends with a newline
// when on is true and s is not empty.
func (s *Store) WithTrailingNewline(on bool) *Store {
	n := s.Derive(s.Values())
	n.trailingNewline = on && n.Len() > 0
	return n
}

// WithCRLF returns a copy of s whose Text uses CRLF line endings when on
// is true and LF otherwise.
func (s *Store) WithCRLF(on bool) *Store {
	n := s.Derive(s.Values())
	n.crlf = on
	return n
}

// Text joins the lines back into a document.
func (s *Store) Text() string {
	if s.Len() == 0 {
		return ""
	}
	eol := "\n"
	if s.crlf {
		eol = "\r\n"
	}
	text := strings.Join(s.values, eol)
	if s.trailingNewline {
		text += eol
	}
	return text
}

// Equal reports whether two stores hold the same line values.
func (s *Store) Equal(other *Store) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.values[i] != other.values[i] {
			return false
		}
	}
	return true
}
