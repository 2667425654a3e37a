// Package diffview renders line-level differences between two documents.
package diffview

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/ddup/internal/lines"
)

// DefaultContext is the number of unchanged lines shown around each hunk.
const DefaultContext = 3

// Unified returns a unified diff from a to b. An empty string means the
// documents hold the same lines.
func Unified(aName, bName string, a, b *lines.Store, context int) (string, error) {
	if context < 0 {
		context = DefaultContext
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withEndings(a),
		B:        withEndings(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  context,
	})
}

// Stats counts the lines only in a and only in b.
type Stats struct {
	Removed int
	Added   int
}

// Compare returns the number of lines removed and added going from a to b.
func Compare(a, b *lines.Store) Stats {
	m := difflib.NewMatcher(a.Values(), b.Values())
	var st Stats
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'd':
			st.Removed += op.I2 - op.I1
		case 'i':
			st.Added += op.J2 - op.J1
		case 'r':
			st.Removed += op.I2 - op.I1
			st.Added += op.J2 - op.J1
		}
	}
	return st
}

// withEndings terminates every line so the diff output stays line-aligned
// even when a document has no trailing newline.
func withEndings(s *lines.Store) []string {
	vals := s.Values()
	for i := range vals {
		vals[i] += "\n"
	}
	return vals
}
