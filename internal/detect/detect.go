// Package detect finds repeated lines in a document.
//
// Detection keeps the first occurrence of every canonical key and flags only
// the second and later ones: for [A, B, A, A] under the exact criterion the
// result is A with flagged positions [2, 3]; position 0 is the kept original.
package detect

import (
	"sort"

	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/match"
)

// DefaultContextSize is the number of lines shown before and after a
// flagged occurrence when no size is configured.
const DefaultContextSize = 2

// Context is a window of original lines around one flagged position.
type Context struct {
	Position int
	Before   []lines.Line
	After    []lines.Line
}

// Occurrence groups every repeat of one canonical key.
type Occurrence struct {
	// Value is the raw value of the kept first occurrence.
	Value string
	// Key is the canonical key shared by all positions.
	Key string
	// First is the position of the kept first occurrence.
	First int
	// Positions are the flagged repeat positions, ascending.
	Positions []int
	// Contexts holds one window per entry of Positions when context was
	// requested, in the same order.
	Contexts []Context
}

// Count returns how many lines of this value were flagged.
func (o Occurrence) Count() int { return len(o.Positions) }

// Run compiles c and detects duplicates in store. The only error is an
// invalid criterion, in which case no detection happens.
func Run(store *lines.Store, c match.Criterion, contextSize int) ([]Occurrence, error) {
	cl, err := match.Compile(c)
	if err != nil {
		return nil, err
	}
	return Detect(store, cl, contextSize), nil
}

// Detect performs a single left-to-right pass over store. Results are
// ordered by the position of each key's first flagged repeat.
func Detect(store *lines.Store, cl *match.Classifier, contextSize int) []Occurrence {
	type seen struct {
		first int
		idx   int // index into out, -1 until the key repeats
	}

	var out []Occurrence
	firstSeen := make(map[string]*seen)

	for i := 0; i < store.Len(); i++ {
		value := store.At(i).Value
		key, ok := cl.Key(value)
		if !ok {
			continue
		}

		s, dup := firstSeen[key]
		if !dup {
			firstSeen[key] = &seen{first: i, idx: -1}
			continue
		}
		if s.idx < 0 {
			s.idx = len(out)
			out = append(out, Occurrence{
				Value: store.At(s.first).Value,
				Key:   key,
				First: s.first,
			})
		}

		occ := &out[s.idx]
		occ.Positions = append(occ.Positions, i)
		if contextSize > 0 {
			occ.Contexts = append(occ.Contexts, Window(store, i, contextSize))
		}
	}
	return out
}

// Window returns up to size lines on either side of pos, truncated at the
// document boundaries.
func Window(store *lines.Store, pos, size int) Context {
	if size < 0 {
		size = 0
	}
	return Context{
		Position: pos,
		Before:   store.Slice(pos-size, pos),
		After:    store.Slice(pos+1, pos+1+size),
	}
}

// Values returns the representative value of every occurrence, in result order.
func Values(occ []Occurrence) []string {
	out := make([]string, len(occ))
	for i, o := range occ {
		out[i] = o.Value
	}
	return out
}

// Flagged returns every flagged position across all occurrences, ascending.
func Flagged(occ []Occurrence) []int {
	var out []int
	for _, o := range occ {
		out = append(out, o.Positions...)
	}
	sort.Ints(out)
	return out
}

// Count returns the total number of flagged lines.
func Count(occ []Occurrence) int {
	n := 0
	for _, o := range occ {
		n += len(o.Positions)
	}
	return n
}
