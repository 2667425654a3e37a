// Package reconcile produces a new document from an original plus a
// selection of duplicate values to remove or merge.
//
// A selection is by value, never by position: once a value is selected,
// every occurrence of it is affected the same way.
package reconcile

import (
	"sort"

	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/match"
)

// Selection is a set of line values chosen for removal or merge.
type Selection struct {
	values []string
	keys   map[string]struct{}
	keyer  *match.Classifier
}

// NewSelection selects values by exact identity.
func NewSelection(values ...string) Selection {
	return newSelection(nil, values)
}

// NewSelectionWith selects values by their canonical key under cl, so every
// line equivalent to a selected value is affected.
func NewSelectionWith(cl *match.Classifier, values ...string) Selection {
	return newSelection(cl, values)
}

// SelectionFrom selects every value reported by a detection pass, keyed by
// the classifier that produced it.
func SelectionFrom(occ []detect.Occurrence, cl *match.Classifier) Selection {
	return newSelection(cl, detect.Values(occ))
}

func newSelection(cl *match.Classifier, values []string) Selection {
	s := Selection{keys: make(map[string]struct{}, len(values)), keyer: cl}
	for _, v := range values {
		k, ok := s.key(v)
		if !ok {
			continue
		}
		if _, dup := s.keys[k]; dup {
			continue
		}
		s.keys[k] = struct{}{}
		s.values = append(s.values, v)
	}
	return s
}

func (s Selection) key(value string) (string, bool) {
	if s.keyer == nil {
		return value, true
	}
	return s.keyer.Key(value)
}

// Contains reports whether value is selected.
func (s Selection) Contains(value string) bool {
	k, ok := s.key(value)
	if !ok {
		return false
	}
	_, found := s.keys[k]
	return found
}

// Len returns the number of distinct selected values.
func (s Selection) Len() int { return len(s.values) }

// Values returns the selected values in the order they were added.
func (s Selection) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Result is the outcome of a reconciliation.
type Result struct {
	Store *lines.Store
	// Removed counts lines dropped by Remove.
	Removed int
	// Merged counts later occurrences collapsed into their first by Merge
	// or RemoveRepeats.
	Merged int
	// Affected lists the selected values that were present in the document.
	Affected []string
}

// Dropped returns the total number of lines that did not survive.
func (r Result) Dropped() int { return r.Removed + r.Merged }

// Remove drops every line whose value is selected, including its first
// occurrence. An empty selection returns an identical document.
func Remove(store *lines.Store, sel Selection) Result {
	var kept []string
	affected := newAffected(sel)
	removed := 0

	for _, l := range store.Lines() {
		if sel.Contains(l.Value) {
			removed++
			affected.mark(sel, l.Value)
			continue
		}
		kept = append(kept, l.Value)
	}

	return Result{
		Store:    store.Derive(kept),
		Removed:  removed,
		Affected: affected.list(),
	}
}

// Merge keeps only the first occurrence of each selected value. Lines whose
// value is not selected are left untouched.
func Merge(store *lines.Store, sel Selection) Result {
	var kept []string
	affected := newAffected(sel)
	seen := make(map[string]struct{})
	merged := 0

	for _, l := range store.Lines() {
		if !sel.Contains(l.Value) {
			kept = append(kept, l.Value)
			continue
		}
		k, _ := sel.key(l.Value)
		affected.mark(sel, l.Value)
		if _, dup := seen[k]; dup {
			merged++
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, l.Value)
	}

	return Result{
		Store:    store.Derive(kept),
		Merged:   merged,
		Affected: affected.list(),
	}
}

// RemoveRepeats drops exactly the positions flagged by a detection pass over
// store, keeping each first occurrence.
func RemoveRepeats(store *lines.Store, occ []detect.Occurrence) Result {
	flagged := make(map[int]struct{})
	for _, p := range detect.Flagged(occ) {
		flagged[p] = struct{}{}
	}

	var kept []string
	for _, l := range store.Lines() {
		if _, drop := flagged[l.Pos]; drop {
			continue
		}
		kept = append(kept, l.Value)
	}

	return Result{
		Store:    store.Derive(kept),
		Merged:   len(flagged),
		Affected: detect.Values(occ),
	}
}

// affected tracks which selected values actually occurred, reported in
// selection order.
type affected struct {
	order map[string]int
	hit   map[int]struct{}
	all   []string
}

func newAffected(sel Selection) *affected {
	a := &affected{order: make(map[string]int), hit: make(map[int]struct{}), all: sel.values}
	for i, v := range sel.values {
		k, _ := sel.key(v)
		a.order[k] = i
	}
	return a
}

func (a *affected) mark(sel Selection, value string) {
	k, _ := sel.key(value)
	a.hit[a.order[k]] = struct{}{}
}

func (a *affected) list() []string {
	idx := make([]int, 0, len(a.hit))
	for i := range a.hit {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = a.all[j]
	}
	return out
}
