package ddup

import (
	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/reconcile"
)

// SelectionProvider chooses which duplicated values a single-document run
// acts on. An empty selection means no change.
type SelectionProvider interface {
	Select(occ []detect.Occurrence) (reconcile.Selection, error)
}

// mergeChooser is implemented by providers that let the user pick merge
// instead of remove.
type mergeChooser interface {
	MergeRequested() bool
}

// SelectAll selects every duplicated value.
type SelectAll struct {
	Classifier *match.Classifier
}

func (s SelectAll) Select(occ []detect.Occurrence) (reconcile.Selection, error) {
	return reconcile.SelectionFrom(occ, s.Classifier), nil
}

// SelectValues selects a fixed list of values. Values that are not
// duplicated in the document select nothing.
type SelectValues struct {
	Values     []string
	Classifier *match.Classifier
}

func (s SelectValues) Select(occ []detect.Occurrence) (reconcile.Selection, error) {
	wanted := reconcile.NewSelectionWith(s.Classifier, s.Values...)
	var chosen []string
	for _, o := range occ {
		if wanted.Contains(o.Value) {
			chosen = append(chosen, o.Value)
		}
	}
	return reconcile.NewSelectionWith(s.Classifier, chosen...), nil
}
