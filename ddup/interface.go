package ddup

import (
	"fmt"

	"github.com/sokinpui/ddup/cli"
	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/reconcile"
	"github.com/sokinpui/ddup/model"
)

// Config for using ddup as a library.
type Config struct {
	// Criterion is exact, case-insensitive, ignore-whitespace, regex or prefix.
	// Empty means exact.
	Criterion string
	// Pattern is the regular expression for the regex criterion.
	Pattern string
	// IgnoreCase and IgnoreWhitespace modify the exact and prefix criteria.
	IgnoreCase       bool
	IgnoreWhitespace bool
	// Values restricts the change to these duplicated values. Empty means all.
	Values []string
	// Purge removes every occurrence of the affected values instead of
	// keeping the first one.
	Purge bool
}

// Duplicate is one repeated value in a document.
type Duplicate struct {
	Value string
	// First is the zero-based line of the kept occurrence.
	First int
	// Repeats are the zero-based lines of the later occurrences.
	Repeats []int
}

func (c Config) classifier() (*match.Classifier, error) {
	cfg := &cli.Config{
		Criterion:        c.Criterion,
		Pattern:          c.Pattern,
		IgnoreCase:       c.IgnoreCase,
		IgnoreWhitespace: c.IgnoreWhitespace,
	}
	crit, err := cfg.MatchCriterion()
	if err != nil {
		return nil, err
	}
	return match.Compile(crit)
}

// Find lists the duplicated values in content.
func Find(content string, config Config) ([]Duplicate, error) {
	cl, err := config.classifier()
	if err != nil {
		return nil, err
	}
	occ := detect.Detect(lines.Parse(content), cl, 0)

	out := make([]Duplicate, len(occ))
	for i, o := range occ {
		out[i] = Duplicate{Value: o.Value, First: o.First, Repeats: append([]int(nil), o.Positions...)}
	}
	return out, nil
}

// Dedupe returns content without its duplicate lines, plus a summary of
// what changed. By default the first occurrence of every duplicated value is
// kept; see Config.Purge and Config.Values.
func Dedupe(content string, config Config) (string, model.Summary, error) {
	cl, err := config.classifier()
	if err != nil {
		return "", model.Summary{}, fmt.Errorf("invalid criterion: %w", err)
	}
	store := lines.Parse(content)
	occ := detect.Detect(store, cl, 0)

	var provider SelectionProvider = SelectAll{Classifier: cl}
	if len(config.Values) > 0 {
		provider = SelectValues{Values: config.Values, Classifier: cl}
	}
	sel, err := provider.Select(occ)
	if err != nil {
		return "", model.Summary{}, err
	}

	summary := model.Summary{
		Criterion:  cl.Criterion().String(),
		Lines:      store.Len(),
		Duplicates: detect.Count(occ),
		Values:     detect.Values(occ),
	}
	if sel.Len() == 0 {
		return content, summary, nil
	}

	var res reconcile.Result
	if config.Purge {
		res = reconcile.Remove(store, sel)
		summary.Action = "remove"
	} else {
		res = reconcile.Merge(store, sel)
		summary.Action = "merge"
	}
	summary.Removed = res.Removed
	summary.Merged = res.Merged
	summary.Affected = res.Affected
	return res.Store.Text(), summary, nil
}
