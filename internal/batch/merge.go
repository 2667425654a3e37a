package batch

import (
	"context"

	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/reconcile"
)

// MergeFiles concatenates refs in order, drops repeated lines under the
// criterion (keeping each first occurrence) and writes the result to out.
// Unlike Run, a read failure aborts the merge: a partial union would be
// misleading. The inputs are never modified.
func MergeFiles(ctx context.Context, refs []string, out string, opts Options) (reconcile.Result, error) {
	opts = opts.withDefaults()
	cl, err := match.Compile(opts.Criterion)
	if err != nil {
		return reconcile.Result{}, err
	}

	var all []string
	trailing := false
	crlf, sawLines := true, false
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return reconcile.Result{}, err
		}
		store, err := opts.Source.ReadLines(ref)
		if err != nil {
			return reconcile.Result{}, err
		}
		all = append(all, store.Values()...)
		trailing = trailing || store.TrailingNewline()
		if store.Len() > 0 {
			sawLines = true
			crlf = crlf && store.CRLF()
		}
	}

	// CRLF survives only when every input used it.
	combined := lines.New(all).WithTrailingNewline(trailing).WithCRLF(crlf && sawLines)

	occ := detect.Detect(combined, cl, 0)
	res := reconcile.RemoveRepeats(combined, occ)

	if opts.DryRun {
		return res, nil
	}
	if err := opts.Sink.WriteLines(out, res.Store); err != nil {
		return res, err
	}
	opts.Logger.Info("files merged", "inputs", len(refs), "output", out,
		"lines", res.Store.Len(), "dropped", res.Dropped())
	return res, nil
}
