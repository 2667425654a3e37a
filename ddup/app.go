package ddup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/sokinpui/ddup/cli"
	"github.com/sokinpui/ddup/internal/batch"
	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/diffview"
	"github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/logging"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/nvim"
	"github.com/sokinpui/ddup/internal/reconcile"
	"github.com/sokinpui/ddup/internal/report"
	"github.com/sokinpui/ddup/internal/source"
	"github.com/sokinpui/ddup/internal/state"
	"github.com/sokinpui/ddup/internal/tui"
	"github.com/sokinpui/ddup/internal/ui"
	"github.com/sokinpui/ddup/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	criterion        match.Criterion
	stateManager     *state.Manager
	pathResolver     *fs.PathResolver
	sourceProvider   *source.SourceProvider
	files            fs.Files
	selector         SelectionProvider
	confirm          func(prompt string) (bool, error)
	progressCallback ProgressUpdate
	logger           *slog.Logger
	closeLog         func() error
	stdout           io.Writer

	ctx    context.Context
	cancel context.CancelFunc
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// StackTrace returns the stack captured when the error was created.
func (e *DetailedError) StackTrace() []byte { return e.Stack }

// New creates a new App instance.
func New(cfg *cli.Config) (*App, error) {
	crit, err := cfg.MatchCriterion()
	if err != nil {
		return nil, err
	}
	stateManager, err := state.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	logger, closeLog, err := logging.Open(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:            cfg,
		criterion:      crit,
		stateManager:   stateManager,
		pathResolver:   fs.NewPathResolver(cfg.LookupDirs),
		sourceProvider: source.New(),
		logger:         logger,
		closeLog:       closeLog,
		stdout:         os.Stdout,
		ctx:            ctx,
		cancel:         cancel,
	}
	a.confirm = a.promptYesNo
	return a, nil
}

// Close releases the log file.
func (a *App) Close() error {
	a.cancel()
	return a.closeLog()
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb func(current, total int)) {
	a.progressCallback = cb
}

// SetContext replaces the context batch runs are cancelled through.
func (a *App) SetContext(ctx context.Context) {
	a.cancel()
	a.ctx, a.cancel = context.WithCancel(ctx)
}

// Cancel stops a running batch after the files already in progress.
func (a *App) Cancel() {
	a.cancel()
}

// SetSelectionProvider overrides how values are chosen in single-document
// runs.
func (a *App) SetSelectionProvider(p SelectionProvider) {
	a.selector = p
}

// SetConfirm overrides the overwrite confirmation prompt.
func (a *App) SetConfirm(fn func(prompt string) (bool, error)) {
	a.confirm = fn
}

// SetOutput redirects document and diff output, stdout by default.
func (a *App) SetOutput(w io.Writer) {
	a.stdout = w
}

// SetSource replaces the stdin and clipboard provider.
func (a *App) SetSource(sp *source.SourceProvider) {
	a.sourceProvider = sp
}

// SetStateManager replaces the journal.
func (a *App) SetStateManager(m *state.Manager) {
	a.stateManager = m
}

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute() (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch a.cfg.Mode() {
	case cli.ModeHistory:
		return a.printHistory()
	case cli.ModeCompare:
		return a.compareFiles()
	case cli.ModeMergeInto:
		return a.mergeFiles()
	case cli.ModeBatch:
		return a.runBatch()
	case cli.ModeSort:
		return a.sortDocument()
	case cli.ModeReplace:
		return a.replaceDocument()
	default:
		return a.processDocument()
	}
}

// fileArg returns the single FILE argument, or "" to read stdin or the
// clipboard.
func (a *App) fileArg() string {
	if len(a.cfg.Args) == 0 {
		return ""
	}
	if p := a.pathResolver.ResolveExisting(a.cfg.Args[0]); p != "" {
		return p
	}
	return a.cfg.Args[0]
}

// processDocument runs detection on one document, asks which values to act
// on and writes the reconciled result to the chosen sink.
func (a *App) processDocument() (model.Summary, error) {
	ref := a.fileArg()
	store, name, err := a.sourceProvider.Load(ref)
	if err != nil {
		return model.Summary{}, err
	}
	if store.Len() == 0 {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	cl, err := match.Compile(a.criterion)
	if err != nil {
		return model.Summary{}, err
	}
	occ := detect.Detect(store, cl, a.cfg.ContextSize)
	summary := model.Summary{
		Source:     displayName(name),
		Criterion:  a.criterion.String(),
		Lines:      store.Len(),
		Duplicates: detect.Count(occ),
		Values:     detect.Values(occ),
	}
	if len(occ) == 0 {
		summary.Message = "No duplicate lines found."
		return summary, a.exportReport(summary)
	}
	ui.PrintDuplicates(occ)

	provider := a.selectionProvider(cl)
	sel, err := provider.Select(occ)
	if err != nil {
		return summary, err
	}
	merge := a.cfg.Merge
	if mc, ok := provider.(mergeChooser); ok {
		merge = mc.MergeRequested()
	}
	if sel.Len() == 0 {
		summary.Message = "Nothing selected. No changes made."
		return summary, a.exportReport(summary)
	}

	var res reconcile.Result
	if merge {
		res = reconcile.Merge(store, sel)
		summary.Action = "merge"
	} else {
		res = reconcile.Remove(store, sel)
		summary.Action = "remove"
	}
	summary.Removed = res.Removed
	summary.Merged = res.Merged
	summary.Affected = res.Affected
	a.logger.Info("duplicates reconciled", "source", name, "action", summary.Action,
		"criterion", summary.Criterion, "removed", res.Removed, "merged", res.Merged)
	a.logger.Debug("affected values", "source", name, "values", res.Affected)

	if err := a.emit(ref, name, store, res.Store, res.Dropped(), &summary); err != nil {
		return summary, err
	}
	return summary, a.exportReport(summary)
}

func (a *App) selectionProvider(cl *match.Classifier) SelectionProvider {
	switch {
	case len(a.cfg.Select) > 0:
		return SelectValues{Values: a.cfg.Select, Classifier: cl}
	case a.cfg.Yes:
		return SelectAll{Classifier: cl}
	case a.selector != nil:
		return a.selector
	}
	return &tui.Selector{Classifier: cl, Merge: a.cfg.Merge, Output: ui.Out, UseTTY: true}
}

// sortDocument reorders the lines of one document.
func (a *App) sortDocument() (model.Summary, error) {
	order, err := lines.ParseOrder(a.cfg.Sort)
	if err != nil {
		return model.Summary{}, err
	}
	ref := a.fileArg()
	store, name, err := a.sourceProvider.Load(ref)
	if err != nil {
		return model.Summary{}, err
	}
	if store.Len() == 0 {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	sorted, err := lines.Sort(store, order)
	if err != nil {
		return model.Summary{}, err
	}
	summary := model.Summary{Source: displayName(name), Action: "sort", Lines: sorted.Len()}
	a.logger.Info("lines sorted", "source", name, "order", string(order), "lines", sorted.Len())
	if err := a.emit(ref, name, store, sorted, 0, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// replaceDocument substitutes text in one document, literally or by regular
// expression.
func (a *App) replaceDocument() (model.Summary, error) {
	var re *regexp.Regexp
	if a.cfg.Regex {
		var err error
		if re, err = match.CompilePattern(a.cfg.Replace); err != nil {
			return model.Summary{}, err
		}
	}
	ref := a.fileArg()
	store, name, err := a.sourceProvider.Load(ref)
	if err != nil {
		return model.Summary{}, err
	}
	if store.Len() == 0 {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	var (
		replaced *lines.Store
		count    int
	)
	if re != nil {
		replaced, count = lines.ReplaceRegexp(store, re, a.cfg.With)
	} else {
		replaced, count = lines.Replace(store, a.cfg.Replace, a.cfg.With)
	}
	summary := model.Summary{Source: displayName(name), Lines: replaced.Len()}
	if count == 0 {
		summary.Message = "No matches found. No changes made."
		return summary, nil
	}
	summary.Action = "replace"
	summary.Replaced = count
	a.logger.Info("text replaced", "source", name, "regex", a.cfg.Regex, "replacements", count)
	if err := a.emit(ref, name, store, replaced, 0, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// emit delivers the reconciled document to the first sink the flags name:
// diff preview, output file, Neovim buffer, clipboard, FILE itself (after
// confirmation) or stdout.
func (a *App) emit(ref, name string, before, after *lines.Store, dropped int, summary *model.Summary) error {
	switch {
	case a.cfg.Diff:
		diff, err := diffview.Unified(name, name, before, after, diffview.DefaultContext)
		if err != nil {
			return err
		}
		fmt.Fprint(a.stdout, diff)
		summary.Message = "Diff preview only. No changes written."
		return nil

	case a.cfg.DryRun:
		summary.Message = "Dry run. No changes written."
		return nil

	case a.cfg.Output != "":
		if err := fs.EnsureParentDir(a.cfg.Output); err != nil {
			return err
		}
		if err := a.files.WriteLines(a.cfg.Output, after); err != nil {
			fmt.Fprint(a.stdout, after.Text())
			return err
		}
		summary.Written = a.cfg.Output
		return nil

	case a.cfg.Nvim:
		return a.writeToNvim(ref, before, after, dropped, summary)

	case a.cfg.Copy:
		if err := a.sourceProvider.Copy(after); err != nil {
			return err
		}
		summary.Written = "clipboard"
		return nil
	}

	if ref != "" {
		ok := a.cfg.Yes
		if !ok {
			var err error
			ok, err = a.confirm(fmt.Sprintf("Overwrite %s?", displayName(ref)))
			if err != nil {
				return err
			}
		}
		if ok {
			if err := a.files.WriteLines(ref, after); err != nil {
				fmt.Fprint(a.stdout, after.Text())
				return err
			}
			a.journal(summary.Action, fs.HashText(before.Text()), ref, dropped, after)
			summary.Written = displayName(ref)
			return nil
		}
	}

	fmt.Fprint(a.stdout, after.Text())
	return nil
}

// writeToNvim places the result into the buffer for ref and saves it unless
// --buffer was given.
func (a *App) writeToNvim(ref string, before, after *lines.Store, dropped int, summary *model.Summary) error {
	manager, err := nvim.New()
	if err != nil {
		return err
	}
	defer manager.Close()

	total := 1
	var nvimProgressCb func(int)
	if a.progressCallback != nil {
		a.progressCallback(0, total)
		nvimProgressCb = func(current int) {
			a.progressCallback(current, total)
		}
	}

	_, failed := manager.ApplyDocuments([]nvim.Document{{Path: ref, Store: after}}, nvimProgressCb)
	if err := failed[ref]; err != nil {
		return err
	}
	if a.cfg.Buffer {
		summary.Written = "buffer " + displayName(ref)
		return nil
	}
	if err := manager.SaveAllBuffers(); err != nil {
		return err
	}
	a.journal(summary.Action, fs.HashText(before.Text()), ref, dropped, after)
	summary.Written = displayName(ref)
	return nil
}

// journal records a rewritten file. Journal failures are logged and never
// fail the run: the file has already been written.
func (a *App) journal(action, hashBefore, ref string, dropped int, after *lines.Store) {
	op := state.NewOperation(ref, dropped, hashBefore, fs.HashText(after.Text()))
	if _, err := a.stateManager.Write("", action, a.criterion.String(), []state.Operation{op}); err != nil {
		a.logger.Warn("journal not updated", "path", ref, "err", err)
		ui.Warning("Could not update the journal: %v", err)
	}
}

// runBatch removes repeated lines from every file named on the command line.
func (a *App) runBatch() (model.Summary, error) {
	refs, err := a.pathResolver.ExpandRefs(a.cfg.Args, a.cfg.Extensions)
	if err != nil {
		return model.Summary{}, err
	}
	if len(refs) == 0 {
		return model.Summary{Message: "No files matched. Nothing to process."}, nil
	}

	opts := a.batchOptions()
	if a.progressCallback != nil {
		a.progressCallback(0, len(refs))
		opts.Progress = a.progressCallback
	}

	rep, err := batch.Run(a.ctx, refs, opts)
	if err != nil {
		return model.Summary{}, err
	}

	if ops := state.OperationsFromReport(rep); len(ops) > 0 {
		if _, err := a.stateManager.Write(rep.ID, "batch", rep.Criterion, ops); err != nil {
			a.logger.Warn("journal not updated", "batch", rep.ID, "err", err)
		}
	}

	relativizeReport(rep)
	summary := model.Summary{Criterion: rep.Criterion, Batch: rep}
	if a.ctx.Err() != nil {
		summary.Message = "Batch cancelled. Files not yet started were left untouched."
	}
	return summary, a.exportReport(summary)
}

func (a *App) batchOptions() batch.Options {
	policy := batch.RemoveRepeats
	if a.cfg.Purge {
		policy = batch.Purge
	}
	return batch.Options{
		Criterion:    a.criterion,
		Policy:       policy,
		DryRun:       a.cfg.DryRun,
		Workers:      a.cfg.Workers,
		MaxOpenFiles: a.cfg.MaxOpen,
		Logger:       a.logger,
	}
}

// mergeFiles concatenates the inputs into one deduplicated file.
func (a *App) mergeFiles() (model.Summary, error) {
	refs, err := a.pathResolver.ExpandRefs(a.cfg.Args, a.cfg.Extensions)
	if err != nil {
		return model.Summary{}, err
	}
	if len(refs) == 0 {
		return model.Summary{Message: "No files matched. Nothing to process."}, nil
	}
	out := a.pathResolver.Resolve(a.cfg.MergeInto)
	if err := fs.EnsureParentDir(out); err != nil {
		return model.Summary{}, err
	}

	res, err := batch.MergeFiles(a.ctx, refs, out, a.batchOptions())
	if err != nil {
		return model.Summary{}, err
	}

	summary := model.Summary{
		Source:    displayName(out),
		Criterion: a.criterion.String(),
		Action:    "merge",
		Lines:     res.Store.Len(),
		Merged:    res.Merged,
		Values:    res.Affected,
		Affected:  res.Affected,
		Message:   fmt.Sprintf("Merged %d file(s).", len(refs)),
	}
	if a.cfg.DryRun {
		summary.Message += " Dry run. No changes written."
	} else {
		summary.Written = displayName(out)
	}
	return summary, a.exportReport(summary)
}

// compareFiles prints a unified diff between the two FILE arguments.
func (a *App) compareFiles() (model.Summary, error) {
	left, right := a.pathResolver.Resolve(a.cfg.Args[0]), a.pathResolver.Resolve(a.cfg.Args[1])
	ls, err := a.files.ReadLines(left)
	if err != nil {
		return model.Summary{}, err
	}
	rs, err := a.files.ReadLines(right)
	if err != nil {
		return model.Summary{}, err
	}

	diff, err := diffview.Unified(a.cfg.Args[0], a.cfg.Args[1], ls, rs, a.cfg.ContextSize)
	if err != nil {
		return model.Summary{}, err
	}
	if diff == "" {
		return model.Summary{Message: "Files are identical."}, nil
	}
	fmt.Fprint(a.stdout, diff)

	st := diffview.Compare(ls, rs)
	return model.Summary{
		Message: fmt.Sprintf("%d line(s) only in %s, %d line(s) only in %s.",
			st.Removed, a.cfg.Args[0], st.Added, a.cfg.Args[1]),
	}, nil
}

// printHistory lists the journal.
func (a *App) printHistory() (model.Summary, error) {
	history := a.stateManager.History()
	if len(history) == 0 {
		return model.Summary{Message: "No history recorded."}, nil
	}

	for _, entry := range history {
		fmt.Fprintf(a.stdout, "%s  %s  %s  %s\n",
			entry.Time().Format("2006-01-02 15:04:05"), entry.Action, entry.Criterion, entry.ID)
		for _, op := range entry.Operations {
			note := ""
			if changed, err := state.Changed(op); err != nil {
				note = "  (missing)"
			} else if changed {
				note = "  (changed since)"
			}
			fmt.Fprintf(a.stdout, "    -%-5d %s%s\n", op.Removed, fs.Relativize(op.Path)[0], note)
		}
	}
	return model.Summary{Message: fmt.Sprintf("%d run(s) recorded in %s.", len(history), displayName(a.stateManager.Path()))}, nil
}

func (a *App) exportReport(summary model.Summary) error {
	if a.cfg.Report == "" {
		return nil
	}
	var format report.Format
	if a.cfg.ReportFormat != "" {
		f, err := report.ParseFormat(a.cfg.ReportFormat)
		if err != nil {
			return err
		}
		format = f
	}
	if err := report.Export(a.cfg.Report, format, summary); err != nil {
		return err
	}
	a.logger.Info("report exported", "path", a.cfg.Report, "format", string(format))
	return nil
}

// promptYesNo asks on the status output and reads the answer from stdin.
func (a *App) promptYesNo(prompt string) (bool, error) {
	fmt.Fprint(ui.Out, ui.Prompt("%s [y/N] ", prompt))
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// relativizeReport converts absolute file paths in a report to be relative
// to the current working directory for cleaner display.
func relativizeReport(r *model.BatchReport) {
	for i := range r.Items {
		r.Items[i].Path = displayName(r.Items[i].Path)
	}
}

func displayName(p string) string {
	return fs.Relativize(p)[0]
}
