// Package batch runs detection and reconciliation over many independent
// files and collects the outcomes into a single report.
//
// Files are processed by a fixed pool of workers. Each file is isolated: it
// gets its own classifier, store and result, and a failure on one file is
// recorded on its report item without affecting the others. Rewriting a
// file is destructive and cannot be undone.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sokinpui/ddup/internal/detect"
	ifs "github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/logging"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/reconcile"
	"github.com/sokinpui/ddup/model"
)

// ReasonCancelled is recorded for files the batch never started because it
// was cancelled.
const ReasonCancelled = "batch cancelled"

// Source loads a document.
type Source interface {
	ReadLines(ref string) (*lines.Store, error)
}

// Sink stores a document.
type Sink interface {
	WriteLines(ref string, store *lines.Store) error
}

// Policy decides what is removed from a file with duplicates.
type Policy int

const (
	// RemoveRepeats drops the flagged repeats and keeps each first occurrence.
	RemoveRepeats Policy = iota
	// Purge drops every occurrence of each duplicated value.
	Purge
)

func (p Policy) String() string {
	if p == Purge {
		return "purge"
	}
	return "remove-repeats"
}

// Options configures a batch run. The zero value is usable: exact matching,
// one worker per CPU, the local filesystem as source and sink.
type Options struct {
	Criterion    match.Criterion
	ContextSize  int
	Policy       Policy
	DryRun       bool
	Workers      int
	MaxOpenFiles int

	Source Source
	Sink   Sink

	// Progress is called after each file with the number of finished files.
	// Calls are serialized.
	Progress func(done, total int)
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = 16
	}
	if o.Source == nil {
		o.Source = ifs.Files{}
	}
	if o.Sink == nil {
		o.Sink = ifs.Files{}
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// Run processes refs and returns a report with one item per ref, in input
// order. The only error is an invalid criterion, detected before any file is
// read. Cancelling ctx stops files from being started; files already in
// progress run to completion, and the rest are reported as failed with
// ReasonCancelled.
func Run(ctx context.Context, refs []string, opts Options) (*model.BatchReport, error) {
	opts = opts.withDefaults()
	if _, err := match.Compile(opts.Criterion); err != nil {
		return nil, err
	}

	report := &model.BatchReport{
		ID:        uuid.NewString(),
		Criterion: opts.Criterion.String(),
		Policy:    opts.Policy.String(),
		Started:   time.Now(),
		DryRun:    opts.DryRun,
		Items:     make([]model.BatchItem, len(refs)),
	}
	log := opts.Logger.With("batch", report.ID)
	log.Info("batch started", "files", len(refs), "criterion", report.Criterion, "dry_run", opts.DryRun)

	sem := semaphore.NewWeighted(int64(opts.MaxOpenFiles))
	jobs := make(chan int)

	var (
		progressMu sync.Mutex
		done       int
	)
	finish := func(idx int, item model.BatchItem) {
		report.Items[idx] = item
		logItem(log, item)

		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(refs))
		}
	}

	workers := opts.Workers
	if workers > len(refs) {
		workers = len(refs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Compiled per worker: the case folder is not safe for concurrent use.
			cl := match.MustCompile(opts.Criterion)
			for idx := range jobs {
				finish(idx, processFile(ctx, refs[idx], cl, sem, opts))
			}
		}()
	}

feed:
	for i := range refs {
		select {
		case <-ctx.Done():
			for j := i; j < len(refs); j++ {
				finish(j, cancelled(refs[j]))
			}
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	report.Finished = time.Now()
	sum := report.Summary()
	log.Info("batch finished",
		"modified", sum.Modified, "unchanged", sum.Unchanged, "failed", sum.Failed,
		"removed", sum.Removed, "elapsed", report.Finished.Sub(report.Started))
	return report, nil
}

func cancelled(ref string) model.BatchItem {
	return model.BatchItem{Path: ref, Status: model.StatusFailed, Reason: ReasonCancelled}
}

func failed(item model.BatchItem, err error) model.BatchItem {
	item.Status = model.StatusFailed
	item.Reason = err.Error()
	return item
}

// processFile runs load, detect, reconcile and write for one file.
func processFile(ctx context.Context, ref string, cl *match.Classifier, sem *semaphore.Weighted, opts Options) (item model.BatchItem) {
	item = model.BatchItem{Path: ref}

	defer func() {
		if r := recover(); r != nil {
			item = failed(item, fmt.Errorf("internal panic: %v", r))
		}
	}()

	if ctx.Err() != nil {
		return cancelled(ref)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return cancelled(ref)
	}
	store, err := opts.Source.ReadLines(ref)
	sem.Release(1)
	if err != nil {
		return failed(item, err)
	}

	item.Lines = store.Len()
	item.HashBefore = ifs.HashText(store.Text())

	occ := detect.Detect(store, cl, opts.ContextSize)
	if len(occ) == 0 {
		item.Status = model.StatusUnchanged
		return item
	}
	item.Duplicates = detect.Count(occ)
	item.Values = detect.Values(occ)

	var res reconcile.Result
	switch opts.Policy {
	case Purge:
		res = reconcile.Remove(store, reconcile.SelectionFrom(occ, cl))
	default:
		res = reconcile.RemoveRepeats(store, occ)
	}
	item.Removed = res.Dropped()
	item.Status = model.StatusModified

	if opts.DryRun {
		return item
	}

	// The file is already being processed; finish it even if the batch is
	// cancelled meanwhile.
	if err := sem.Acquire(context.WithoutCancel(ctx), 1); err != nil {
		return failed(item, err)
	}
	err = opts.Sink.WriteLines(ref, res.Store)
	sem.Release(1)
	if err != nil {
		item.Removed = 0
		return failed(item, err)
	}
	item.HashAfter = ifs.HashText(res.Store.Text())
	return item
}

func logItem(log *slog.Logger, item model.BatchItem) {
	if item.Status == model.StatusFailed {
		log.Warn("file failed", "path", item.Path, "reason", item.Reason)
		return
	}
	log.Info("file processed",
		"path", item.Path, "status", string(item.Status),
		"lines", item.Lines, "duplicates", item.Duplicates, "removed", item.Removed)
	if len(item.Values) > 0 {
		log.Debug("duplicated values", "path", item.Path, "values", item.Values)
	}
}
