package ddup

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/ddup/cli"
	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/reconcile"
	"github.com/sokinpui/ddup/internal/source"
	"github.com/sokinpui/ddup/internal/state"
	"github.com/sokinpui/ddup/internal/ui"
	"github.com/sokinpui/ddup/model"
)

const fruit = "apple\nbanana\napple\ncherry\nbanana\napple\n"

type harness struct {
	app     *App
	dir     string
	stdout  *bytes.Buffer
	journal *state.Manager
}

// newHarness builds an App working in a fresh directory with a private
// journal, silent status output and a confirmation prompt that answers no.
func newHarness(t *testing.T, cfg *cli.Config) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	color.NoColor = true
	prevOut := ui.Out
	ui.Out = &bytes.Buffer{}
	t.Cleanup(func() { ui.Out = prevOut })

	if cfg.Criterion == "" {
		cfg.Criterion = "exact"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.MaxOpen == 0 {
		cfg.MaxOpen = 4
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	journal, err := state.NewAt(dir)
	require.NoError(t, err)
	app.SetStateManager(journal)

	var stdout bytes.Buffer
	app.SetOutput(&stdout)
	app.SetConfirm(func(string) (bool, error) { return false, nil })
	return &harness{app: app, dir: dir, stdout: &stdout, journal: journal}
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRemoveAllWithYes(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "remove", sum.Action)
	assert.Equal(t, 5, sum.Removed)
	assert.Equal(t, []string{"apple", "banana"}, sum.Affected)
	assert.Equal(t, "notes.txt", sum.Written)
	assert.Equal(t, "cherry\n", read(t, path))
	assert.Empty(t, h.stdout.String())

	hist := h.journal.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "remove", hist[0].Action)
	require.Len(t, hist[0].Operations, 1)
	assert.Equal(t, 5, hist[0].Operations[0].Removed)
	assert.Equal(t, fs.HashText("cherry\n"), hist[0].Operations[0].HashAfter)
}

func TestSelectedMergeDeclinedGoesToStdout(t *testing.T) {
	h := newHarness(t, &cli.Config{Select: []string{"apple"}, Merge: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "merge", sum.Action)
	assert.Equal(t, 2, sum.Merged)
	assert.Empty(t, sum.Written)
	assert.Equal(t, "apple\nbanana\ncherry\nbanana\n", h.stdout.String())
	assert.Equal(t, fruit, read(t, path), "declined overwrite leaves the file alone")
	assert.Empty(t, h.journal.History())
}

func TestSelectedConfirmedOverwrite(t *testing.T) {
	h := newHarness(t, &cli.Config{Select: []string{"banana"}, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)
	var asked string
	h.app.SetConfirm(func(p string) (bool, error) { asked = p; return true, nil })

	_, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Overwrite notes.txt?", asked)
	assert.Equal(t, "apple\napple\ncherry\napple\n", read(t, path))
}

func TestCriterionKeyedSelection(t *testing.T) {
	h := newHarness(t, &cli.Config{Criterion: "case-insensitive", Select: []string{"APPLE"}, Output: "out.txt", Args: []string{"notes.txt"}})
	h.write(t, "notes.txt", "Apple\napple\nx\nAPPLE\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Removed)
	assert.Equal(t, "x\n", read(t, filepath.Join(h.dir, "out.txt")))
}

func TestOutputFile(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Merge: true, Output: "clean/out.txt", Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "clean/out.txt", sum.Written)
	assert.Equal(t, "apple\nbanana\ncherry\n", read(t, filepath.Join(h.dir, "clean", "out.txt")))
	assert.Equal(t, fruit, read(t, path))
}

func TestLookupDir(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Merge: true, LookupDirs: []string{"docs"}, Args: []string{"notes.txt"}})
	require.NoError(t, os.Mkdir(filepath.Join(h.dir, "docs"), 0755))
	path := h.write(t, filepath.Join("docs", "notes.txt"), fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("docs", "notes.txt"), sum.Written)
	assert.Equal(t, "apple\nbanana\ncherry\n", read(t, path))
}

func TestDiffPreview(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Merge: true, Diff: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "-apple\n")
	assert.Contains(t, sum.Message, "No changes written")
	assert.Equal(t, fruit, read(t, path))
}

func TestDryRunSingle(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, DryRun: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Removed)
	assert.Equal(t, fruit, read(t, path))
}

type fixedProvider struct {
	values []string
	merge  bool
	seen   []detect.Occurrence
}

func (p *fixedProvider) Select(occ []detect.Occurrence) (reconcile.Selection, error) {
	p.seen = occ
	return reconcile.NewSelection(p.values...), nil
}

func (p *fixedProvider) MergeRequested() bool { return p.merge }

func TestInjectedSelectionProvider(t *testing.T) {
	h := newHarness(t, &cli.Config{Output: "out.txt", ContextSize: 2, Args: []string{"notes.txt"}})
	h.write(t, "notes.txt", fruit)
	p := &fixedProvider{values: []string{"banana"}, merge: true}
	h.app.SetSelectionProvider(p)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	require.Len(t, p.seen, 2)
	assert.Len(t, p.seen[0].Contexts, 2, "contexts are computed for review")
	assert.Equal(t, "merge", sum.Action)
	assert.Equal(t, "apple\nbanana\napple\ncherry\napple\n", read(t, filepath.Join(h.dir, "out.txt")))
}

func TestEmptySelectionIsNoOp(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: false, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)
	h.app.SetSelectionProvider(&fixedProvider{})

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Nothing selected. No changes made.", sum.Message)
	assert.Empty(t, sum.Action)
	assert.Equal(t, fruit, read(t, path))
}

func TestNoDuplicates(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Report: "report.txt", Args: []string{"notes.txt"}})
	h.write(t, "notes.txt", "a\nb\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "No duplicate lines found.", sum.Message)
	assert.Equal(t, "Duplicate Report\n\nLines: 2\nDuplicates: 0\nLines removed: 0\n", read(t, filepath.Join(h.dir, "report.txt")))
}

func TestStdinSource(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Merge: true})
	h.app.SetSource(&source.SourceProvider{
		Stdin:   strings.NewReader("x\ny\nx\n"),
		IsPiped: func() bool { return true },
	})

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, source.NameStdin, sum.Source)
	assert.Equal(t, "x\ny\n", h.stdout.String())
}

func TestLoadErrorPropagates(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Args: []string{"missing.txt"}})

	_, err := h.app.Execute()
	var ioErr *fs.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "read", ioErr.Op)
}

type panickingProvider struct{}

func (panickingProvider) Select([]detect.Occurrence) (reconcile.Selection, error) {
	panic("selector exploded")
}

func TestPanicBecomesDetailedError(t *testing.T) {
	h := newHarness(t, &cli.Config{Args: []string{"notes.txt"}})
	h.write(t, "notes.txt", fruit)
	h.app.SetSelectionProvider(panickingProvider{})

	_, err := h.app.Execute()
	var de *DetailedError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Error(), "selector exploded")
	assert.NotEmpty(t, de.StackTrace())
}

func TestSort(t *testing.T) {
	h := newHarness(t, &cli.Config{Sort: "length-desc", Yes: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", "bb\na\nccc\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "sort", sum.Action)
	assert.Equal(t, "ccc\nbb\na\n", read(t, path))
}

func TestReplaceLiteral(t *testing.T) {
	h := newHarness(t, &cli.Config{Replace: "apple", With: "pear", Yes: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "replace", sum.Action)
	assert.Equal(t, 3, sum.Replaced)
	assert.Equal(t, "pear\nbanana\npear\ncherry\nbanana\npear\n", read(t, path))

	hist := h.journal.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "replace", hist[0].Action)
}

func TestReplaceRegexToOutput(t *testing.T) {
	h := newHarness(t, &cli.Config{Replace: `(?m)^(\w+)=(.*)$`, With: "$2=$1", Regex: true, Output: "out.env", Args: []string{"a.env"}})
	path := h.write(t, "a.env", "HOST=x\r\nPORT=1\r\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Replaced)
	assert.Equal(t, "x=HOST\r\n1=PORT\r\n", read(t, filepath.Join(h.dir, "out.env")))
	assert.Equal(t, "HOST=x\r\nPORT=1\r\n", read(t, path))
}

func TestReplaceNoMatch(t *testing.T) {
	h := newHarness(t, &cli.Config{Replace: "kiwi", With: "x", Yes: true, Args: []string{"notes.txt"}})
	path := h.write(t, "notes.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "No matches found. No changes made.", sum.Message)
	assert.Equal(t, fruit, read(t, path))
	assert.Empty(t, h.journal.History())
}

func TestReplaceInvalidPattern(t *testing.T) {
	h := newHarness(t, &cli.Config{Replace: "(", Regex: true, Args: []string{"notes.txt"}})
	h.write(t, "notes.txt", fruit)

	_, err := h.app.Execute()
	assert.ErrorIs(t, err, match.ErrInvalidPattern)
}

func TestOverwriteKeepsCRLF(t *testing.T) {
	h := newHarness(t, &cli.Config{Yes: true, Merge: true, Args: []string{"dos.txt"}})
	path := h.write(t, "dos.txt", "x\r\ny\r\nx\r\n")

	_, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "x\r\ny\r\n", read(t, path))

	hist := h.journal.History()
	require.Len(t, hist, 1)
	assert.Equal(t, fs.HashText("x\r\ny\r\nx\r\n"), hist[0].Operations[0].HashBefore)
	changed, err := state.Changed(hist[0].Operations[0])
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestBatch(t *testing.T) {
	h := newHarness(t, &cli.Config{Batch: true, Report: "out/report.json", Args: []string{"."}, Extensions: []string{".txt"}})
	a := h.write(t, "a.txt", fruit)
	h.write(t, "b.txt", "ok\n\xff\n")
	c := h.write(t, "c.txt", "one\ntwo\n")
	h.write(t, "skip.md", "x\nx\n")

	var progress []int
	h.app.SetProgressCallback(func(current, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, current)
	})

	sum, err := h.app.Execute()
	require.NoError(t, err)
	require.NotNil(t, sum.Batch)
	items := sum.Batch.Items
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, []string{items[0].Path, items[1].Path, items[2].Path})
	assert.Equal(t, model.StatusModified, items[0].Status)
	assert.Equal(t, model.StatusFailed, items[1].Status)
	assert.Equal(t, model.StatusUnchanged, items[2].Status)
	assert.Equal(t, []int{0, 1, 2, 3}, progress)

	assert.Equal(t, "apple\nbanana\ncherry\n", read(t, a))
	assert.Equal(t, "one\ntwo\n", read(t, c))

	hist := h.journal.History()
	require.Len(t, hist, 1)
	assert.Equal(t, sum.Batch.ID, hist[0].ID)
	require.Len(t, hist[0].Operations, 1)
	assert.Equal(t, a, hist[0].Operations[0].Path)

	var exported model.Summary
	require.NoError(t, json.Unmarshal([]byte(read(t, filepath.Join(h.dir, "out", "report.json"))), &exported))
	assert.Len(t, exported.Batch.Items, 3)

	h.stdout.Reset()
	h.app.cfg.Batch = false
	h.app.cfg.History = true
	hsum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "batch")
	assert.Contains(t, h.stdout.String(), "-3     a.txt")
	assert.Contains(t, hsum.Message, "1 run(s) recorded")
}

func TestBatchPurgeDryRun(t *testing.T) {
	h := newHarness(t, &cli.Config{Batch: true, Purge: true, DryRun: true, Args: []string{"a.txt"}})
	a := h.write(t, "a.txt", fruit)

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Batch.Items[0].Removed)
	assert.Equal(t, "purge", sum.Batch.Policy)
	assert.Equal(t, fruit, read(t, a))
	assert.Empty(t, h.journal.History(), "dry runs are not journaled")
}

func TestBatchCancelled(t *testing.T) {
	h := newHarness(t, &cli.Config{Batch: true, Args: []string{"a.txt", "b.txt"}})
	h.write(t, "a.txt", fruit)
	h.write(t, "b.txt", fruit)
	h.app.Cancel()

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Contains(t, sum.Message, "cancelled")
	for _, it := range sum.Batch.Items {
		assert.Equal(t, model.StatusFailed, it.Status)
	}
}

func TestMergeInto(t *testing.T) {
	h := newHarness(t, &cli.Config{MergeInto: "all.txt", Args: []string{"a.txt", "b.txt"}})
	h.write(t, "a.txt", "one\ntwo\n")
	h.write(t, "b.txt", "two\nthree\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "all.txt", sum.Written)
	assert.Equal(t, 1, sum.Merged)
	assert.Equal(t, "one\ntwo\nthree\n", read(t, filepath.Join(h.dir, "all.txt")))
}

func TestCompare(t *testing.T) {
	h := newHarness(t, &cli.Config{Compare: true, ContextSize: 1, Args: []string{"a.txt", "b.txt"}})
	h.write(t, "a.txt", fruit)
	h.write(t, "b.txt", "apple\nbanana\ncherry\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "--- a.txt")
	assert.Contains(t, h.stdout.String(), "+++ b.txt")
	assert.Equal(t, "3 line(s) only in a.txt, 0 line(s) only in b.txt.", sum.Message)
}

func TestCompareIdentical(t *testing.T) {
	h := newHarness(t, &cli.Config{Compare: true, Args: []string{"a.txt", "b.txt"}})
	h.write(t, "a.txt", "x\n")
	h.write(t, "b.txt", "x\n")

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Files are identical.", sum.Message)
	assert.Empty(t, h.stdout.String())
}

func TestHistoryEmpty(t *testing.T) {
	h := newHarness(t, &cli.Config{History: true})

	sum, err := h.app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "No history recorded.", sum.Message)
}
