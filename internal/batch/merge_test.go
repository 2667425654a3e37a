package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ifs "github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/internal/match"
)

func TestMergeFiles(t *testing.T) {
	m := newMemFiles(map[string]string{
		"a": "one\ntwo\n",
		"b": "two\nthree\nONE\n",
	})
	opts := optionsFor(m)
	opts.Criterion = match.Criterion{Kind: match.Exact, FoldCase: true}

	res, err := MergeFiles(context.Background(), []string{"a", "b"}, "out", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dropped())
	assert.Equal(t, "one\ntwo\nthree\n", m.doc("out"))
	assert.Equal(t, "one\ntwo\n", m.doc("a"), "inputs untouched")
}

func TestMergeFilesLineEndings(t *testing.T) {
	m := newMemFiles(map[string]string{
		"dos1": "a\r\nb\r\n",
		"dos2": "b\r\nc\r\n",
		"unix": "c\nd\n",
	})

	_, err := MergeFiles(context.Background(), []string{"dos1", "dos2"}, "out", optionsFor(m))
	require.NoError(t, err)
	assert.Equal(t, "a\r\nb\r\nc\r\n", m.doc("out"))

	_, err = MergeFiles(context.Background(), []string{"dos1", "unix"}, "out", optionsFor(m))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\n", m.doc("out"))
}

func TestMergeFilesDryRun(t *testing.T) {
	m := newMemFiles(map[string]string{"a": "x", "b": "x"})
	opts := optionsFor(m)
	opts.DryRun = true

	res, err := MergeFiles(context.Background(), []string{"a", "b"}, "out", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res.Store.Values())
	assert.Zero(t, m.written["out"])
}

func TestMergeFilesAbortsOnReadFailure(t *testing.T) {
	m := newMemFiles(map[string]string{"a": "x\n"})

	_, err := MergeFiles(context.Background(), []string{"a", "missing"}, "out", optionsFor(m))
	require.Error(t, err)
	var ioErr *ifs.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "missing", ioErr.Path)
	assert.Zero(t, m.written["out"])
}

func TestMergeFilesCancelled(t *testing.T) {
	m := newMemFiles(map[string]string{"a": "x\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MergeFiles(ctx, []string{"a"}, "out", optionsFor(m))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	out := filepath.Join(dir, "merged", "out.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha\nbeta\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("beta\ngamma\n"), 0644))
	require.NoError(t, ifs.EnsureParentDir(out))

	_, err := MergeFiles(context.Background(), []string{a, b}, out, Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\ngamma\n", string(data))
}
