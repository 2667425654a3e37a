package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/ddup/internal/match"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	for _, k := range []string{
		"DDUP_CRITERION", "DDUP_PATTERN", "DDUP_IGNORE_CASE", "DDUP_IGNORE_WHITESPACE",
		"DDUP_CONTEXT", "DDUP_WORKERS", "DDUP_MAX_OPEN", "DDUP_LOG_FILE", "DDUP_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestParseArgsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := ParseArgs([]string{"notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, cfg.Mode())
	assert.Equal(t, []string{"notes.txt"}, cfg.Args)
	assert.Equal(t, "exact", cfg.Criterion)
	assert.Equal(t, 2, cfg.ContextSize)
	assert.Equal(t, 16, cfg.MaxOpen)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseArgsFlags(t *testing.T) {
	isolate(t)

	cfg, err := ParseArgs([]string{
		"-c", "prefix", "-i", "-C", "0", "-m", "-s", "a, b", "-s", "c",
		"-o", "out.txt", "--copy", "notes.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ContextSize)
	assert.True(t, cfg.Merge)
	assert.Equal(t, []string{"a, b", "c"}, cfg.Select, "select values may contain commas")
	assert.Equal(t, "out.txt", cfg.Output)
	assert.True(t, cfg.Copy)

	crit, err := cfg.MatchCriterion()
	require.NoError(t, err)
	assert.Equal(t, match.Criterion{Kind: match.CommonPrefix, FoldCase: true}, crit)
}

func TestParseArgsConfigFileAndFlagPrecedence(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
criterion = "case-insensitive"
context_size = 5

[batch]
workers = 3
extensions = ["log"]
purge = true
`), 0644))

	cfg, err := ParseArgs([]string{"--config", path, "--batch", "-C", "1", "logs"})
	require.NoError(t, err)
	assert.Equal(t, ModeBatch, cfg.Mode())
	assert.Equal(t, 1, cfg.ContextSize, "flag beats file")
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Purge)
	assert.Equal(t, []string{".log"}, cfg.Extensions)

	crit, err := cfg.MatchCriterion()
	require.NoError(t, err)
	assert.True(t, crit.FoldCase)
}

func TestParseArgsEnv(t *testing.T) {
	isolate(t)
	t.Setenv("DDUP_WORKERS", "5")

	cfg, err := ParseArgs([]string{"--batch", "-j", "2", "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)

	cfg, err = ParseArgs([]string{"--batch", "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
}

func TestParseArgsExtensionsNormalized(t *testing.T) {
	isolate(t)

	cfg, err := ParseArgs([]string{"--batch", "-e", "txt,.csv", "."})
	require.NoError(t, err)
	assert.Equal(t, []string{".txt", ".csv"}, cfg.Extensions)
}

func TestParseArgsLookupDirs(t *testing.T) {
	isolate(t)

	cfg, err := ParseArgs([]string{"-l", "docs,notes", "todo.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "notes"}, cfg.LookupDirs)
	assert.Equal(t, []string{"todo.txt"}, cfg.Args)
}

func TestParseArgsReplace(t *testing.T) {
	isolate(t)

	cfg, err := ParseArgs([]string{"--replace", `^(\w+)=`, "--with", "$1: ", "--regex", "env.txt"})
	require.NoError(t, err)
	assert.Equal(t, `^(\w+)=`, cfg.Replace)
	assert.Equal(t, "$1: ", cfg.With)
	assert.True(t, cfg.Regex)
	assert.Equal(t, ModeReplace, cfg.Mode())

	cfg, err = ParseArgs([]string{"--replace", "(", "--nvim", "notes.txt"})
	require.NoError(t, err, "literal text is not compiled")
	assert.Empty(t, cfg.With)
}

func TestModes(t *testing.T) {
	isolate(t)

	tests := []struct {
		args []string
		want Mode
	}{
		{[]string{}, ModeSingle},
		{[]string{"--sort", "alphabetical", "a.txt"}, ModeSort},
		{[]string{"--replace", "a", "--with", "b", "a.txt"}, ModeReplace},
		{[]string{"--batch", "a.txt", "b.txt"}, ModeBatch},
		{[]string{"--merge-into", "out.txt", "a.txt", "b.txt"}, ModeMergeInto},
		{[]string{"--compare", "a.txt", "b.txt"}, ModeCompare},
		{[]string{"--history"}, ModeHistory},
	}
	for _, tt := range tests {
		cfg, err := ParseArgs(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, cfg.Mode(), tt.args)
	}
}

func TestParseArgsErrors(t *testing.T) {
	isolate(t)

	tests := map[string][]string{
		"two modes":           {"--batch", "--compare", "a", "b"},
		"compare arity":       {"--compare", "a"},
		"batch needs files":   {"--batch"},
		"history no files":    {"--history", "a"},
		"several singles":     {"a", "b"},
		"bad context":         {"-C", "101"},
		"bad workers":         {"-j", "0", "--batch", "a"},
		"unknown criterion":   {"-c", "fuzzy"},
		"regex no pattern":    {"-c", "regex"},
		"bad regex":           {"-c", "regex", "-p", "("},
		"regex ignore case":   {"-c", "regex", "-p", "a", "-i"},
		"yes and select":      {"-y", "-s", "x", "a"},
		"nvim and output":     {"--nvim", "-o", "x", "a"},
		"buffer needs nvim":   {"-b", "a"},
		"nvim needs a file":   {"--nvim"},
		"sort nvim no file":   {"--sort", "alphabetical", "--nvim"},
		"replace nvim stdin":  {"--replace", "a", "--nvim"},
		"with needs replace":  {"--with", "b", "a"},
		"regex needs replace": {"--regex", "a"},
		"bad replace regex":   {"--replace", "(", "--regex", "a"},
		"sort and replace":    {"--sort", "alphabetical", "--replace", "a", "f"},
		"bad report format":   {"--report", "r.pdf", "--report-format", "pdf"},
		"bad sort order":      {"--sort", "random", "a"},
		"unknown flag":        {"--frobnicate"},
		"missing config":      {"--config", "nope.toml"},
	}
	for name, args := range tests {
		_, err := ParseArgs(args)
		assert.Error(t, err, name)
	}
}
