package ddup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/ddup/ddup"
)

const doc = "alpha\nbeta\nAlpha\nalpha\ngamma\nbeta\n"

func TestFind(t *testing.T) {
	dups, err := ddup.Find(doc, ddup.Config{})
	require.NoError(t, err)
	assert.Equal(t, []ddup.Duplicate{
		{Value: "alpha", First: 0, Repeats: []int{3}},
		{Value: "beta", First: 1, Repeats: []int{5}},
	}, dups)
}

func TestFindIgnoreCase(t *testing.T) {
	dups, err := ddup.Find(doc, ddup.Config{IgnoreCase: true})
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, []int{2, 3}, dups[0].Repeats)
}

func TestFindInvalidPattern(t *testing.T) {
	_, err := ddup.Find(doc, ddup.Config{Criterion: "regex", Pattern: "("})
	assert.Error(t, err)
}

func TestDedupeKeepsFirst(t *testing.T) {
	out, sum, err := ddup.Dedupe(doc, ddup.Config{})
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\nAlpha\ngamma\n", out)
	assert.Equal(t, "merge", sum.Action)
	assert.Equal(t, 2, sum.Merged)
	assert.Equal(t, 6, sum.Lines)
	assert.Equal(t, []string{"alpha", "beta"}, sum.Values)
}

func TestDedupePurgeSelectedValues(t *testing.T) {
	out, sum, err := ddup.Dedupe(doc, ddup.Config{Purge: true, Values: []string{"beta", "delta"}})
	require.NoError(t, err)
	assert.Equal(t, "alpha\nAlpha\nalpha\ngamma\n", out)
	assert.Equal(t, "remove", sum.Action)
	assert.Equal(t, 2, sum.Removed)
	assert.Equal(t, []string{"beta"}, sum.Affected)
}

func TestDedupeNothingToDo(t *testing.T) {
	const unique = "one\r\ntwo\r\n"
	out, sum, err := ddup.Dedupe(unique, ddup.Config{})
	require.NoError(t, err)
	assert.Equal(t, unique, out)
	assert.Empty(t, sum.Action)
	assert.Zero(t, sum.Duplicates)
}

func TestDedupeUnknownCriterion(t *testing.T) {
	_, _, err := ddup.Dedupe(doc, ddup.Config{Criterion: "fuzzy"})
	assert.ErrorContains(t, err, "invalid criterion")
}
