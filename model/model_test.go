package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchReportSummary(t *testing.T) {
	r := &BatchReport{Items: []BatchItem{
		{Path: "a", Status: StatusModified, Duplicates: 3, Removed: 3},
		{Path: "b", Status: StatusFailed, Reason: "boom"},
		{Path: "c", Status: StatusUnchanged},
		{Path: "d", Status: StatusModified, Duplicates: 1, Removed: 1},
	}}

	assert.Equal(t, BatchSummary{Total: 4, Modified: 2, Unchanged: 1, Failed: 1, Duplicates: 4, Removed: 4}, r.Summary())
	assert.Equal(t, []string{"a", "d"}, r.Paths(StatusModified))
	assert.Equal(t, []string{"b"}, r.Paths(StatusFailed))
	assert.Nil(t, r.Paths(Status("other")))
}
