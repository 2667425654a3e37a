package model

import "time"

// Status is the outcome of one file in a batch.
type Status string

const (
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// BatchItem is the result for a single input file of a batch run.
type BatchItem struct {
	Path   string `json:"path" yaml:"path"`
	Status Status `json:"status" yaml:"status"`
	// Reason is set when Status is StatusFailed.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	// Lines is the number of lines read from the file.
	Lines int `json:"lines" yaml:"lines"`
	// Duplicates is the number of flagged repeat lines found.
	Duplicates int `json:"duplicates" yaml:"duplicates"`
	// Removed is the number of lines dropped from the file.
	Removed int `json:"removed" yaml:"removed"`
	// Values are the duplicated line values, in detection order.
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
	// HashBefore and HashAfter are SHA-256 digests of the file content,
	// HashAfter only when the file was rewritten.
	HashBefore string `json:"-" yaml:"-"`
	HashAfter  string `json:"-" yaml:"-"`
}

// BatchReport enumerates every input file of a batch exactly once, in input order.
type BatchReport struct {
	ID        string      `json:"id" yaml:"id"`
	Criterion string      `json:"criterion" yaml:"criterion"`
	Policy    string      `json:"policy" yaml:"policy"`
	Started   time.Time   `json:"started" yaml:"started"`
	Finished  time.Time   `json:"finished" yaml:"finished"`
	DryRun    bool        `json:"dry_run" yaml:"dry_run"`
	Items     []BatchItem `json:"items" yaml:"items"`
}

// BatchSummary holds the aggregate counts of a BatchReport.
type BatchSummary struct {
	Total      int `json:"total" yaml:"total"`
	Modified   int `json:"modified" yaml:"modified"`
	Unchanged  int `json:"unchanged" yaml:"unchanged"`
	Failed     int `json:"failed" yaml:"failed"`
	Duplicates int `json:"duplicates" yaml:"duplicates"`
	Removed    int `json:"removed" yaml:"removed"`
}

// Summary computes the aggregate counts.
func (r *BatchReport) Summary() BatchSummary {
	s := BatchSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusModified:
			s.Modified++
		case StatusUnchanged:
			s.Unchanged++
		case StatusFailed:
			s.Failed++
		}
		s.Duplicates += it.Duplicates
		s.Removed += it.Removed
	}
	return s
}

// Paths returns the paths of items with the given status, in input order.
func (r *BatchReport) Paths(status Status) []string {
	var out []string
	for _, it := range r.Items {
		if it.Status == status {
			out = append(out, it.Path)
		}
	}
	return out
}

// Summary holds the results of a single-document operation for display.
type Summary struct {
	Source     string   `json:"source" yaml:"source"`
	Criterion  string   `json:"criterion" yaml:"criterion"`
	Action     string   `json:"action" yaml:"action"` // "remove", "merge", "sort", "replace" or "" when nothing was applied
	Lines      int      `json:"lines" yaml:"lines"`
	Duplicates int      `json:"duplicates" yaml:"duplicates"`
	Removed    int      `json:"removed" yaml:"removed"`
	Merged     int      `json:"merged" yaml:"merged"`
	Replaced   int      `json:"replaced,omitempty" yaml:"replaced,omitempty"`
	// Values are all duplicated values found; Affected is the subset the
	// action was applied to.
	Values     []string `json:"values,omitempty" yaml:"values,omitempty"`
	Affected   []string `json:"affected,omitempty" yaml:"affected,omitempty"`
	Written    string   `json:"written,omitempty" yaml:"written,omitempty"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`

	// Batch is set when the operation was a batch run.
	Batch *BatchReport `json:"batch,omitempty" yaml:"batch,omitempty"`
}
