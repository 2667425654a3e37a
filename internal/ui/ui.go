package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	FaintColor   = color.New(color.Faint)
)

// Out is where status output goes. Tests swap it for a buffer.
var Out io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// --- Duplicates ---

// PrintDuplicates lists every duplicated value with its flagged line numbers
// (1-based) and, when present, the context around each repeat.
func PrintDuplicates(occ []detect.Occurrence) {
	if len(occ) == 0 {
		Info("No duplicate lines found.")
		return
	}

	Header("--- Duplicates (%d value(s), %d line(s)) ---", len(occ), detect.Count(occ))
	for i, o := range occ {
		nums := make([]string, len(o.Positions))
		for j, p := range o.Positions {
			nums[j] = fmt.Sprintf("%d", p+1)
		}
		Success("%d. %q", i+1, o.Value)
		Path("first at line %d, repeated at line(s) %s", o.First+1, strings.Join(nums, ", "))

		for _, c := range o.Contexts {
			for _, l := range c.Before {
				FaintColor.Fprintf(Out, "    %5d  %s\n", l.Pos+1, l.Value)
			}
			WarningColor.Fprintf(Out, "  > %5d  %s\n", c.Position+1, o.Value)
			for _, l := range c.After {
				FaintColor.Fprintf(Out, "    %5d  %s\n", l.Pos+1, l.Value)
			}
			fmt.Fprintln(Out)
		}
	}
}

// --- Summaries ---

func PrintSummary(s model.Summary) {
	if s.Batch != nil {
		PrintBatchSummary(s.Batch)
		return
	}

	Header("\n--- Summary ---")
	if s.Message != "" {
		Info(s.Message)
	}
	switch s.Action {
	case "remove":
		Success("Removed %d line(s) of %d value(s).", s.Removed, len(s.Affected))
	case "merge":
		Success("Merged %d repeated line(s) of %d value(s).", s.Merged, len(s.Affected))
	case "sort":
		Success("Sorted %d line(s).", s.Lines)
	case "replace":
		Success("Replaced %d occurrence(s).", s.Replaced)
	}
	for _, v := range s.Affected {
		fmt.Fprintf(Out, "  - %q\n", v)
	}
	if s.Written != "" {
		Success("Written to %s", s.Written)
	}
}

func PrintBatchSummary(r *model.BatchReport) {
	Header("\n--- Batch Summary ---")
	if r.DryRun {
		Warning("Dry run: no files were written.")
	}

	sum := r.Summary()
	if sum.Total == 0 {
		Info("No files were processed.")
		return
	}

	for _, it := range r.Items {
		switch it.Status {
		case model.StatusModified:
			SuccessColor.Fprintf(Out, "  modified   ")
			fmt.Fprintf(Out, "%s (%d line(s) removed)\n", it.Path, it.Removed)
		case model.StatusUnchanged:
			FaintColor.Fprintf(Out, "  unchanged  %s\n", it.Path)
		case model.StatusFailed:
			ErrorColor.Fprintf(Out, "  failed     ")
			fmt.Fprintf(Out, "%s: %s\n", it.Path, it.Reason)
		}
	}

	Info("\n%d file(s): %d modified, %d unchanged, %d failed; %d line(s) removed.",
		sum.Total, sum.Modified, sum.Unchanged, sum.Failed, sum.Removed)
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to an absolute position.
func (p *ProgressBar) Set(current int) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(Out)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(Out, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
