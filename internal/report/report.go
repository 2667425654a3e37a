// Package report renders the outcome of a ddup run for export.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	ifs "github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/model"
)

// Format is an export format.
type Format string

const (
	Text     Format = "text"
	Markdown Format = "markdown"
	HTML     Format = "html"
	JSON     Format = "json"
	YAML     Format = "yaml"
)

// ParseFormat accepts a format name or one of its common short forms.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "text", "txt":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	case "html", "htm":
		return HTML, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, markdown, html, json or yaml)", name)
}

// FormatFromPath guesses the format from the file extension, falling back
// to Text.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return Text
	}
	return f
}

// Entry is one duplicated value and what happened to it.
type Entry struct {
	Line     string
	Location string
	Action   string
}

// Failure is a batch file that could not be processed.
type Failure struct {
	Path   string
	Reason string
}

// Entries flattens a summary into one entry per duplicated value, in
// detection order, file by file for batch runs.
func Entries(sum model.Summary) ([]Entry, []Failure) {
	if sum.Batch != nil {
		return batchEntries(sum.Batch)
	}

	affected := make(map[string]bool, len(sum.Affected))
	for _, v := range sum.Affected {
		affected[v] = true
	}
	values := sum.Values
	if len(values) == 0 {
		values = sum.Affected
	}

	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		action := "kept"
		if affected[v] {
			action = singleAction(sum.Action)
		}
		entries = append(entries, Entry{Line: v, Location: sum.Source, Action: action})
	}
	return entries, nil
}

func singleAction(action string) string {
	switch action {
	case "remove":
		return "removed all occurrences"
	case "merge":
		return "kept first occurrence, removed repeats"
	}
	return "kept"
}

func batchEntries(r *model.BatchReport) ([]Entry, []Failure) {
	action := "kept first occurrence, removed repeats"
	if r.Policy == "purge" {
		action = "removed all occurrences"
	}
	if r.DryRun {
		action = "would have " + action
	}

	var (
		entries  []Entry
		failures []Failure
	)
	for _, it := range r.Items {
		if it.Status == model.StatusFailed {
			failures = append(failures, Failure{Path: it.Path, Reason: it.Reason})
			continue
		}
		for _, v := range it.Values {
			entries = append(entries, Entry{Line: v, Location: it.Path, Action: action})
		}
	}
	return entries, failures
}

// Render writes sum to w in format f.
func Render(w io.Writer, f Format, sum model.Summary) error {
	switch f {
	case Text, "":
		return renderText(w, sum)
	case Markdown:
		return renderMarkdown(w, sum)
	case HTML:
		return renderHTML(w, sum)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sum); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown report format %q", f)
}

// Export renders sum to the file at path, creating parent directories.
// An empty format is guessed from the extension.
func Export(path string, f Format, sum model.Summary) error {
	if f == "" {
		f = FormatFromPath(path)
	}
	var buf bytes.Buffer
	if err := Render(&buf, f, sum); err != nil {
		return err
	}
	if err := ifs.EnsureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func renderText(w io.Writer, sum model.Summary) error {
	entries, failures := Entries(sum)

	var b strings.Builder
	b.WriteString("Duplicate Report\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "Duplicate %d:\n", i+1)
		fmt.Fprintf(&b, "Line: %s\n", e.Line)
		fmt.Fprintf(&b, "Location: %s\n", e.Location)
		fmt.Fprintf(&b, "Action: %s\n\n", e.Action)
	}
	for _, f := range failures {
		fmt.Fprintf(&b, "Failed: %s\nReason: %s\n\n", f.Path, f.Reason)
	}
	writeTotals(&b, sum, "")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTotals(b *strings.Builder, sum model.Summary, bullet string) {
	if sum.Batch != nil {
		s := sum.Batch.Summary()
		fmt.Fprintf(b, "%sFiles: %d (modified %d, unchanged %d, failed %d)\n",
			bullet, s.Total, s.Modified, s.Unchanged, s.Failed)
		fmt.Fprintf(b, "%sDuplicates: %d\n", bullet, s.Duplicates)
		fmt.Fprintf(b, "%sLines removed: %d\n", bullet, s.Removed)
		return
	}
	fmt.Fprintf(b, "%sLines: %d\n", bullet, sum.Lines)
	fmt.Fprintf(b, "%sDuplicates: %d\n", bullet, sum.Duplicates)
	fmt.Fprintf(b, "%sLines removed: %d\n", bullet, sum.Removed+sum.Merged)
}

func renderMarkdown(w io.Writer, sum model.Summary) error {
	_, err := io.WriteString(w, markdown(sum))
	return err
}

func markdown(sum model.Summary) string {
	entries, failures := Entries(sum)

	var b strings.Builder
	b.WriteString("# Duplicate Report\n\n")
	criterion := sum.Criterion
	if sum.Batch != nil {
		criterion = sum.Batch.Criterion
	}
	if criterion != "" {
		fmt.Fprintf(&b, "Criterion: %s\n\n", escape(criterion))
	}

	if len(entries) > 0 {
		b.WriteString("| # | Line | Location | Action |\n")
		b.WriteString("|---|------|----------|--------|\n")
		for i, e := range entries {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, escape(e.Line), escape(e.Location), escape(e.Action))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No duplicates found.\n\n")
	}

	if len(failures) > 0 {
		b.WriteString("## Failed\n\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s: %s\n", escape(f.Path), escape(f.Reason))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Totals\n\n")
	writeTotals(&b, sum, "- ")
	return b.String()
}

func renderHTML(w io.Writer, sum model.Summary) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var body bytes.Buffer
	if err := md.Convert([]byte(markdown(sum)), &body); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Duplicate Report</title>\n</head>\n<body>\n%s</body>\n</html>\n", body.String())
	return err
}

// escape backslash-escapes ASCII punctuation so line values are shown
// verbatim in Markdown and do not break table cells.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune("\\`*_{}[]()<>#+-.!|~&\"'=:;,?@$%^/", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
