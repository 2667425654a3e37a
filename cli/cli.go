package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sokinpui/ddup/internal/config"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/report"
)

// Mode is the operation selected by the flags.
type Mode int

const (
	ModeSingle Mode = iota
	ModeSort
	ModeReplace
	ModeBatch
	ModeMergeInto
	ModeCompare
	ModeHistory
)

func (m Mode) String() string {
	switch m {
	case ModeSort:
		return "sort"
	case ModeReplace:
		return "replace"
	case ModeBatch:
		return "batch"
	case ModeMergeInto:
		return "merge-into"
	case ModeCompare:
		return "compare"
	case ModeHistory:
		return "history"
	}
	return "single"
}

// Config holds all the command-line flag values, with defaults taken from
// the config file and environment.
type Config struct {
	// Matching
	Criterion        string
	Pattern          string
	IgnoreCase       bool
	IgnoreWhitespace bool
	ContextSize      int

	// Single document
	Merge  bool
	Select []string
	Yes    bool
	Output string
	Diff   bool
	Buffer bool
	Nvim   bool
	Copy   bool
	Sort   string

	// Find and replace
	Replace string
	With    string
	Regex   bool

	// Batch
	Batch      bool
	Purge      bool
	DryRun     bool
	Workers    int
	MaxOpen    int
	Extensions []string
	LookupDirs []string
	MergeInto  string
	Compare    bool

	// Output and logging
	Report       string
	ReportFormat string
	History      bool
	LogFile      string
	LogLevel     string
	NoAnimation  bool
	ConfigPath   string

	// Args are the positional file arguments.
	Args []string
}

// ParseFlags parses the process arguments.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs defines and parses command-line flags using pflag.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}
	flags := pflag.NewFlagSet("ddup", pflag.ContinueOnError)

	// Define flags
	flags.StringVarP(&cfg.Criterion, "criterion", "c", "", "Duplicate criterion: exact, case-insensitive, ignore-whitespace, regex or prefix.")
	flags.StringVarP(&cfg.Pattern, "pattern", "p", "", "Regular expression for the regex criterion; capture groups form the comparison key.")
	flags.BoolVarP(&cfg.IgnoreCase, "ignore-case", "i", false, "Compare lines case-insensitively.")
	flags.BoolVarP(&cfg.IgnoreWhitespace, "ignore-whitespace", "w", false, "Ignore all whitespace when comparing lines.")
	flags.IntVarP(&cfg.ContextSize, "context", "C", 0, "Number of lines shown before and after each duplicate.")

	flags.BoolVarP(&cfg.Merge, "merge", "m", false, "Keep the first occurrence of each selected value instead of removing all of them.")
	flags.StringArrayVarP(&cfg.Select, "select", "s", nil, "Select a duplicated value to act on (repeatable). Skips the interactive selection.")
	flags.BoolVarP(&cfg.Yes, "yes", "y", false, "Act on every duplicated value and overwrite FILE without asking.")
	flags.StringVarP(&cfg.Output, "output", "o", "", "Write the result to this file instead of FILE.")
	flags.BoolVarP(&cfg.Diff, "diff", "d", false, "Print a unified diff of the change instead of writing it.")
	flags.BoolVarP(&cfg.Buffer, "buffer", "b", false, "With --nvim, update the buffer without saving it to disk.")
	flags.BoolVar(&cfg.Nvim, "nvim", false, "Write the result into a Neovim buffer for FILE.")
	flags.BoolVar(&cfg.Copy, "copy", false, "Copy the result to the clipboard.")
	flags.StringVar(&cfg.Sort, "sort", "", "Sort lines instead of removing duplicates: alphabetical, length-asc or length-desc.")
	flags.StringVar(&cfg.Replace, "replace", "", "Replace this text in the document instead of removing duplicates.")
	flags.StringVar(&cfg.With, "with", "", "Replacement text for --replace ($1 refers to a capture group with --regex).")
	flags.BoolVar(&cfg.Regex, "regex", false, "Treat --replace as a regular expression.")

	flags.BoolVar(&cfg.Batch, "batch", false, "Remove repeated lines from every FILE (directories and globs are expanded).")
	flags.BoolVar(&cfg.Purge, "purge", false, "In batch mode, remove every occurrence of a duplicated value, including the first.")
	flags.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Report what would change without writing any file.")
	flags.IntVarP(&cfg.Workers, "workers", "j", 0, "Number of files processed in parallel.")
	flags.IntVar(&cfg.MaxOpen, "max-open", 0, "Maximum number of files open at once.")
	flags.StringSliceVarP(&cfg.Extensions, "extension", "e", []string{}, "Only pick up files with these extensions from directories (e.g., 'txt', 'csv').")
	flags.StringSliceVarP(&cfg.LookupDirs, "lookup-dir", "l", []string{}, "Change directory to look for files (default: current directory).")
	flags.StringVar(&cfg.MergeInto, "merge-into", "", "Concatenate every FILE into this file, dropping repeated lines.")
	flags.BoolVar(&cfg.Compare, "compare", false, "Print a unified diff between two files.")

	flags.StringVar(&cfg.Report, "report", "", "Export a duplicate report to this file.")
	flags.StringVar(&cfg.ReportFormat, "report-format", "", "Report format: text, markdown, html, json or yaml (default: from the file extension).")
	flags.BoolVar(&cfg.History, "history", false, "Show the journal of files rewritten by ddup.")
	flags.StringVar(&cfg.LogFile, "log-file", "", "Append an operational log to this file.")
	flags.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn or error.")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
	flags.StringVar(&cfg.ConfigPath, "config", "", "Path to a TOML config file.")

	flags.Usage = func() {
		fmt.Println("Usage: ddup [flags] [FILE...]")
		fmt.Println("\nFind and remove duplicate lines in FILE, stdin (pipe) or the clipboard.")
		fmt.Println("\nExamples:")
		fmt.Println("  ddup notes.txt                  # pick duplicates interactively")
		fmt.Println("  ddup -i -y notes.txt            # case-insensitive, remove all, overwrite")
		fmt.Println("  ddup --batch -e log -j 8 logs/  # keep first occurrences in every .log file")
		fmt.Println("\nFlags:")
		fmt.Print(flags.FlagUsages())
	}
	// Errors are returned to the caller, which prints them.
	flags.SetOutput(io.Discard)

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg.Args = flags.Args()

	defaults, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults(flags, defaults)

	// Normalize extensions
	for i, ext := range cfg.Extensions {
		if len(ext) > 0 && ext[0] != '.' {
			cfg.Extensions[i] = "." + ext
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills every flag the user did not set from the loaded
// configuration.
func (c *Config) applyDefaults(flags *pflag.FlagSet, d config.Config) {
	unset := func(name string) bool { return !flags.Changed(name) }

	if unset("criterion") {
		c.Criterion = d.Criterion
	}
	if unset("pattern") {
		c.Pattern = d.Pattern
	}
	if unset("ignore-case") {
		c.IgnoreCase = d.IgnoreCase
	}
	if unset("ignore-whitespace") {
		c.IgnoreWhitespace = d.IgnoreWhitespace
	}
	if unset("context") {
		c.ContextSize = d.ContextSize
	}
	if unset("workers") {
		c.Workers = d.Batch.Workers
	}
	if unset("max-open") {
		c.MaxOpen = d.Batch.MaxOpenFiles
	}
	if unset("extension") {
		c.Extensions = append([]string{}, d.Batch.Extensions...)
	}
	if unset("purge") {
		c.Purge = d.Batch.Purge
	}
	if unset("log-file") {
		c.LogFile = d.Log.File
	}
	if unset("log-level") {
		c.LogLevel = d.Log.Level
	}
}

// Mode returns the operation the flags ask for.
func (c *Config) Mode() Mode {
	switch {
	case c.History:
		return ModeHistory
	case c.Compare:
		return ModeCompare
	case c.MergeInto != "":
		return ModeMergeInto
	case c.Batch:
		return ModeBatch
	case c.Sort != "":
		return ModeSort
	case c.Replace != "":
		return ModeReplace
	}
	return ModeSingle
}

// MatchCriterion builds the match criterion from the matching flags.
func (c *Config) MatchCriterion() (match.Criterion, error) {
	crit, err := match.ParseKind(c.Criterion)
	if err != nil {
		return match.Criterion{}, err
	}
	crit.Pattern = c.Pattern
	crit.FoldCase = crit.FoldCase || c.IgnoreCase
	crit.IgnoreSpace = crit.IgnoreSpace || c.IgnoreWhitespace
	if _, err := match.Compile(crit); err != nil {
		return match.Criterion{}, err
	}
	return crit, nil
}

// Validate checks flag combinations.
func (c *Config) Validate() error {
	modes := []string{}
	if c.History {
		modes = append(modes, "--history")
	}
	if c.Compare {
		modes = append(modes, "--compare")
	}
	if c.MergeInto != "" {
		modes = append(modes, "--merge-into")
	}
	if c.Batch {
		modes = append(modes, "--batch")
	}
	if c.Sort != "" {
		modes = append(modes, "--sort")
	}
	if c.Replace != "" {
		modes = append(modes, "--replace")
	}
	if len(modes) > 1 {
		return fmt.Errorf("error: %s are mutually exclusive", strings.Join(modes, " and "))
	}

	if c.ContextSize < 0 || c.ContextSize > 100 {
		return fmt.Errorf("error: --context must be between 0 and 100")
	}
	if c.Workers < 1 || c.Workers > 256 {
		return fmt.Errorf("error: --workers must be between 1 and 256")
	}
	if c.MaxOpen < 1 || c.MaxOpen > 4096 {
		return fmt.Errorf("error: --max-open must be between 1 and 4096")
	}
	if _, err := c.MatchCriterion(); err != nil {
		return fmt.Errorf("error: %w", err)
	}
	if c.ReportFormat != "" {
		if _, err := report.ParseFormat(c.ReportFormat); err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}
	if c.Sort != "" {
		if _, err := lines.ParseOrder(c.Sort); err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}
	if c.Replace == "" && (c.With != "" || c.Regex) {
		return fmt.Errorf("error: --with and --regex require --replace")
	}
	if c.Regex {
		if _, err := match.CompilePattern(c.Replace); err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}

	switch c.Mode() {
	case ModeCompare:
		if len(c.Args) != 2 {
			return fmt.Errorf("error: --compare needs exactly two files")
		}
	case ModeBatch, ModeMergeInto:
		if len(c.Args) == 0 {
			return fmt.Errorf("error: --%s needs at least one file", c.Mode())
		}
	case ModeHistory:
		if len(c.Args) > 0 {
			return fmt.Errorf("error: --history takes no files")
		}
	default:
		if len(c.Args) > 1 {
			return fmt.Errorf("error: only one FILE can be processed at a time (use --batch for several)")
		}
	}

	if c.Yes && len(c.Select) > 0 {
		return fmt.Errorf("error: --yes and --select are mutually exclusive")
	}
	if c.Nvim && c.Output != "" {
		return fmt.Errorf("error: --nvim and --output are mutually exclusive")
	}
	if c.Buffer && !c.Nvim {
		return fmt.Errorf("error: --buffer requires --nvim")
	}
	if c.Nvim && len(c.Args) == 0 {
		switch c.Mode() {
		case ModeSingle, ModeSort, ModeReplace:
			return fmt.Errorf("error: --nvim needs a FILE to open")
		}
	}
	return nil
}
