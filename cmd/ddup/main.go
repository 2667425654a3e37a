package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/sokinpui/ddup/cli"
	"github.com/sokinpui/ddup/ddup"
	"github.com/sokinpui/ddup/internal/tui"
	"github.com/sokinpui/ddup/internal/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	app, err := ddup.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer app.Close()

	// Long multi-file runs get the progress program. Everything else, and
	// any run whose status output is not a terminal, prints plainly.
	mode := cfg.Mode()
	multiFile := mode == cli.ModeBatch || mode == cli.ModeMergeInto
	if multiFile && !cfg.NoAnimation && isatty.IsTerminal(os.Stderr.Fd()) {
		return runTUI(app)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.SetContext(ctx)

	var bar *ui.ProgressBar
	if mode == cli.ModeBatch {
		app.SetProgressCallback(func(current, total int) {
			if bar == nil {
				bar = ui.NewProgressBar(total, "Processing")
				bar.Start()
			}
			bar.Set(current)
		})
	}

	summary, err := app.Execute()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		ui.Error("Error: %v", err)
		var de *ddup.DetailedError
		if errors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", de.StackTrace())
		}
		return 1
	}
	ui.PrintSummary(summary)
	return 0
}

func runTUI(app *ddup.App) int {
	m := tui.New(app)
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	m.SetProgram(p)

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	if fm, ok := final.(tui.Model); ok && fm.Err() != nil {
		return 1
	}
	return 0
}
