package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/ddup/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Runner is the work the progress program waits on.
type Runner interface {
	Execute() (model.Summary, error)
	SetProgressCallback(cb func(current, total int))
}

// canceller is implemented by runners that can stop early.
type canceller interface {
	Cancel()
}

// stackTracer is implemented by errors that carry a stack trace.
type stackTracer interface {
	StackTrace() []byte
}

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type progressMsg struct {
	current, total int
}

type errorMsg struct{ err error }

// quitMsg ends the program once the runner has returned or the grace period
// after a forced quit has passed.
type quitMsg struct{}

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---
type Model struct {
	runner   Runner
	spinner  spinner.Model
	state    state
	progress progressMsg
	summary  summaryMsg
	err      error
	// stopping is set once the user asked a cancellable runner to stop.
	stopping bool
	// quitting is set by a second interrupt.
	quitting bool

	finished *finishSignal
}

// QuitGrace bounds how long a forced quit waits for the runner to return,
// so files being written finish and the journal is updated.
var QuitGrace = 5 * time.Second

// finishSignal is closed once the runner's Execute has returned.
type finishSignal struct {
	once sync.Once
	ch   chan struct{}
}

func (f *finishSignal) close() {
	f.once.Do(func() { close(f.ch) })
}

func waitFinished(f *finishSignal, grace time.Duration) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-f.ch:
		case <-time.After(grace):
		}
		return quitMsg{}
	}
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

func New(r Runner) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		runner:   r,
		spinner:  s,
		state:    stateProcessing,
		finished: &finishSignal{ch: make(chan struct{})},
	}
}

// SetProgram routes progress updates from the runner into p.
func (m Model) SetProgram(p *tea.Program) {
	m.runner.SetProgressCallback(func(current, total int) {
		p.Send(progressMsg{current: current, total: total})
	})
}

// Err returns the error the runner failed with, if any.
func (m Model) Err() error {
	return m.err
}

// Summary returns the runner's result once it has finished.
func (m Model) Summary() model.Summary {
	return m.summary.Summary
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			c, ok := m.runner.(canceller)
			if !ok || m.state != stateProcessing {
				return m, tea.Quit
			}
			if m.quitting {
				return m, nil
			}
			if m.stopping {
				// Files already being written still finish within the grace.
				m.quitting = true
				return m, waitFinished(m.finished, QuitGrace)
			}
			// Let the files in progress finish and report what was done.
			c.Cancel()
			m.stopping = true
			return m, nil
		}

	case quitMsg:
		return m, tea.Quit

	case progressMsg:
		m.progress = msg
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		if m.quitting {
			return fmt.Sprintf("%s Finishing files in progress...", m.spinner.View())
		}
		if m.stopping {
			return fmt.Sprintf("%s Stopping... %s", m.spinner.View(),
				faintStyle.Render("press ctrl+c again to quit now"))
		}
		if m.progress.total > 0 {
			return fmt.Sprintf("%s Processing... %s", m.spinner.View(),
				faintStyle.Render(fmt.Sprintf("[%d/%d]", m.progress.current, m.progress.total)))
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	case stateSummary:
		return RenderSummary(m.summary.Summary)
	default:
		return ""
	}
}

// RenderSummary formats a summary for the terminal.
func RenderSummary(s model.Summary) string {
	var b strings.Builder

	if s.Message != "" {
		b.WriteString(headerStyle.Render(s.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	if s.Batch != nil {
		hasContent = renderBatch(&b, s.Batch)
	} else {
		hasContent = renderSingle(&b, s)
	}

	if !hasContent && s.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func renderSingle(b *strings.Builder, s model.Summary) bool {
	var line string
	switch s.Action {
	case "remove":
		line = fmt.Sprintf("Removed %d line(s) of %d value(s):", s.Removed, len(s.Affected))
	case "merge":
		line = fmt.Sprintf("Merged %d repeated line(s) of %d value(s):", s.Merged, len(s.Affected))
	case "sort":
		line = fmt.Sprintf("Sorted %d line(s).", s.Lines)
	case "replace":
		line = fmt.Sprintf("Replaced %d occurrence(s).", s.Replaced)
	default:
		return false
	}
	b.WriteString(successStyle.Render(line))
	b.WriteString("\n")
	for _, v := range s.Affected {
		b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(fmt.Sprintf("%q", v))))
	}
	if s.Written != "" {
		b.WriteString(faintStyle.Render("Written to " + s.Written))
		b.WriteString("\n")
	}
	return true
}

func renderBatch(b *strings.Builder, r *model.BatchReport) bool {
	if len(r.Items) == 0 {
		return false
	}
	if r.DryRun {
		b.WriteString(warningStyle.Render("Dry run: no files were written."))
		b.WriteString("\n")
	}

	sections := []struct {
		title  string
		style  lipgloss.Style
		status model.Status
	}{
		{"Modified:", successStyle, model.StatusModified},
		{"Failed:", errorStyle, model.StatusFailed},
	}
	for _, sec := range sections {
		var rows []string
		for _, it := range r.Items {
			if it.Status != sec.status {
				continue
			}
			if it.Status == model.StatusFailed {
				rows = append(rows, fmt.Sprintf("  %s %s\n", pathStyle.Render(it.Path), faintStyle.Render(it.Reason)))
			} else {
				rows = append(rows, fmt.Sprintf("  %s %s\n", pathStyle.Render(it.Path), faintStyle.Render(fmt.Sprintf("(-%d)", it.Removed))))
			}
		}
		if len(rows) == 0 {
			continue
		}
		b.WriteString(sec.style.Render(sec.title))
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(row)
		}
	}

	sum := r.Summary()
	b.WriteString(faintStyle.Render(fmt.Sprintf("%d file(s): %d modified, %d unchanged, %d failed; %d line(s) removed.",
		sum.Total, sum.Modified, sum.Unchanged, sum.Failed, sum.Removed)))
	b.WriteString("\n")
	return true
}

func (m Model) runApp() tea.Msg {
	defer m.finished.close()
	summary, err := m.runner.Execute()
	if err != nil {
		// Check for detailed error to print stack
		var st stackTracer
		if errors.As(err, &st) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", st.StackTrace())
		}
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}
