package tui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/ddup/internal/detect"
	"github.com/sokinpui/ddup/internal/match"
	"github.com/sokinpui/ddup/internal/reconcile"
)

var (
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
)

// Selector asks the user which duplicated values to act on with a checklist.
// Every value starts checked. Cancelling yields an empty selection.
type Selector struct {
	// Classifier keys the selection so equivalent lines are matched too.
	Classifier *match.Classifier
	// Merge is the initial state of the merge toggle and, after Select,
	// the user's choice.
	Merge bool

	Input  io.Reader
	Output io.Writer
	// UseTTY reads keys from the controlling terminal, for when stdin
	// carries the document.
	UseTTY bool
}

// MergeRequested reports whether the user asked to merge rather than remove.
func (s *Selector) MergeRequested() bool {
	return s.Merge
}

// Select runs the checklist and returns the checked values.
func (s *Selector) Select(occ []detect.Occurrence) (reconcile.Selection, error) {
	if len(occ) == 0 {
		return reconcile.Selection{}, nil
	}

	var opts []tea.ProgramOption
	switch {
	case s.Input != nil:
		opts = append(opts, tea.WithInput(s.Input))
	case s.UseTTY:
		opts = append(opts, tea.WithInputTTY())
	}
	if s.Output != nil {
		opts = append(opts, tea.WithOutput(s.Output))
	}

	final, err := tea.NewProgram(newChecklist(occ, s.Merge), opts...).Run()
	if err != nil {
		return reconcile.Selection{}, fmt.Errorf("selection aborted: %w", err)
	}
	c := final.(checklist)
	s.Merge = c.merge
	return reconcile.NewSelectionWith(s.Classifier, c.chosen()...), nil
}

// checklist is the bubbletea model behind Selector.
type checklist struct {
	items     []detect.Occurrence
	checked   []bool
	cursor    int
	merge     bool
	confirmed bool
	cancelled bool
}

func newChecklist(occ []detect.Occurrence, merge bool) checklist {
	checked := make([]bool, len(occ))
	for i := range checked {
		checked[i] = true
	}
	return checklist{items: occ, checked: checked, merge: merge}
}

// chosen returns the checked values, or none if the list was cancelled.
func (c checklist) chosen() []string {
	if !c.confirmed {
		return nil
	}
	var out []string
	for i, it := range c.items {
		if c.checked[i] {
			out = append(out, it.Value)
		}
	}
	return out
}

func (c checklist) Init() tea.Cmd {
	return nil
}

func (c checklist) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil
	}

	switch key.String() {
	case "ctrl+c", "esc", "q":
		c.cancelled = true
		return c, tea.Quit
	case "enter":
		c.confirmed = true
		return c, tea.Quit
	case "up", "k":
		if c.cursor > 0 {
			c.cursor--
		}
	case "down", "j":
		if c.cursor < len(c.items)-1 {
			c.cursor++
		}
	case " ", "space", "x":
		c.checked = toggled(c.checked, c.cursor)
	case "a":
		c.checked = filled(len(c.items), true)
	case "n":
		c.checked = filled(len(c.items), false)
	case "m":
		c.merge = !c.merge
	}
	return c, nil
}

func toggled(in []bool, i int) []bool {
	out := append([]bool(nil), in...)
	out[i] = !out[i]
	return out
}

func filled(n int, v bool) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (c checklist) View() string {
	if c.confirmed || c.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Confirm duplicate removal"))
	b.WriteString("\n\n")

	for i, it := range c.items {
		pointer := "  "
		if i == c.cursor {
			pointer = cursorStyle.Render("> ")
		}
		box := "[ ]"
		if c.checked[i] {
			box = selectedStyle.Render("[x]")
		}
		b.WriteString(fmt.Sprintf("%s%s %q %s\n", pointer, box, it.Value,
			faintStyle.Render(fmt.Sprintf("×%d", it.Count()+1))))
	}

	action := "remove every occurrence"
	if c.merge {
		action = "merge (keep first occurrence)"
	}
	b.WriteString("\n")
	b.WriteString(faintStyle.Render("action: " + action))
	b.WriteString("\n")
	b.WriteString(faintStyle.Render("space toggle • a select all • n deselect all • m merge • enter confirm • q cancel"))
	b.WriteString("\n")
	return b.String()
}
