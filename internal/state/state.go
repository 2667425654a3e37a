package state

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/model"
)

const (
	stateDirName  = ".ddup"
	stateFileName = "state.ddup"
)

// Operation records one rewritten file.
type Operation struct {
	Path       string
	Removed    int
	HashBefore string // SHA256 of the content before the rewrite
	HashAfter  string // SHA256 of the content after the rewrite
}

// HistoryEntry represents one run of the tool that changed files.
type HistoryEntry struct {
	ID         string
	Timestamp  int64
	Action     string
	Criterion  string
	Operations []Operation
}

// Time returns the entry timestamp as local time.
func (e HistoryEntry) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// Manager handles the journal file. The journal records what was rewritten;
// it never stores file content.
type Manager struct {
	statePath string
	history   []HistoryEntry
	StateDir  string
}

// findGitRoot finds the root of the git repository.
func findGitRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// New loads the journal at the git root, or the working directory outside a
// repository.
func New() (*Manager, error) {
	rootDir, err := findGitRoot()
	if err != nil {
		rootDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
	}
	return NewAt(rootDir)
}

// NewAt loads the journal kept under rootDir.
func NewAt(rootDir string) (*Manager, error) {
	stateDir := filepath.Join(rootDir, stateDirName)
	m := &Manager{
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the journal file location.
func (m *Manager) Path() string {
	return m.statePath
}

// History returns the recorded entries, oldest first.
func (m *Manager) History() []HistoryEntry {
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		entry, err := parseEntry(strings.Split(block, "\n"))
		if err != nil {
			return fmt.Errorf("invalid state file %s: %w", m.statePath, err)
		}
		m.history = append(m.history, entry)
	}
	return nil
}

// parseEntry reads one block: id, timestamp, action and criterion, then four
// lines per operation.
func parseEntry(lines []string) (HistoryEntry, error) {
	if len(lines) < 4 {
		return HistoryEntry{}, fmt.Errorf("incomplete entry header")
	}
	ts, err := strconv.ParseInt(lines[1], 10, 64)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("could not parse timestamp from '%s': %w", lines[1], err)
	}
	entry := HistoryEntry{ID: lines[0], Timestamp: ts, Action: lines[2], Criterion: lines[3]}

	opLines := lines[4:]
	for i := 0; i < len(opLines); i += 4 {
		if i+4 > len(opLines) {
			return HistoryEntry{}, fmt.Errorf("incomplete operation record in entry %s", entry.ID)
		}
		removed, err := strconv.Atoi(opLines[i+1])
		if err != nil {
			return HistoryEntry{}, fmt.Errorf("could not parse removed count for %s: %w", opLines[i], err)
		}
		entry.Operations = append(entry.Operations, Operation{
			Path:       opLines[i],
			Removed:    removed,
			HashBefore: opLines[i+2],
			HashAfter:  opLines[i+3],
		})
	}
	return entry, nil
}

func (m *Manager) save() error {
	var blocks []string
	for _, entry := range m.history {
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n%d\n%s\n%s", entry.ID, entry.Timestamp, entry.Action, entry.Criterion)
		for _, op := range entry.Operations {
			fmt.Fprintf(&b, "\n%s\n%d\n%s\n%s", op.Path, op.Removed, op.HashBefore, op.HashAfter)
		}
		blocks = append(blocks, b.String())
	}
	content := strings.Join(blocks, "\n\n") + "\n"

	if err := os.MkdirAll(m.StateDir, 0755); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}
	if err := os.WriteFile(m.statePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("could not write state file: %w", err)
	}
	return nil
}

// Write appends a history entry. Entries without operations are not
// recorded. An empty id gets a fresh one.
func (m *Manager) Write(id, action, criterion string, operations []Operation) (HistoryEntry, error) {
	if len(operations) == 0 {
		return HistoryEntry{}, nil
	}
	if id == "" {
		id = uuid.NewString()
	}
	entry := HistoryEntry{
		ID:         id,
		Timestamp:  time.Now().UTC().Unix(),
		Action:     action,
		Criterion:  sanitize(criterion),
		Operations: operations,
	}
	m.history = append(m.history, entry)
	if err := m.save(); err != nil {
		m.history = m.history[:len(m.history)-1]
		return HistoryEntry{}, err
	}
	return entry, nil
}

// sanitize keeps a free-form field on a single line of the block format.
func sanitize(s string) string {
	if s == "" {
		return "-"
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// OperationsFromReport lists the files a batch rewrote. Dry runs rewrite
// nothing.
func OperationsFromReport(r *model.BatchReport) []Operation {
	if r == nil || r.DryRun {
		return nil
	}
	var ops []Operation
	for _, it := range r.Items {
		if it.Status != model.StatusModified || it.HashAfter == "" {
			continue
		}
		ops = append(ops, Operation{
			Path:       absPath(it.Path),
			Removed:    it.Removed,
			HashBefore: it.HashBefore,
			HashAfter:  it.HashAfter,
		})
	}
	return ops
}

// NewOperation records a single rewritten file.
func NewOperation(path string, removed int, before, after string) Operation {
	return Operation{Path: absPath(path), Removed: removed, HashBefore: before, HashAfter: after}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Changed reports whether the file at op.Path no longer has the content the
// journal recorded after the rewrite.
func Changed(op Operation) (bool, error) {
	hash, err := fs.GetFileSHA256(op.Path)
	if err != nil {
		return false, err
	}
	return hash != op.HashAfter, nil
}
