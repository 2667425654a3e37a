package source

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/ddup/internal/fs"
	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/ui"
)

const (
	// NameStdin and NameClipboard label documents that do not come from a file.
	NameStdin     = "<stdin>"
	NameClipboard = "<clipboard>"
)

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	Stdin          io.Reader
	IsPiped        func() bool
	ReadClipboard  func() (string, error)
	WriteClipboard func(string) error
	Files          fs.Files
}

// New creates a SourceProvider bound to the process stdin and the system
// clipboard.
func New() *SourceProvider {
	return &SourceProvider{
		Stdin:          os.Stdin,
		IsPiped:        stdinIsPiped,
		ReadClipboard:  clipboard.ReadAll,
		WriteClipboard: clipboard.WriteAll,
	}
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// Load reads the document at ref, or from stdin (if piped) or the clipboard
// when ref is empty. The returned name labels the document in output.
func (sp *SourceProvider) Load(ref string) (*lines.Store, string, error) {
	if ref != "" {
		store, err := sp.Files.ReadLines(ref)
		return store, ref, err
	}

	content, name, err := sp.GetContent()
	if err != nil {
		return nil, name, err
	}
	if !utf8.ValidString(content) {
		return nil, name, &fs.IOError{Path: name, Op: "read", Err: fs.ErrDecode}
	}
	return lines.Parse(content), name, nil
}

// GetContent retrieves content from stdin (if piped) or the clipboard.
func (sp *SourceProvider) GetContent() (string, string, error) {
	if sp.IsPiped != nil && sp.IsPiped() {
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(sp.Stdin)
		if err != nil {
			return "", NameStdin, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), NameStdin, nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := sp.ReadClipboard()
	if err != nil {
		return "", NameClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", NameClipboard, nil
	}
	return content, NameClipboard, nil
}

// Copy places the document on the clipboard.
func (sp *SourceProvider) Copy(store *lines.Store) error {
	if err := sp.WriteClipboard(store.Text()); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}
