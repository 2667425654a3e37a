package nvim

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"

	"github.com/sokinpui/ddup/internal/lines"
)

const (
	undoDir = "~/.local/state/nvim/undo/"
)

// Document is a reconciled document to place into a buffer.
type Document struct {
	Path  string
	Store *lines.Store
}

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// New creates a new Neovim manager, connecting to an existing instance
// or starting a new headless one.
func New() (*Manager, error) {
	// Try to connect to a running instance first.
	for _, env := range []string{"NVIM", "NVIM_LISTEN_ADDRESS"} {
		if addr := os.Getenv(env); addr != "" {
			v, err := nvim.Dial(addr)
			if err == nil {
				return &Manager{nvim: v}, nil
			}
		}
	}

	// If that fails, start a temporary headless instance.
	tmpDir, err := os.MkdirTemp("", "ddup-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Manager{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	m.configureTempInstance()
	return m, nil
}

// configureTempInstance enables a persistent undofile, so a rewrite done
// through the buffer can be undone from any later Neovim session.
func (m *Manager) configureTempInstance() {
	b := m.nvim.NewBatch()
	for _, c := range tempInstanceCommands(expandHome(undoDir)) {
		b.Command(c)
	}
	// Non-fatal: the buffer is still written without an undofile.
	_ = b.Execute()
}

func tempInstanceCommands(dir string) []string {
	os.MkdirAll(dir, 0755)
	return []string{
		"set undofile",
		fmt.Sprintf("set undodir=%s", dir),
		"set noswapfile",
	}
}

func expandHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return strings.Replace(p, "~", home, 1)
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

// processSequentially runs processFn over items in order and splits the
// paths by outcome.
func processSequentially[T any](
	items []T,
	processFn func(item T) (path string, err error),
	progressCb func(int),
) (succeeded []string, failed map[string]error) {
	for i, item := range items {
		path, err := processFn(item)
		if err == nil {
			succeeded = append(succeeded, path)
		} else {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[path] = err
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}

// ApplyDocuments replaces the buffer content of each document's file.
// Buffers are left modified; call SaveAllBuffers to write them.
func (m *Manager) ApplyDocuments(docs []Document, progressCb func(int)) (updated []string, failed map[string]error) {
	processFn := func(doc Document) (string, error) {
		return doc.Path, m.updateBuffer(doc.Path, doc.Store)
	}
	return processSequentially(docs, processFn, progressCb)
}

func (m *Manager) updateBuffer(filePath string, store *lines.Store) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return err
	}

	b := m.nvim.NewBatch()
	b.Command(fmt.Sprintf("edit %s", escapePath(absPath)))
	b.SetBufferLines(0, 0, -1, true, bufferLines(store))
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to update buffer for %s: %w", filePath, err)
	}
	return nil
}

// bufferLines converts a store into the line slices Neovim expects. An empty
// document is a buffer with one empty line.
func bufferLines(store *lines.Store) [][]byte {
	vals := store.Values()
	out := make([][]byte, len(vals))
	for i, s := range vals {
		out[i] = []byte(s)
	}
	return out
}

// escapePath escapes characters Ex commands treat specially in file names.
func escapePath(p string) string {
	return strings.NewReplacer(" ", `\ `, "%", `\%`, "#", `\#`, "|", `\|`).Replace(p)
}

// SaveAllBuffers writes all modified buffers to disk.
func (m *Manager) SaveAllBuffers() error {
	if err := m.nvim.Command("wa!"); err != nil {
		return fmt.Errorf("failed to save buffers: %w", err)
	}
	return nil
}
