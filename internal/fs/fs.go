package fs

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sokinpui/ddup/internal/lines"
	"github.com/sokinpui/ddup/internal/ui"
)

// ErrDecode is wrapped by IOError when a file is not valid UTF-8 text.
var ErrDecode = errors.New("file is not valid UTF-8 text")

// IOError records a failed read or write of a single file.
type IOError struct {
	Path string
	Op   string // "read" or "write"
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Files reads and writes documents on the local filesystem.
type Files struct{}

// ReadLines loads ref into a Store.
func (Files) ReadLines(ref string) (*lines.Store, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, &IOError{Path: ref, Op: "read", Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &IOError{Path: ref, Op: "read", Err: ErrDecode}
	}
	return lines.Parse(string(data)), nil
}

// WriteLines replaces ref with the content of store. The content is written
// to a temporary file in the same directory and renamed over ref, so a
// failure never leaves a partially written file behind.
func (Files) WriteLines(ref string, store *lines.Store) error {
	if err := writeAtomic(ref, store.Text()); err != nil {
		return &IOError{Path: ref, Op: "write", Err: err}
	}
	return nil
}

func writeAtomic(dest, content string) error {
	perm := os.FileMode(0644)
	if info, err := os.Stat(dest); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".ddup-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if _, err := io.WriteString(bw, content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// GetFileSHA256 returns the hex SHA-256 digest of a file's content.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashText returns the hex SHA-256 digest of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// PathResolver finds absolute paths for files.
type PathResolver struct {
	lookupDirs []string
}

// NewPathResolver creates a new PathResolver. With no lookup directories the
// current working directory is used.
func NewPathResolver(lookupDirs []string) *PathResolver {
	if len(lookupDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			// This is unlikely to fail, but if it does, it's a critical error.
			panic(fmt.Sprintf("could not get current working directory: %v", err))
		}
		return &PathResolver{lookupDirs: []string{wd}}
	}

	absDirs := make([]string, 0, len(lookupDirs))
	for _, dir := range lookupDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			ui.Warning("Invalid lookup directory '%s', ignoring: %v", dir, err)
			continue
		}
		absDirs = append(absDirs, abs)
	}
	return &PathResolver{lookupDirs: absDirs}
}

// Resolve finds an absolute path, assuming a new file in the first lookup
// directory if it doesn't exist.
func (r *PathResolver) Resolve(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	if existing := r.ResolveExisting(relativePath); existing != "" {
		return existing
	}
	return filepath.Join(r.lookupDirs[0], relativePath)
}

// ResolveExisting finds an absolute path only if the file exists.
func (r *PathResolver) ResolveExisting(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		if _, err := os.Stat(relativePath); err == nil {
			return relativePath
		}
		return ""
	}
	for _, dir := range r.lookupDirs {
		absPath := filepath.Join(dir, relativePath)
		if _, err := os.Stat(absPath); err == nil {
			return absPath
		}
	}
	return ""
}

// ExpandRefs turns command-line arguments into a list of file references.
// Glob patterns are expanded, directories are walked recursively and
// filtered by extension, and plain paths are kept as given even when they
// do not exist so the batch can report them as failed. Each file appears once,
// at the position of its first mention.
func (r *PathResolver) ExpandRefs(args []string, extensions []string) ([]string, error) {
	var refs []string
	seen := make(map[string]struct{})
	add := func(p string) {
		abs := r.Resolve(p)
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		refs = append(refs, abs)
	}

	for _, arg := range args {
		if hasGlobMeta(arg) {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && info.IsDir() {
					continue
				}
				if HasAllowedExtension(m, extensions) {
					add(m)
				}
			}
			continue
		}

		abs := r.Resolve(arg)
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			add(arg)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if HasAllowedExtension(path, extensions) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return refs, nil
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// HasAllowedExtension reports whether path matches one of extensions.
// An empty list allows everything.
func HasAllowedExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowedExt := range extensions {
		if ext == allowedExt {
			return true
		}
	}
	return false
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory '%s': %w", dir, err)
	}
	return nil
}

// Relativize converts absolute paths to paths relative to the working
// directory for cleaner display, falling back to the input.
func Relativize(paths ...string) []string {
	wd, err := os.Getwd()
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p
		if err != nil || !filepath.IsAbs(p) {
			continue
		}
		if rel, rerr := filepath.Rel(wd, p); rerr == nil {
			out[i] = rel
		}
	}
	return out
}
