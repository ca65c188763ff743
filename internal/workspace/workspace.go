// Package workspace persists run artifacts (generated code, tests,
// documentation) under an output directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Workspace writes artifacts beneath a single root directory.
type Workspace struct {
	root string
}

// New creates the workspace root if needed.
func New(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %s: %w", root, err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Save writes content as root/subdir/filename and returns the full path.
func (w *Workspace) Save(subdir, filename, content string) (string, error) {
	dir := w.root
	if subdir != "" {
		dir = filepath.Join(w.root, subdir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// TempDir creates a scratch directory for a single verification pass.
// The caller owns cleanup.
func (w *Workspace) TempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp(w.root, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	return dir, nil
}

const maxFileNameStem = 48

// SafeFileName derives a filesystem-safe name from a task description:
// non-alphanumeric runes become underscores, the stem is lowercased and
// truncated, and ext is appended.
func SafeFileName(task, ext string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(task) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		stem = "artifact"
	}
	if len(stem) > maxFileNameStem {
		stem = stem[:maxFileNameStem]
	}
	return stem + ext
}
