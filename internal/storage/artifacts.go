package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxNameBytes is the common file name limit of Linux and macOS filesystems.
const maxNameBytes = 255

// Workspace owns the downloads directory: inbound photos and generated
// policy files live there until they are delivered.
type Workspace struct {
	dir string
}

func NewWorkspace(dir string) (*Workspace, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: downloads dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create downloads dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// TempPath returns a fresh path <prefix>_<uuid><ext> inside the workspace.
func (w *Workspace) TempPath(prefix, ext string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s%s", sanitize(prefix), uuid.NewString(), ext))
}

// WriteText writes content to name inside the workspace and returns the path.
func (w *Workspace) WriteText(name, content string) (string, error) {
	name = sanitize(name)
	if name == "" {
		return "", errors.New("storage: file name is required")
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", name, err)
	}
	return path, nil
}

// Remove deletes path. A file that is already gone is not an error.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove: %w", err)
	}
	return nil
}

// sanitize keeps names inside the workspace, free of separators and within
// maxNameBytes. Long names lose runes from the end of the stem; the
// extension is kept.
func sanitize(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		case ' ':
			return '_'
		}
		return r
	}, name)
	if len(name) <= maxNameBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	for len(stem)+len(ext) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(stem)
		stem = stem[:len(stem)-size]
	}
	return stem + ext
}
