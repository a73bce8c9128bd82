// Package blob keeps uploaded attachments as plain files in one directory.
package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrInvalidName is returned for names that do not reduce to a plain,
	// visible file name.
	ErrInvalidName = errors.New("invalid blob name")
	// ErrNotFound is returned by Get for a missing blob.
	ErrNotFound = errors.New("blob not found")
)

// Store is a directory of blobs keyed by file name. A second Put with the
// same name overwrites the first.
type Store struct {
	dir string
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// CleanName reduces name to its last path element and rejects empty,
// relative and hidden names.
func CleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	switch {
	case base == "", base == ".", base == "..", base == "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.HasPrefix(base, "."):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// Put writes data under name and returns the cleaned name it was stored as.
// The file is written to a temporary name first and then renamed, so a
// concurrent Get sees either the old or the new content.
func (s *Store) Put(name string, data []byte) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, clean)); err != nil {
		return "", fmt.Errorf("store blob %s: %w", clean, err)
	}
	return clean, nil
}

// Get returns the content stored under name.
func (s *Store) Get(name string) ([]byte, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", clean, err)
	}
	return data, nil
}

// List returns the stored blob names in lexical order. The result is never
// nil.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Sniff returns the MIME type detected from the leading bytes of data.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}
