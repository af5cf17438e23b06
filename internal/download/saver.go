// Package download persists generated documents as named files.
package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// maxAttempts bounds the " (n)" suffix search for a free file name.
const maxAttempts = 1000

// Saver writes byte blobs into a directory. A blob is either written whole or
// not at all; existing files are never overwritten.
type Saver struct {
	dir string
}

// NewSaver creates a saver rooted at dir.
func NewSaver(dir string) *Saver {
	return &Saver{dir: dir}
}

// Dir returns the target directory.
func (s *Saver) Dir() string { return s.dir }

// Save writes data under a sanitized form of name and returns the final path.
func (s *Saver) Save(ctx context.Context, name string, data []byte) (string, error) {
	clean := SanitizeFileName(name)
	if clean == "" {
		return "", fmt.Errorf("download: empty file name")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("download: ensure dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".download-*.part")
	if err != nil {
		return "", fmt.Errorf("download: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("download: write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("download: close %s: %w", clean, err)
	}

	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	for i := 0; i < maxAttempts; i++ {
		candidate := clean
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		target := filepath.Join(s.dir, candidate)
		// Link fails when target exists, so concurrent saves never share a name.
		if err := os.Link(tmpName, target); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("download: commit %s: %w", candidate, err)
		}
		return target, nil
	}
	return "", fmt.Errorf("download: no free file name for %s", clean)
}

// SanitizeFileName strips path separators and control characters so an
// exercise name can be used as a file name.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ". ")
	return out
}
