package utils

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"
)

// ErrPathEscapes is returned by SafeJoin for paths leaving the root.
var ErrPathEscapes = errors.New("path escapes the output directory")

// SafeJoin joins slash-separated parts below root. The result never leaves root.
func SafeJoin(root string, parts ...string) (string, error) {
	rel := path.Join(parts...)
	local := filepath.FromSlash(rel)
	if rel == "" || rel == "." || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, rel)
	}
	return filepath.Join(root, local), nil
}

// EnsureDir creates dir if needed and checks that it is a directory.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	return nil
}

// MatchesRemote reports whether the file at path has the given size and a
// modification time equal to modTime at second precision.
func MatchesRemote(path string, size int64, modTime time.Time) bool {
	if modTime.IsZero() {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() == size &&
		info.ModTime().Truncate(time.Second).Equal(modTime.Truncate(time.Second))
}

func CleanupTempFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to cleanup temporary file %s: %w", path, err)
	}
	return nil
}
