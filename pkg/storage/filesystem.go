// Package storage provides the raw file operations used by the bundle tooling.
//
// Writes go through a temp-file + rename sequence so that a manifest or a
// signature on disk is either the previous version or the complete new one,
// never a truncated mix of both.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmptyPath is returned when an operation is given an empty path.
var ErrEmptyPath = errors.New("path cannot be empty")

// ReadFile reads the whole file at path.
//
// Parameters:
//   - path: file to read
//
// Returns the file contents, ErrEmptyPath for an empty path, or the
// underlying error wrapped with the path (os.ErrNotExist stays matchable).
func ReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// AtomicWriteFile writes data to path atomically.
//
// The data is written to a temporary file in the target directory, synced,
// given perm and renamed over path. On any error the temporary file is
// removed and an existing file at path is left untouched.
//
// Parameters:
//   - path: destination file path; its directory must exist
//   - data: bytes to write
//   - perm: file permissions (e.g., 0644)
//
// Returns error if any step fails.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	// Create the temp file next to the target, since rename is only atomic
	// within one file system.
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on every error path.
	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// Sync so the data is on disk before the rename makes it visible.
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// Atomic rename: readers see either the old file or the new one.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// SafeRemove removes path, treating a missing file as success.
//
// Parameters:
//   - path: file to remove
//
// Returns ErrEmptyPath for an empty path, or the removal error for anything
// other than a missing file.
func SafeRemove(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}
