// Package fsutil provides common filesystem utility functions
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirExists checks if a path exists and is a directory
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CheckWritable reports why files cannot be created in the directory at
// path, or nil if they can
func CheckWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("does not exist")
		}
		return fmt.Errorf("failed to check directory: %w", err)
	}
	if !info.IsDir() {
		return errors.New("exists but is not a directory")
	}

	tempFile := filepath.Join(path, ".write_test")
	defer func() {
		_ = os.Remove(tempFile) // Ignore error - file may not exist
	}()

	file, err := os.Create(tempFile) // #nosec G304 - tempFile path is built from a validated directory
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_ = file.Close() // Ignore error - file operation completed
	return nil
}

// NearestExisting walks up from path to the closest path that exists.
// It returns the filesystem root if nothing along the way does.
func NearestExisting(path string) string {
	path = filepath.Clean(path)
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// WriteFileAtomic writes data to a sibling temp file and renames it over
// path, so readers never observe a partial file
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile) // cleanup on error
		return fmt.Errorf("failed to atomic rename: %w", err)
	}
	return nil
}
