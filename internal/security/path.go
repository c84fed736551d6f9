package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath validates that a file path is safe and doesn't contain
// directory traversal attempts. Absolute paths are allowed; callers that need
// to confine access to a directory use ValidateFilePathWithBase.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Clean the path to resolve any .. or . components
	cleanPath := filepath.Clean(path)

	// Check for directory traversal attempts that survive cleaning
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	return nil
}

// ValidateFilePathWithBase validates a file path against a base directory.
// Relative paths are resolved against the base; absolute paths must already
// lie within it.
func ValidateFilePathWithBase(path, baseDir string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}

	cleanBase := filepath.Clean(baseDir)

	var cleanPath string
	if filepath.IsAbs(path) {
		cleanPath = filepath.Clean(path)
	} else {
		cleanPath = filepath.Clean(filepath.Join(cleanBase, path))
	}

	// Ensure the resolved path is still within the base directory
	if cleanPath != cleanBase && !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}
