// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package store

import (
	"fmt"
	"strings"
)

// maxNameLength is the maximum length allowed for a username or filename.
const maxNameLength = 255

// validateComponent checks that name is safe to use as a single path
// component (a username directory or a flat filename): no separators, no
// traversal, no hidden-file leading dot, bounded length.
func validateComponent(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%s exceeds max length %d", fieldName, maxNameLength)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%s contains a path separator", fieldName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%s contains a null byte", fieldName)
	}
	if name == "." || name == ".." || strings.HasPrefix(name, "..") {
		return fmt.Errorf("%s contains path traversal", fieldName)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%s starts with a dot", fieldName)
	}
	return nil
}

// ValidateUsername validates a username for use as a directory component.
func ValidateUsername(username string) error {
	return validateComponent(username, "username")
}

// ValidateFilename validates a filename for use as a flat basename: the
// sync directory has no subdirectories, so any separator is rejected.
func ValidateFilename(filename string) error {
	return validateComponent(filename, "filename")
}
