package util

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeStemChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SafeStem strips the directory and extension from name and replaces every
// run of characters outside [a-zA-Z0-9_-] with a single underscore
func SafeStem(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "video"
	}
	return unsafeStemChars.ReplaceAllString(stem, "_")
}
