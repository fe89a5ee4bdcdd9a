// utils/path.go - process data-directory layout.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// RootDir, once DefaultRootDir has run, is the process's base data
// directory: everything else (logs, cache, uploads, vector index) nests
// under it unless overridden individually via config/env.
var RootDir = "./.codequal"

// DefaultRootDir resolves the XDG-style base directory for appName's data:
// $XDG_DATA_HOME/<appName> if set, else ~/.<appName>. The directory is
// created if missing.
func DefaultRootDir(appName string) (string, error) {
	var root string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		root = filepath.Join(xdg, appName)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		root = filepath.Join(home, "."+appName)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", err
	}
	RootDir = root
	return root, nil
}

// Subdir joins name onto root, creating it if missing. Used for the
// logs/, cache/, uploads/, and vectors/ subdirectories cmd/codequal derives
// from its data directory when the caller hasn't overridden them.
func Subdir(root, name string) (string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return "", fmt.Errorf("root path %s does not exist", root)
	}
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}
