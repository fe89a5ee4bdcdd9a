package utils

import (
	"errors"
	"strings"

	"github.com/sourcequal/codequal/internal/lang"
)

// ErrInvalidPath flags a repo-relative file path that is empty, too long,
// or carries directory-traversal or null-byte characters.
var ErrInvalidPath = errors.New("invalid file path")

// ValidateID reports whether id is a plausible Repository/File/Symbol
// identifier: non-empty, bounded length, and restricted to the alphanumeric
// + hyphen/underscore charset every UUID and database primary key in this
// system uses.
func ValidateID(id string) bool {
	if len(id) < 3 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ValidateFilePath rejects a repo-relative path before it reaches a
// Storage lookup: no null bytes, no "..", no leading "~", bounded length.
func ValidateFilePath(path string) bool {
	if path == "" || len(path) > 1024 {
		return false
	}
	for _, bad := range []string{"\x00", "..", "~"} {
		if strings.Contains(path, bad) {
			return false
		}
	}
	return true
}

// ValidatePageParams clamps page/size query parameters to the bounds
// ListSymbols' in-memory pagination enforces.
func ValidatePageParams(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	if size > 500 {
		size = 500
	}
	return page, size
}

// ValidateLanguage reports whether language is one of internal/lang's
// supported languages, or empty (meaning "any language").
func ValidateLanguage(language string) bool {
	if language == "" {
		return true
	}
	for _, l := range lang.AllLanguages() {
		if strings.EqualFold(language, string(l)) {
			return true
		}
	}
	return false
}
