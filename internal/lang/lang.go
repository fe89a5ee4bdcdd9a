// Package lang is LanguageDetector (spec §4.C): it decides which of the
// four supported languages a source file belongs to, adapted from the
// teacher's tree-sitter parser registry (pkg/codegraph/lang) down to the
// language set this pipeline actually analyses.
package lang

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Language is one of the four languages the parser registry supports.
type Language string

const (
	Python     Language = "python"
	C          Language = "c"
	COBOL      Language = "cobol"
	Assembly   Language = "assembly"
	Unknown    Language = ""
)

// DefaultMaxFileBytes is the binary/large-file skip threshold (spec §4.C),
// overridable via config.Config.ScanMaxFileMB.
const DefaultMaxFileBytes = 1 << 20

var extensions = map[string]Language{
	".py":  Python,
	".c":   C,
	".h":   C,
	".cob": COBOL,
	".cbl": COBOL,
	".cpy": COBOL,
	".s":   Assembly,
	".asm": Assembly,
}

var shebangHints = []struct {
	prefix string
	lang   Language
}{
	{"#!/usr/bin/env python", Python},
	{"#!/usr/bin/python", Python},
	{"#!/usr/bin/env python3", Python},
}

// Detect classifies one file by extension, falling back to a shebang sniff
// over firstBytes (the sample the caller already read off disk for
// ShouldSkip) for extensionless scripts. Pure function: no I/O of its own.
// It returns Unknown, not an error, for anything outside the four
// supported languages — callers skip those files rather than failing the
// ingest.
func Detect(path string, firstBytes []byte) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := extensions[ext]; ok {
		return l
	}
	if ext != "" {
		return Unknown
	}
	return detectByShebang(firstBytes)
}

func detectByShebang(firstBytes []byte) Language {
	scanner := bufio.NewScanner(bytes.NewReader(firstBytes))
	scanner.Buffer(make([]byte, 0, 256), 256)
	if !scanner.Scan() {
		return Unknown
	}
	line := scanner.Text()
	if !strings.HasPrefix(line, "#!") {
		return Unknown
	}
	for _, hint := range shebangHints {
		if strings.HasPrefix(line, hint.prefix) {
			return hint.lang
		}
	}
	return Unknown
}

// IsBinary performs a cheap binary sniff: the first 512 bytes containing a
// NUL byte are treated as binary content, mirroring the common
// is-this-text heuristic used by diff tools.
func IsBinary(sample []byte) bool {
	n := len(sample)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if sample[i] == 0 {
			return true
		}
	}
	return false
}

// ShouldSkip applies the size cap and binary sniff together; a file
// skipped here never reaches the parser registry.
func ShouldSkip(info os.FileInfo, sample []byte, maxBytes int64) bool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if info.Size() > maxBytes {
		return true
	}
	return IsBinary(sample)
}

// AllLanguages lists the languages the parser registry can handle, mirroring
// the teacher's GetAllSupportedLanguages.
func AllLanguages() []Language {
	return []Language{Python, C, COBOL, Assembly}
}
