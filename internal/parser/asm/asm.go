// Package asm implements SymbolParser for x86/ARM-style assembly by
// hand-rolled line scanning: no tree-sitter grammar for assembly exists in
// the ecosystem, so labels and call/branch instructions are recognised by
// their textual shape (a bare "name:" line starts a procedure) rather than
// a parse tree.
package asm

import (
	"strings"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
)

type Parser struct{}

func New() *Parser { return &Parser{} }

var callMnemonics = []string{"call", "bl", "jal", "jsr"}

// directives are assembler pseudo-ops rather than labels, even though they
// often appear at the start of a line.
var directivePrefixes = []string{".", "%", "#"}

func (p *Parser) Parse(path string, content []byte) (*parser.ParseResult, error) {
	result := &parser.ParseResult{}
	lines := strings.Split(string(content), "\n")

	var current *model.Symbol
	flush := func(endLine int) {
		if current == nil {
			return
		}
		current.LineEnd = endLine
		result.Symbols = append(result.Symbols, current)
		if current.LineStart-1 < len(lines) && endLine <= len(lines) && endLine >= current.LineStart {
			result.SymbolText = append(result.SymbolText, strings.Join(lines[current.LineStart-1:endLine], "\n"))
		} else {
			result.SymbolText = append(result.SymbolText, "")
		}
		current = nil
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := stripComment(raw)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if current != nil {
				current.BlankLines++
			}
			continue
		}

		if label := labelName(trimmed); label != "" {
			flush(lineNo - 1)
			current = &model.Symbol{
				Name:      label,
				Kind:      model.KindProcedure,
				LineStart: lineNo,
				Signature: label + ":",
			}
			continue
		}

		if current == nil {
			continue
		}
		current.LOC++

		mnemonic := strings.ToLower(strings.Fields(trimmed)[0])
		if isCall(mnemonic) {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				target := strings.Trim(fields[1], ",")
				result.Calls = append(result.Calls, parser.CallSite{
					FromSymbolIndex: len(result.Symbols),
					ToName:          target,
					Line:            lineNo,
				})
			}
		}
		if strings.HasPrefix(mnemonic, "include") || strings.HasPrefix(trimmed, "%include") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				result.Imports = append(result.Imports, parser.ImportSite{
					ToModuleName: strings.Trim(fields[1], "\"'"),
					Raw:          trimmed,
				})
			}
		}
	}
	flush(len(lines))

	return result, nil
}

func stripComment(line string) string {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	if idx := strings.Index(line, "//"); idx >= 0 {
		line = line[:idx]
	}
	return line
}

// labelName recognises a bare "name:" line as a procedure label, excluding
// assembler directives that happen to start a line.
func labelName(trimmed string) string {
	if !strings.HasSuffix(trimmed, ":") {
		return ""
	}
	name := strings.TrimSuffix(trimmed, ":")
	if name == "" || strings.ContainsAny(name, " \t") {
		return ""
	}
	for _, prefix := range directivePrefixes {
		if strings.HasPrefix(name, prefix) {
			return ""
		}
	}
	return name
}

func isCall(mnemonic string) bool {
	for _, m := range callMnemonics {
		if mnemonic == m {
			return true
		}
	}
	return false
}
