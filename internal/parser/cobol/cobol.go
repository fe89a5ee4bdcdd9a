// Package cobol implements SymbolParser for fixed/free-format COBOL by
// hand-rolled line scanning: no tree-sitter grammar for COBOL exists in the
// ecosystem, so PROCEDURE DIVISION paragraph and SECTION headers are
// recognised the way a line-oriented COBOL cross-referencer would, by
// column position and reserved-word prefix rather than a parse tree.
package cobol

import (
	"strings"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/parser"
)

type Parser struct{}

func New() *Parser { return &Parser{} }

// sectionSuffixes mark a label line as a SECTION header rather than a
// paragraph; isLabelLine decides whether a line is a label at all.
var sectionSuffixes = []string{" SECTION.", " SECTION"}

func (p *Parser) Parse(path string, content []byte) (*parser.ParseResult, error) {
	result := &parser.ParseResult{}

	lines := strings.Split(string(content), "\n")
	inProcedureDivision := false
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
		line := stripSequenceArea(raw)
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		if strings.Contains(upper, "PROCEDURE DIVISION") {
			inProcedureDivision = true
			continue
		}
		if !inProcedureDivision || trimmed == "" {
			continue
		}
		if strings.HasPrefix(line, "      ") || strings.HasPrefix(raw, "*") {
			continue // comment or continuation area
		}

		if isLabelLine(line, upper) {
			flush(lineNo - 1)
			name := strings.TrimSuffix(trimmed, ".")
			kind := model.KindProcedure
			for _, suf := range sectionSuffixes {
				if strings.HasSuffix(upper, suf) {
					name = strings.TrimSuffix(name, " SECTION")
					kind = model.KindClass // section groups paragraphs; closest available kind
				}
			}
			current = &model.Symbol{
				Name:      name,
				Kind:      kind,
				LineStart: lineNo,
				Signature: name,
			}
			continue
		}

		if current != nil {
			current.LOC++
			if trimmed == "" {
				current.BlankLines++
			}
			collectCalls(result, len(result.Symbols), trimmed, lineNo)
		}
	}
	flush(len(lines))

	return result, nil
}

// isLabelLine reports whether line looks like a paragraph/section header:
// starts in columns 8-11 (area A, i.e. no more than 4 leading spaces after
// the 6-column sequence area has been stripped), is a single word (plus
// optional SECTION) terminated by a period, and isn't itself a division
// header.
func isLabelLine(line, upper string) bool {
	if strings.Contains(upper, " DIVISION") {
		return false
	}
	leading := len(line) - len(strings.TrimLeft(line, " "))
	if leading > 4 {
		return false
	}
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ".") {
		return false
	}
	fields := strings.Fields(strings.TrimSuffix(trimmed, "."))
	return len(fields) == 1 || (len(fields) == 2 && strings.EqualFold(fields[1], "SECTION"))
}

// stripSequenceArea removes COBOL's traditional 6-character sequence-number
// area (columns 1-6) when present and long enough.
func stripSequenceArea(line string) string {
	if len(line) > 6 {
		return line[6:]
	}
	return line
}

// collectCalls recognises "CALL 'NAME'" and "PERFORM NAME" as call sites,
// the two ways COBOL paragraphs invoke other code.
func collectCalls(result *parser.ParseResult, symbolIndex int, trimmed string, lineNo int) {
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, "CALL "):
		name := strings.Trim(strings.TrimSpace(trimmed[5:]), "'\" .")
		if name != "" {
			result.Calls = append(result.Calls, parser.CallSite{FromSymbolIndex: symbolIndex, ToName: name, Line: lineNo})
		}
	case strings.HasPrefix(upper, "PERFORM "):
		rest := strings.TrimSpace(trimmed[8:])
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			name := strings.Trim(fields[0], ".")
			result.Calls = append(result.Calls, parser.CallSite{FromSymbolIndex: symbolIndex, ToName: name, Line: lineNo})
		}
	case strings.HasPrefix(upper, "COPY "):
		rest := strings.TrimSpace(trimmed[5:])
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			result.Imports = append(result.Imports, parser.ImportSite{ToModuleName: strings.Trim(fields[0], "."), Raw: trimmed})
		}
	}
}
