// Package metrics is MetricsAnalyzer (spec §4.E): it derives cyclomatic
// complexity, line counts, and a maintainability index from a symbol's raw
// source text, uniformly across all four supported languages.
package metrics

import (
	"math"
	"regexp"
	"strings"

	"github.com/sourcequal/codequal/internal/lang"
	"github.com/sourcequal/codequal/internal/model"
)

// decisionPattern is one regex whose every match adds one to cyclomatic
// complexity; "A && B && C" therefore adds two, one per && operator.
type decisionPattern struct {
	re *regexp.Regexp
}

var genericDecisionPoints = []*regexp.Regexp{
	regexp.MustCompile(`\bif\b`),
	regexp.MustCompile(`\belse\s+if\b`),
	regexp.MustCompile(`\belif\b`),
	regexp.MustCompile(`\bfor\b`),
	regexp.MustCompile(`\bwhile\b`),
	regexp.MustCompile(`\bcase\b`),
	regexp.MustCompile(`\bcatch\b`),
	regexp.MustCompile(`\bexcept\b`),
	regexp.MustCompile(`&&`),
	regexp.MustCompile(`\|\|`),
	regexp.MustCompile(`\band\b`),
	regexp.MustCompile(`\bor\b`),
	regexp.MustCompile(`\?`), // ternary
}

var cobolDecisionPoints = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bIF\b`),
	regexp.MustCompile(`(?i)\bEVALUATE\b`),
	regexp.MustCompile(`(?i)\bWHEN\b`),
	regexp.MustCompile(`(?i)\bPERFORM\s+UNTIL\b`),
	regexp.MustCompile(`(?i)\bAND\b`),
	regexp.MustCompile(`(?i)\bOR\b`),
}

var asmDecisionPoints = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bj[a-z]{1,3}\b`),  // jmp/je/jne/jg/jl/...
	regexp.MustCompile(`(?i)\bb[a-z]{1,3}\b`),  // ARM branch variants
	regexp.MustCompile(`(?i)\bloop\b`),
}

func patternsFor(language lang.Language) []*regexp.Regexp {
	switch language {
	case lang.COBOL:
		return cobolDecisionPoints
	case lang.Assembly:
		return asmDecisionPoints
	default:
		return genericDecisionPoints
	}
}

var commentPrefixFor = map[lang.Language][]string{
	lang.Python:   {"#"},
	lang.C:        {"//", "/*", "*"},
	lang.COBOL:    {"*"},
	lang.Assembly: {";", "//"},
}

// Result is what Analyze derives for one symbol.
type Result struct {
	CyclomaticComplexity int
	MaintainabilityIndex float64
	MIApproximated       bool
	LOC                  int
	CommentLines         int
	BlankLines           int
}

// Analyze computes complexity, line counts, and maintainability for one
// symbol's raw source text.
func Analyze(language lang.Language, text string) Result {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	res := Result{LOC: len(lines)}

	prefixes := commentPrefixFor[language]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			res.BlankLines++
		case hasAnyPrefix(trimmed, prefixes):
			res.CommentLines++
		}
	}

	complexity := 1
	for _, re := range patternsFor(language) {
		complexity += len(re.FindAllStringIndex(text, -1))
	}
	res.CyclomaticComplexity = complexity

	res.MaintainabilityIndex, res.MIApproximated = maintainabilityIndex(res.LOC, complexity)
	return res
}

// ApplyTo writes a Result into the model.Symbol fields it overrides,
// keeping the parser registry's job scoped to structure, not metrics.
func ApplyTo(sym *model.Symbol, r Result) {
	sym.CyclomaticComplexity = r.CyclomaticComplexity
	sym.MaintainabilityIndex = r.MaintainabilityIndex
	sym.MIApproximated = r.MIApproximated
	sym.LOC = r.LOC
	sym.CommentLines = r.CommentLines
	sym.BlankLines = r.BlankLines
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// maintainabilityIndex computes the classic MI = max(0, (171 - 5.2*ln(V) -
// 0.23*G - 16.2*ln(L)) * 100/171 formula. V (Halstead volume) isn't
// computed from a real operator/operand count here; it is approximated as
// max(1, LOC), so MIApproximated is always true.
func maintainabilityIndex(loc, complexity int) (float64, bool) {
	l := float64(loc)
	if l < 1 {
		l = 1
	}
	v := l // approximated Halstead volume
	mi := (171 - 5.2*math.Log(v) - 0.23*float64(complexity) - 16.2*math.Log(l)) * 100 / 171
	if mi < 0 {
		mi = 0
	}
	if mi > 100 {
		mi = 100
	}
	return mi, true
}
