// Package vuln is VulnerabilityScanner (spec §4.H): a catalogue of
// regex-based rules tagged with CWE and severity, optionally augmented by
// an opaque LLMProvider for smell detection that degrades gracefully when
// the provider fails.
package vuln

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/pkg/logger"
)

// Rule is one regex-based detection pattern.
type Rule struct {
	ID          string
	CWE         string
	Category    string
	Severity    model.Severity
	Confidence  model.Confidence
	Description string
	Pattern     *regexp.Regexp
}

// Catalogue is the built-in rule set. Patterns are deliberately simple
// substring/regex checks, not full taint analysis; they flag candidates for
// human review rather than proving exploitability.
var Catalogue = []Rule{
	{
		ID:          "sql-string-concat",
		CWE:         "CWE-89",
		Category:    "sql-injection",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceMedium,
		Description: "SQL statement built by concatenating untrusted input",
		Pattern:     regexp.MustCompile(`(?i)(select|insert|update|delete)[^;"']*["'][^;"']*\+`),
	},
	{
		ID:          "sql-format-string",
		CWE:         "CWE-89",
		Category:    "sql-injection",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceMedium,
		Description: "SQL statement built with string formatting instead of parameter binding",
		Pattern:     regexp.MustCompile(`(?i)(execute|cursor\.execute|query)\s*\(\s*["'].*%s.*["']\s*%`),
	},
	{
		ID:          "command-injection-shell",
		CWE:         "CWE-78",
		Category:    "command-injection",
		Severity:    model.SeverityCritical,
		Confidence:  model.ConfidenceMedium,
		Description: "Shell invoked with a command string built from variables",
		Pattern:     regexp.MustCompile(`(?i)(os\.system|subprocess\.(call|run|popen)|popen|exec|system)\s*\([^)]*\+`),
	},
	{
		ID:          "hardcoded-secret",
		CWE:         "CWE-798",
		Category:    "hardcoded-secret",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceLow,
		Description: "Literal assigned to a variable named like a credential",
		Pattern:     regexp.MustCompile(`(?i)\b(password|secret|api_key|apikey|token|access_key)\s*[:=]\s*["'][^"']{4,}["']`),
	},
	{
		ID:          "path-traversal",
		CWE:         "CWE-22",
		Category:    "path-traversal",
		Severity:    model.SeverityMedium,
		Confidence:  model.ConfidenceLow,
		Description: "File path built from untrusted input without sanitisation",
		Pattern:     regexp.MustCompile(`(?i)(open|fopen|readfile)\s*\([^)]*\.\.[^)]*\)`),
	},
	{
		ID:          "xss-unescaped-output",
		CWE:         "CWE-79",
		Category:    "xss",
		Severity:    model.SeverityMedium,
		Confidence:  model.ConfidenceLow,
		Description: "Request-derived value written to a response without escaping",
		Pattern:     regexp.MustCompile(`(?i)(innerHTML|document\.write|render_template_string)\s*\([^)]*\+`),
	},
	{
		ID:          "unsafe-deserialization",
		CWE:         "CWE-502",
		Category:    "unsafe-deserialization",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceMedium,
		Description: "Deserialising data with a format capable of arbitrary code execution",
		Pattern:     regexp.MustCompile(`(?i)\b(pickle\.loads|yaml\.load\s*\([^)]*\)|marshal\.loads)\b`),
	},
}

// SmellFinding is one LLM-assisted finding as returned by an LLMProvider.
type SmellFinding struct {
	SmellType   string
	Severity    model.Severity
	Title       string
	Description string
	Suggestion  string
}

// LLMProvider is the opaque boundary to a code-smell-detecting model. Its
// concrete implementation is never a concern of the scanner.
type LLMProvider interface {
	DetectSmells(ctx context.Context, symbolSource string) ([]SmellFinding, error)
}

// Scanner runs the rule catalogue over file text and, when configured,
// asks an LLMProvider for additional smell findings.
type Scanner struct {
	rules    []Rule
	provider LLMProvider
	logger   logger.Logger
}

func NewScanner(provider LLMProvider, log logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scanner{rules: Catalogue, provider: provider, logger: log}
}

// ScanFile runs every rule against one file's text, line by line, and
// coalesces findings that share a rule and land within two lines of each
// other (spec §4.H: "same rule + file + line ± 2").
func (s *Scanner) ScanFile(fileID string, text string) []*model.Vulnerability {
	lines := strings.Split(text, "\n")
	var findings []*model.Vulnerability
	for _, rule := range s.rules {
		for i, line := range lines {
			if !rule.Pattern.MatchString(line) {
				continue
			}
			findings = append(findings, &model.Vulnerability{
				FileID:      fileID,
				Line:        i + 1,
				RuleID:      rule.ID,
				Severity:    rule.Severity,
				CWE:         rule.CWE,
				Category:    rule.Category,
				Description: rule.Description,
				Confidence:  rule.Confidence,
				CodeSnippet: strings.TrimSpace(line),
			})
		}
	}
	return coalesce(findings)
}

// coalesce merges findings that share a rule and file and land within two
// lines of an already-kept finding, keeping the first occurrence.
func coalesce(findings []*model.Vulnerability) []*model.Vulnerability {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].RuleID != findings[j].RuleID {
			return findings[i].RuleID < findings[j].RuleID
		}
		return findings[i].Line < findings[j].Line
	})

	var kept []*model.Vulnerability
	lastLineByRule := make(map[string]int)
	for _, f := range findings {
		if last, ok := lastLineByRule[f.RuleID]; ok && abs(f.Line-last) <= 2 {
			continue
		}
		kept = append(kept, f)
		lastLineByRule[f.RuleID] = f.Line
	}
	return kept
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ScanSymbol runs the LLM-assisted path for one symbol's source text. A
// provider error is logged and swallowed: the caller still gets the
// rule-based findings from ScanFile, just no smell findings.
func (s *Scanner) ScanSymbol(ctx context.Context, repoID, fileID, symbolID, source string) []*model.CodeSmell {
	if s.provider == nil {
		return nil
	}

	raw, err := s.provider.DetectSmells(ctx, source)
	if err != nil {
		s.logger.Warn("vuln: LLM smell detection failed, degrading to rule-only: %v", err)
		return nil
	}

	smells := make([]*model.CodeSmell, 0, len(raw))
	for _, f := range raw {
		smells = append(smells, &model.CodeSmell{
			RepoID:      repoID,
			SmellType:   f.SmellType,
			Severity:    f.Severity,
			Title:       f.Title,
			Description: f.Description,
			Suggestion:  f.Suggestion,
			FileID:      fileID,
			SymbolID:    symbolID,
			Location:    fmt.Sprintf("%s:%s", fileID, symbolID),
		})
	}
	return smells
}
