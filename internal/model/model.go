// Package model defines the persistent entities of the ingestion/analysis
// pipeline (spec §3). Types here are pure data; behavior lives in the
// components that read and write them.
package model

import "time"

// RepoSource distinguishes how a Repository's source tree arrived.
type RepoSource string

const (
	SourceUpload RepoSource = "upload"
	SourceRemote RepoSource = "remote"
)

// RepoStatus is the Repository lifecycle state.
type RepoStatus string

const (
	StatusPending   RepoStatus = "pending"
	StatusCloning   RepoStatus = "cloning"
	StatusParsing   RepoStatus = "parsing"
	StatusAnalyzing RepoStatus = "analyzing"
	StatusCompleted RepoStatus = "completed"
	StatusFailed    RepoStatus = "failed"
)

// Repository is the root entity of one ingested codebase.
type Repository struct {
	ID               string     `json:"id" db:"id"`
	Source           RepoSource `json:"source" db:"source"`
	OriginURL        string     `json:"originUrl,omitempty" db:"origin_url"`
	Branch           string     `json:"branch,omitempty" db:"branch"`
	ArchivePath      string     `json:"archivePath,omitempty" db:"archive_path"`
	Status           RepoStatus `json:"status" db:"status"`
	FailureReason    string     `json:"failureReason,omitempty" db:"failure_reason"`
	FileCount        int        `json:"fileCount" db:"file_count"`
	SymbolCount      int        `json:"symbolCount" db:"symbol_count"`
	Stars            int        `json:"stars,omitempty" db:"stars"`
	PrimaryLanguage  string     `json:"primaryLanguage,omitempty" db:"primary_language"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
}

// File is one source file discovered in a Repository.
type File struct {
	ID        string `json:"id" db:"id"`
	RepoID    string `json:"repoId" db:"repo_id"`
	Path      string `json:"path" db:"path"` // POSIX-normalised, repo-relative
	Language  string `json:"language" db:"language"`
	ByteSize  int64  `json:"byteSize" db:"byte_size"`
	LineCount int    `json:"lineCount" db:"line_count"`
	SHA256    string `json:"sha256" db:"sha256"`
	ParseErr  string `json:"parseError,omitempty" db:"parse_error"`
}

// SymbolKind enumerates the symbol shapes the parser registry produces.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindClass     SymbolKind = "class"
	KindMethod    SymbolKind = "method"
	KindVariable  SymbolKind = "variable"
	KindProcedure SymbolKind = "procedure"
)

// Symbol is a named, source-addressable construct with a line range.
type Symbol struct {
	ID                     string     `json:"id" db:"id"`
	FileID                 string     `json:"fileId" db:"file_id"`
	Name                   string     `json:"name" db:"name"`
	Kind                   SymbolKind `json:"kind" db:"kind"`
	LineStart              int        `json:"lineStart" db:"line_start"`
	LineEnd                int        `json:"lineEnd" db:"line_end"`
	Signature              string     `json:"signature" db:"signature"`
	Docstring              string     `json:"docstring,omitempty" db:"docstring"`
	HasDocstring           bool       `json:"hasDocstring" db:"has_docstring"`
	DocstringLength        int        `json:"docstringLength" db:"docstring_length"`
	CyclomaticComplexity   int        `json:"cyclomaticComplexity" db:"cyclomatic_complexity"`
	MaintainabilityIndex   float64    `json:"maintainabilityIndex" db:"maintainability_index"`
	MIApproximated         bool       `json:"miApproximated" db:"mi_approximated"`
	LOC                    int        `json:"loc" db:"loc"`
	CommentLines           int        `json:"commentLines" db:"comment_lines"`
	BlankLines             int        `json:"blankLines" db:"blank_lines"`
}

// CallEdge is a directed, possibly-unresolved reference from a Symbol to a
// callee name.
type CallEdge struct {
	ID           string `json:"id" db:"id"`
	FromSymbolID string `json:"fromSymbolId" db:"from_symbol_id"`
	ToName       string `json:"toName" db:"to_name"`
	ToSymbolID   string `json:"toSymbolId,omitempty" db:"to_symbol_id"`
	FileID       string `json:"fileId" db:"file_id"`
	Line         int    `json:"line" db:"line"`
	IsExternal   bool   `json:"isExternal" db:"is_external"`
}

// ImportEdgeKind distinguishes a resolved in-repo import from an external
// module reference.
type ImportEdgeKind string

const (
	ImportFile   ImportEdgeKind = "file"
	ImportModule ImportEdgeKind = "module"
)

// ImportEdge is a file-to-file or file-to-module import relationship.
type ImportEdge struct {
	ID           string         `json:"id" db:"id"`
	FromFileID   string         `json:"fromFileId" db:"from_file_id"`
	ToFileID     string         `json:"toFileId,omitempty" db:"to_file_id"`
	ToModuleName string         `json:"toModuleName,omitempty" db:"to_module_name"`
	Kind         ImportEdgeKind `json:"kind" db:"kind"`
}

// Embedding is a fixed-dimension, unit-normalised vector attached to a
// Symbol.
type Embedding struct {
	SymbolID string    `json:"symbolId"`
	Dim      int       `json:"dim"`
	Vector   []float32 `json:"vector"`
}

// Severity is shared across Vulnerability and CodeSmell.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Confidence is the rule-engine's certainty in a Vulnerability finding.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Vulnerability is one rule-based finding.
type Vulnerability struct {
	ID          string     `json:"id" db:"id"`
	RepoID      string     `json:"repoId" db:"repo_id"`
	FileID      string     `json:"fileId" db:"file_id"`
	Line        int        `json:"line" db:"line"`
	RuleID      string     `json:"ruleId" db:"rule_id"`
	Severity    Severity   `json:"severity" db:"severity"`
	CWE         string     `json:"cwe,omitempty" db:"cwe"`
	Category    string     `json:"category" db:"category"`
	Description string     `json:"description" db:"description"`
	Confidence  Confidence `json:"confidence" db:"confidence"`
	CodeSnippet string     `json:"codeSnippet" db:"code_snippet"`
}

// CodeSmell is one LLM-assisted finding.
type CodeSmell struct {
	ID          string   `json:"id" db:"id"`
	RepoID      string   `json:"repoId" db:"repo_id"`
	SmellType   string   `json:"smellType" db:"smell_type"`
	Severity    Severity `json:"severity" db:"severity"`
	Title       string   `json:"title" db:"title"`
	Description string   `json:"description" db:"description"`
	Suggestion  string   `json:"suggestion" db:"suggestion"`
	FileID      string   `json:"fileId" db:"file_id"`
	SymbolID    string   `json:"symbolId,omitempty" db:"symbol_id"`
	Location    string   `json:"location" db:"location"`
}

// DuplicationPair is one cross-file near-duplicate finding.
type DuplicationPair struct {
	ID              string  `json:"id" db:"id"`
	RepoID          string  `json:"repoId" db:"repo_id"`
	File1ID         string  `json:"file1Id" db:"file1_id"`
	File1Range      string  `json:"file1Range" db:"file1_range"`
	File2ID         string  `json:"file2Id" db:"file2_id"`
	File2Range      string  `json:"file2Range" db:"file2_range"`
	Similarity      float64 `json:"similarity" db:"similarity"`
	DuplicateLines  int     `json:"duplicateLines" db:"duplicate_lines"`
	DuplicateTokens int     `json:"duplicateTokens" db:"duplicate_tokens"`
	Snippet         string  `json:"snippet" db:"snippet"`
}

// QualityGateConfig holds the seven thresholds evaluated by the gate engine.
type QualityGateConfig struct {
	RepoID                     string  `json:"repoId" db:"repo_id"`
	MaxComplexity              int     `json:"maxComplexity" db:"max_complexity"`
	MaxCodeSmells              int     `json:"maxCodeSmells" db:"max_code_smells"`
	MaxCriticalSmells          int     `json:"maxCriticalSmells" db:"max_critical_smells"`
	MaxVulnerabilities         int     `json:"maxVulnerabilities" db:"max_vulnerabilities"`
	MaxCriticalVulnerabilities int     `json:"maxCriticalVulnerabilities" db:"max_critical_vulnerabilities"`
	MinQualityScore            float64 `json:"minQualityScore" db:"min_quality_score"`
	MaxDuplicationPercentage   float64 `json:"maxDuplicationPercentage" db:"max_duplication_percentage"`
	BlockOnFailure             bool    `json:"blockOnFailure" db:"block_on_failure"`
}

// DefaultQualityGateConfig mirrors the teacher's pattern of a named default
// value alongside its struct (config.DefaultConfigScan, etc).
func DefaultQualityGateConfig(repoID string) QualityGateConfig {
	return QualityGateConfig{
		RepoID:                     repoID,
		MaxComplexity:              20,
		MaxCodeSmells:              50,
		MaxCriticalSmells:          0,
		MaxVulnerabilities:         20,
		MaxCriticalVulnerabilities: 0,
		MinQualityScore:            60,
		MaxDuplicationPercentage:   20,
		BlockOnFailure:             true,
	}
}

// TriggeredBy identifies what caused a CICDRun.
type TriggeredBy string

const (
	TriggeredManual    TriggeredBy = "manual"
	TriggeredWebhook   TriggeredBy = "webhook"
	TriggeredPreCommit TriggeredBy = "pre-commit"
)

// RunStatus is the CICDRun lifecycle state.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

// CICDRun is a persisted record of one gate evaluation.
type CICDRun struct {
	ID          string      `json:"id" db:"id"`
	RepoID      string      `json:"repoId" db:"repo_id"`
	Branch      string      `json:"branch,omitempty" db:"branch"`
	Commit      string      `json:"commit,omitempty" db:"commit"`
	PRNumber    int         `json:"prNumber,omitempty" db:"pr_number"`
	TriggeredBy TriggeredBy `json:"triggeredBy" db:"triggered_by"`
	Status      RunStatus   `json:"status" db:"status"`
	GateResult  string      `json:"gateResult" db:"gate_result"` // JSON-encoded GateResult
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time  `json:"completedAt,omitempty" db:"completed_at"`
}

// Complexity buckets, spec §4.E.
func ComplexityBucket(v int) string {
	switch {
	case v <= 10:
		return "simple"
	case v <= 20:
		return "moderate"
	case v <= 50:
		return "complex"
	default:
		return "very_complex"
	}
}

// Maintainability buckets, spec §4.E.
func MaintainabilityBucket(mi float64) string {
	switch {
	case mi >= 85:
		return "excellent"
	case mi >= 65:
		return "good"
	case mi >= 50:
		return "fair"
	default:
		return "poor"
	}
}
