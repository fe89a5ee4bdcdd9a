// Package gate is QualityGateEngine (spec §4.K): it evaluates a
// Repository's current analysis results against seven configurable
// thresholds, derives a quality score, and records the outcome as a
// CICDRun.
package gate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/repository"
)

// meter reports gate-check outcomes through whatever MeterProvider main()
// installs via otel.SetMeterProvider; with none installed it's a no-op.
var meter = otel.Meter("github.com/sourcequal/codequal/internal/gate")

var checksTotal, _ = meter.Int64Counter("gate_checks_total", metric.WithDescription("quality gate checks, by outcome"))

// Check is one named threshold evaluation.
type Check struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// Result is the full outcome of one gate evaluation.
type Result struct {
	Passed       bool    `json:"passed"`
	BlockMerge   bool    `json:"blockMerge"`
	Checks       []Check `json:"checks"`
	QualityScore float64 `json:"qualityScore"`
	Summary      string  `json:"summary"`
	RunID        string  `json:"runId"`
}

// Engine is QualityGateEngine.
type Engine struct {
	store *repository.Store
}

func NewEngine(store *repository.Store) *Engine {
	return &Engine{store: store}
}

// Check reads the Repository's current metrics, vulnerabilities, code
// smells and duplication pairs, evaluates the seven thresholds, and
// persists a CICDRun recording the outcome (spec §4.K: "Each Check
// persists a CICDRun").
func (e *Engine) Check(ctx context.Context, repoID string, triggeredBy model.TriggeredBy, branch, commit string, prNumber int) (*Result, error) {
	cfg, err := e.store.GetQualityGateConfig(ctx, repoID)
	if err != nil {
		cfg = defaultConfigFor(repoID)
	}

	run := &model.CICDRun{
		RepoID:      repoID,
		Branch:      branch,
		Commit:      commit,
		PRNumber:    prNumber,
		TriggeredBy: triggeredBy,
		Status:      model.RunRunning,
	}
	runID, err := e.store.InsertCICDRun(ctx, run)
	if err != nil {
		return nil, err
	}

	result, evalErr := e.evaluate(ctx, repoID, cfg)
	if evalErr != nil {
		_ = e.store.UpdateCICDRun(ctx, runID, model.RunError, evalErr.Error())
		return nil, evalErr
	}
	result.RunID = runID

	status := model.RunFailed
	outcome := "failed"
	if result.Passed {
		status = model.RunPassed
		outcome = "passed"
	}
	checksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err := e.store.UpdateCICDRun(ctx, runID, status, encodeResult(result)); err != nil {
		return result, err
	}
	return result, nil
}

func defaultConfigFor(repoID string) *model.QualityGateConfig {
	c := model.DefaultQualityGateConfig(repoID)
	return &c
}

func (e *Engine) evaluate(ctx context.Context, repoID string, cfg *model.QualityGateConfig) (*Result, error) {
	symbols, err := e.store.ListSymbols(ctx, repoID, repository.SymbolFilter{})
	if err != nil {
		return nil, err
	}
	vulns, err := e.store.ListVulnerabilities(ctx, repoID)
	if err != nil {
		return nil, err
	}
	smells, err := e.store.ListCodeSmells(ctx, repoID)
	if err != nil {
		return nil, err
	}
	dupes, err := e.store.ListDuplicationPairs(ctx, repoID)
	if err != nil {
		return nil, err
	}
	files, err := e.store.ListFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}

	criticalSmells, otherSmells := splitBySeverity(smellSeverities(smells))
	criticalVulns, otherVulns := splitBySeverity(vulnSeverities(vulns))
	avgComplexity := averageComplexity(symbols)
	duplicationPct := duplicationPercentage(dupes, files)
	score := QualityScore(criticalSmells, otherSmells, criticalVulns, otherVulns, avgComplexity, duplicationPct)

	checks := []Check{
		boundedCheck("max_complexity", avgComplexity, float64(cfg.MaxComplexity), lessOrEqual),
		boundedCheck("max_code_smells", float64(len(smells)), float64(cfg.MaxCodeSmells), lessOrEqual),
		boundedCheck("max_critical_smells", float64(criticalSmells), float64(cfg.MaxCriticalSmells), lessOrEqual),
		boundedCheck("max_vulnerabilities", float64(len(vulns)), float64(cfg.MaxVulnerabilities), lessOrEqual),
		boundedCheck("max_critical_vulnerabilities", float64(criticalVulns), float64(cfg.MaxCriticalVulnerabilities), lessOrEqual),
		boundedCheck("min_quality_score", score, cfg.MinQualityScore, greaterOrEqual),
		boundedCheck("max_duplication_percentage", duplicationPct, cfg.MaxDuplicationPercentage, lessOrEqual),
	}

	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
			break
		}
	}

	return &Result{
		Passed:       passed,
		BlockMerge:   !passed && cfg.BlockOnFailure,
		Checks:       checks,
		QualityScore: score,
		Summary:      summarize(passed, checks),
	}, nil
}

type comparator func(value, threshold float64) bool

func lessOrEqual(value, threshold float64) bool    { return value <= threshold }
func greaterOrEqual(value, threshold float64) bool { return value >= threshold }

func boundedCheck(name string, value, threshold float64, cmp comparator) Check {
	passed := cmp(value, threshold)
	msg := "within threshold"
	if !passed {
		msg = fmt.Sprintf("%s: value %.2f violates threshold %.2f", name, value, threshold)
	}
	return Check{Name: name, Passed: passed, Value: value, Threshold: threshold, Message: msg}
}

// QualityScore implements spec §4.K's formula, clamped to [0,100]:
// 100 − (3·critical_smells + 1·other_smells) − (4·critical_vulns +
// 1·other_vulns) − (max(0, avg_complexity−10)·1.5) − (duplication_pct·0.5).
func QualityScore(criticalSmells, otherSmells, criticalVulns, otherVulns int, avgComplexity, duplicationPct float64) float64 {
	score := 100.0
	score -= float64(3*criticalSmells + otherSmells)
	score -= float64(4*criticalVulns + otherVulns)
	if over := avgComplexity - 10; over > 0 {
		score -= over * 1.5
	}
	score -= duplicationPct * 0.5

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func smellSeverities(smells []*model.CodeSmell) []model.Severity {
	out := make([]model.Severity, len(smells))
	for i, s := range smells {
		out[i] = s.Severity
	}
	return out
}

func vulnSeverities(vulns []*model.Vulnerability) []model.Severity {
	out := make([]model.Severity, len(vulns))
	for i, v := range vulns {
		out[i] = v.Severity
	}
	return out
}

func splitBySeverity(severities []model.Severity) (critical, other int) {
	for _, sev := range severities {
		if sev == model.SeverityCritical {
			critical++
		} else {
			other++
		}
	}
	return
}

func averageComplexity(symbols []*model.Symbol) float64 {
	if len(symbols) == 0 {
		return 0
	}
	total := 0
	for _, s := range symbols {
		total += s.CyclomaticComplexity
	}
	return float64(total) / float64(len(symbols))
}

func duplicationPercentage(pairs []*model.DuplicationPair, files []*model.File) float64 {
	if len(files) == 0 {
		return 0
	}
	duplicatedFiles := make(map[string]bool)
	for _, p := range pairs {
		duplicatedFiles[p.File1ID] = true
		duplicatedFiles[p.File2ID] = true
	}
	return float64(len(duplicatedFiles)) / float64(len(files)) * 100
}

func summarize(passed bool, checks []Check) string {
	if passed {
		return "all quality gate checks passed"
	}
	failed := 0
	for _, c := range checks {
		if !c.Passed {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d quality gate check(s) failed", failed, len(checks))
}

// encodeResult is a minimal, dependency-free JSON rendering kept local to
// avoid importing encoding/json for a handful of scalar fields; the HTTP
// layer re-marshals the full Result with encoding/json for API responses.
func encodeResult(r *Result) string {
	return fmt.Sprintf(`{"passed":%t,"blockMerge":%t,"qualityScore":%.2f,"summary":%q,"runId":%q,"generatedAt":%q}`,
		r.Passed, r.BlockMerge, r.QualityScore, r.Summary, r.RunID, time.Now().UTC().Format(time.RFC3339))
}
