// cmd/codequal-precommit/main.go - pre-commit helper, spec §6: runs a
// quality-gate check against a running codequal server and exits 0/1/2/3.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

const (
	exitPass          = 0
	exitGateFailed    = 1
	exitConfigMissing = 2
	exitNetworkError  = 3
)

type gateResult struct {
	Passed       bool    `json:"passed"`
	BlockMerge   bool    `json:"blockMerge"`
	QualityScore float64 `json:"qualityScore"`
	Summary      string  `json:"summary"`
	Checks       []struct {
		Name      string  `json:"name"`
		Passed    bool    `json:"passed"`
		Value     float64 `json:"value"`
		Threshold float64 `json:"threshold"`
		Message   string  `json:"message"`
	} `json:"checks"`
}

type apiEnvelope struct {
	Success bool       `json:"success"`
	Data    gateResult `json:"data"`
	Error   string     `json:"error"`
}

func main() {
	os.Exit(run())
}

func run() int {
	repo := flag.String("repo", "", "repository id to check (required)")
	server := flag.String("server", "http://localhost:8080", "codequal server base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	if *repo == "" {
		color.Red("missing required --repo flag")
		return exitConfigMissing
	}

	url := fmt.Sprintf("%s/quality-gate/%s/check?triggered_by=pre-commit", *server, *repo)
	client := &http.Client{Timeout: *timeout}

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		color.Red("failed to reach codequal server: %v", err)
		return exitNetworkError
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		color.Red("failed to parse server response: %v", err)
		return exitNetworkError
	}
	if !env.Success {
		color.Red("quality gate check failed: %s", env.Error)
		return exitNetworkError
	}

	result := env.Data
	for _, check := range result.Checks {
		if check.Passed {
			color.Green("✓ %s (%.2f / %.2f)", check.Name, check.Value, check.Threshold)
		} else {
			color.Red("✗ %s: %s (%.2f / %.2f)", check.Name, check.Message, check.Value, check.Threshold)
		}
	}

	bold := color.New(color.Bold)
	if result.Passed {
		bold.Add(color.FgGreen).Printf("quality gate passed, score %.1f\n", result.QualityScore)
		return exitPass
	}

	bold.Add(color.FgRed).Printf("quality gate failed, score %.1f: %s\n", result.QualityScore, result.Summary)
	return exitGateFailed
}
