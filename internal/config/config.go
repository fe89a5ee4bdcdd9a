// Package config holds process configuration: environment variables (spec
// §6) plus an optional on-disk TOML file for quality-gate defaults and scan
// ignore patterns. Mirrors the teacher's config.GetClientConfig /
// config.SetClientConfig pattern: one atomically-swapped snapshot rather
// than scattered globals.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/sourcequal/codequal/internal/model"
	"github.com/sourcequal/codequal/internal/utils"
)

// Config is the full process configuration.
type Config struct {
	DatabaseURL          string
	DataDir              string
	UploadsDir           string
	VectorIndexDir       string
	HTTPAddr             string
	VectorDim            int
	Workers              int
	IngestSizeCapBytes   int64
	ProviderTimeout      time.Duration
	WebhookSigningSecret string

	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	DefaultGate   model.QualityGateConfig
	ScanIgnore    []string
	ScanMaxFileMB int
}

var current atomic.Pointer[Config]

func init() {
	current.Store(FromEnv())
}

// FromEnv builds a Config from the environment variables named in spec §6,
// falling back to documented defaults.
func FromEnv() *Config {
	c := &Config{
		DatabaseURL:          envOr("DATABASE_URL", "file:codequal.db"),
		DataDir:              envOr("DATA_DIR", "./data"),
		UploadsDir:           envOr("UPLOADS_DIR", "./data/uploads"),
		VectorIndexDir:       envOr("VECTOR_INDEX_DIR", "./data/vectors"),
		HTTPAddr:             envOr("HTTP_ADDR", ":8080"),
		VectorDim:            envIntOr("VECTOR_DIM", 384),
		Workers:              envIntOr("WORKERS", 2*runtime.NumCPU()),
		IngestSizeCapBytes:   envInt64Or("INGEST_SIZE_CAP", 512<<20), // 512 MiB
		ProviderTimeout:      time.Duration(envIntOr("PROVIDER_TIMEOUT", 30)) * time.Second,
		WebhookSigningSecret: envOr("WEBHOOK_SIGNING_SECRET", ""),
		EmbeddingAPIKey:      envOr("EMBEDDING_API_KEY", ""),
		EmbeddingBaseURL:     envOr("EMBEDDING_BASE_URL", ""),
		EmbeddingModel:       envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		DefaultGate:          model.DefaultQualityGateConfig(""),
		ScanIgnore:           DefaultScanIgnorePatterns,
		ScanMaxFileMB:        1,
	}
	return c
}

// LoadTOML overlays gate defaults and scan ignore patterns from a config
// file onto the current snapshot, following the teacher's habit of a
// pelletier/go-toml-parsed settings file alongside environment variables.
func LoadTOML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var file struct {
		Gate struct {
			MaxComplexity              *int     `toml:"max_complexity"`
			MaxCodeSmells              *int     `toml:"max_code_smells"`
			MaxCriticalSmells          *int     `toml:"max_critical_smells"`
			MaxVulnerabilities         *int     `toml:"max_vulnerabilities"`
			MaxCriticalVulnerabilities *int     `toml:"max_critical_vulnerabilities"`
			MinQualityScore            *float64 `toml:"min_quality_score"`
			MaxDuplicationPercentage   *float64 `toml:"max_duplication_percentage"`
			BlockOnFailure             *bool    `toml:"block_on_failure"`
		} `toml:"gate"`
		Scan struct {
			IgnorePatterns []string `toml:"ignore_patterns"`
			MaxFileMB      int      `toml:"max_file_mb"`
		} `toml:"scan"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	c := Snapshot()
	gate := c.DefaultGate
	if v := file.Gate.MaxComplexity; v != nil {
		gate.MaxComplexity = *v
	}
	if v := file.Gate.MaxCodeSmells; v != nil {
		gate.MaxCodeSmells = *v
	}
	if v := file.Gate.MaxCriticalSmells; v != nil {
		gate.MaxCriticalSmells = *v
	}
	if v := file.Gate.MaxVulnerabilities; v != nil {
		gate.MaxVulnerabilities = *v
	}
	if v := file.Gate.MaxCriticalVulnerabilities; v != nil {
		gate.MaxCriticalVulnerabilities = *v
	}
	if v := file.Gate.MinQualityScore; v != nil {
		gate.MinQualityScore = *v
	}
	if v := file.Gate.MaxDuplicationPercentage; v != nil {
		gate.MaxDuplicationPercentage = *v
	}
	if v := file.Gate.BlockOnFailure; v != nil {
		gate.BlockOnFailure = *v
	}
	c.DefaultGate = gate
	if len(file.Scan.IgnorePatterns) > 0 {
		c.ScanIgnore = utils.UniqueStringSlice(append(append([]string{}, c.ScanIgnore...), file.Scan.IgnorePatterns...))
	}
	if file.Scan.MaxFileMB > 0 {
		c.ScanMaxFileMB = file.Scan.MaxFileMB
	}
	Set(c)
	return nil
}

// Snapshot returns the current configuration.
func Snapshot() *Config {
	return current.Load()
}

// Set atomically replaces the current configuration.
func Set(c *Config) {
	current.Store(c)
}

// DefaultScanIgnorePatterns mirrors the teacher's DefaultFolderIgnorePatterns.
var DefaultScanIgnorePatterns = []string{
	".*",
	"logs/", "temp/", "tmp/", "node_modules/",
	"bin/", "dist/", "build/", "out/",
	"__pycache__/", "venv/", "target/", "vendor/",
	"*.min.js", "*.generated.*",
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64Or(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
