package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level bankimport.yaml configuration.
type Config struct {
	Company    CompanyConfig    `yaml:"company"`
	Database   DatabaseConfig   `yaml:"database"`
	Import     ImportConfig     `yaml:"import"`
	Matching   MatchingConfig   `yaml:"matching"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
	Log        LogConfig        `yaml:"log"`
}

// CompanyConfig identifies the operating company.
type CompanyConfig struct {
	Name  string `yaml:"name"`
	TaxID string `yaml:"tax_id"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ImportConfig holds upload limits and batching.
type ImportConfig struct {
	MaxFileBytes    int64  `yaml:"max_file_bytes"`
	MaxDocuments    int    `yaml:"max_documents"`
	DraftBatchSize  int    `yaml:"draft_batch_size"`
	PostBatchSize   int    `yaml:"post_batch_size"`
	DefaultCurrency string `yaml:"default_currency"`
	ContinueOnError bool   `yaml:"continue_on_error"`
	InboxDir        string `yaml:"inbox_dir"`
	ProcessedDir    string `yaml:"processed_dir"`
}

// MatchingConfig tunes the fuzzy counterparty fallback.
type MatchingConfig struct {
	FuzzyThreshold     float64 `yaml:"fuzzy_threshold"`
	FuzzyMaxCandidates int     `yaml:"fuzzy_max_candidates"`
	TaxonomyFile       string  `yaml:"taxonomy_file,omitempty"`
}

// DuplicatesConfig sets the duplicate search window.
type DuplicatesConfig struct {
	WindowDays int `yaml:"window_days"`
	// IgnoreCompanyTaxID stops the company's own tax id from matching
	// pending drafts.
	IgnoreCompanyTaxID bool `yaml:"ignore_company_tax_id"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Environment variables that override file values.
const (
	EnvDBPath       = "BANKIMPORT_DB_PATH"
	EnvLogLevel     = "BANKIMPORT_LOG_LEVEL"
	EnvCompanyTaxID = "BANKIMPORT_COMPANY_TAX_ID"
	EnvMaxFileBytes = "BANKIMPORT_MAX_FILE_BYTES"
)

// Load reads a bankimport.yaml file from disk, fills unset values with
// defaults and applies environment overrides (a .env file in the working
// directory is loaded first when present).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("", "")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(companyName, taxID string) *Config {
	return &Config{
		Company: CompanyConfig{
			Name:  companyName,
			TaxID: taxID,
		},
		Database: DatabaseConfig{
			Path: "bankimport.db",
		},
		Import: ImportConfig{
			MaxFileBytes:    10 << 20,
			MaxDocuments:    10000,
			DraftBatchSize:  50,
			PostBatchSize:   20,
			DefaultCurrency: "RUB",
			ContinueOnError: true,
			InboxDir:        "inbox",
			ProcessedDir:    "inbox/processed",
		},
		Matching: MatchingConfig{
			FuzzyThreshold:     0.80,
			FuzzyMaxCandidates: 1000,
		},
		Duplicates: DuplicatesConfig{
			WindowDays: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks values the importer cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Company.TaxID == "" {
		missing = append(missing, "company.tax_id")
	}
	if c.Database.Path == "" {
		missing = append(missing, "database.path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	if c.Import.DraftBatchSize <= 0 || c.Import.PostBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.Matching.FuzzyThreshold <= 0 || c.Matching.FuzzyThreshold > 1 {
		return fmt.Errorf("matching.fuzzy_threshold must be in (0, 1], got %v", c.Matching.FuzzyThreshold)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvCompanyTaxID); v != "" {
		c.Company.TaxID = v
	}
	if v := os.Getenv(EnvMaxFileBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxFileBytes, err)
		}
		c.Import.MaxFileBytes = n
	}
	return nil
}
