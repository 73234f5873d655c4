// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the assistant configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or are provided via CLI flags.
type Config struct {
	// Model
	Provider string            `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=gemini openai groq"`
	Model    string            `json:"model,omitempty" yaml:"model,omitempty"`  // Overrides every tier
	Models   map[string]string `json:"models,omitempty" yaml:"models,omitempty"` // Per-tier overrides: lite, standard, advanced

	// Data
	KnowledgeDir      string `json:"knowledge_dir,omitempty" yaml:"knowledge_dir,omitempty"` // Directory of provider-bound indexes
	DocsDir           string `json:"docs_dir,omitempty" yaml:"docs_dir,omitempty"`           // Guideline documents to index
	HistoryDir        string `json:"history_dir,omitempty" yaml:"history_dir,omitempty"`     // Cohort JSON files
	HistorySampleSize int    `json:"history_sample_size,omitempty" yaml:"history_sample_size,omitempty" validate:"gte=0,lte=100"`
	QuestionsFile     string `json:"questions_file,omitempty" yaml:"questions_file,omitempty"` // Replaces the built-in catalog

	// Pipeline
	StageTimeout Duration `json:"stage_timeout,omitempty" yaml:"stage_timeout,omitempty"`
	RetrievalK   int      `json:"retrieval_k,omitempty" yaml:"retrieval_k,omitempty" validate:"gte=0,lte=20"`

	// Persistence and export
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	ExportDir   string `json:"export_dir,omitempty" yaml:"export_dir,omitempty"`
	S3Bucket    string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Prefix    string `json:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`

	// Server
	Port       int      `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	SessionTTL Duration `json:"session_ttl,omitempty" yaml:"session_ttl,omitempty"`

	// Behavior
	UseBrowser bool `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Render guideline pages in a headless browser
	Verbose    bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Duration is a time.Duration written as a string such as "90s" or "2m".
type Duration time.Duration

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.set(s)
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.set(value.Value)
}

func (d *Duration) set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Provider:          "gemini",
		KnowledgeDir:      "data/knowledge",
		DocsDir:           "data/guidelines",
		HistoryDir:        "data/history",
		HistorySampleSize: 5,
		StageTimeout:      Duration(2 * time.Minute),
		RetrievalK:        5,
		ExportDir:         "output",
		Port:              8080,
		SessionTTL:        Duration(2 * time.Hour),
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
// Required values are checked by the commands that need them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.StageTimeout < 0 {
		return fmt.Errorf("config error: 'stage_timeout' must be non-negative")
	}
	for tier := range c.Models {
		switch tier {
		case "lite", "standard", "advanced":
		default:
			return fmt.Errorf("config error: unknown model tier %q", tier)
		}
	}
	if c.QuestionsFile != "" {
		if _, err := os.Stat(c.QuestionsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: questions file not found: %s", c.QuestionsFile)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Provider == "" {
		result.Provider = defaults.Provider
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.KnowledgeDir == "" {
		result.KnowledgeDir = defaults.KnowledgeDir
	}
	if result.DocsDir == "" {
		result.DocsDir = defaults.DocsDir
	}
	if result.HistoryDir == "" {
		result.HistoryDir = defaults.HistoryDir
	}
	if result.QuestionsFile == "" {
		result.QuestionsFile = defaults.QuestionsFile
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ExportDir == "" {
		result.ExportDir = defaults.ExportDir
	}
	if result.S3Bucket == "" {
		result.S3Bucket = defaults.S3Bucket
	}
	if result.S3Prefix == "" {
		result.S3Prefix = defaults.S3Prefix
	}

	// Numeric fields: use default if zero
	if result.HistorySampleSize == 0 {
		result.HistorySampleSize = defaults.HistorySampleSize
	}
	if result.StageTimeout == 0 {
		result.StageTimeout = defaults.StageTimeout
	}
	if result.RetrievalK == 0 {
		result.RetrievalK = defaults.RetrievalK
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.SessionTTL == 0 {
		result.SessionTTL = defaults.SessionTTL
	}

	if len(result.Models) == 0 && len(defaults.Models) > 0 {
		result.Models = make(map[string]string, len(defaults.Models))
		for k, v := range defaults.Models {
			result.Models[k] = v
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
