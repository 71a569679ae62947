// Package config provides configuration loading for wikigraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"wikigraph/internal/logging"
	"wikigraph/linkmatch"
	"wikigraph/structural"
)

// Config represents the complete wikigraph configuration.
type Config struct {
	// Recovery is the structural recovery strategy name.
	Recovery string         `yaml:"recovery"`
	Log      LogConfig      `yaml:"log"`
	Semantic SemanticConfig `yaml:"semantic"`
	Links    LinksConfig    `yaml:"links"`
	Output   OutputConfig   `yaml:"output"`
	Store    StoreConfig    `yaml:"store"`
	Batch    BatchConfig    `yaml:"batch"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SemanticConfig configures semantic extraction.
type SemanticConfig struct {
	// MaterializeBacklinks appends a BACKLINK edge for every link.
	MaterializeBacklinks bool `yaml:"materialize_backlinks"`
}

// LinksConfig configures link classification.
type LinksConfig struct {
	Rules []linkmatch.Rule `yaml:"rules"`
	// RulesFile is a YAML rules file; inline rules override it by name.
	RulesFile string `yaml:"rules_file"`
}

// OutputConfig configures JSON rendering.
type OutputConfig struct {
	Pretty   bool `yaml:"pretty"`
	Compress bool `yaml:"compress"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig configures multi-document compilation.
type BatchConfig struct {
	Include string `yaml:"include"`
	Workers int    `yaml:"workers"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		Recovery: structural.DefaultRecovery.String(),
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Store: StoreConfig{
			Path: filepath.Join(".wikigraph", "wiki.db"),
		},
		Batch: BatchConfig{
			Include: "**/*.{wiki,creole,txt}",
			Workers: 4,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := structural.ParseRecoveryStrategy(c.Recovery); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	for _, r := range c.Links.Rules {
		if r.Name == "" {
			return fmt.Errorf("links.rules: rule without a name")
		}
		for _, p := range r.Patterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("links.rules: rule %q: invalid pattern %q", r.Name, p)
			}
		}
	}
	if !doublestar.ValidatePattern(c.Batch.Include) {
		return fmt.Errorf("batch.include: invalid pattern %q", c.Batch.Include)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers)
	}
	return nil
}

// RecoveryStrategy returns the parsed recovery strategy.
func (c *Config) RecoveryStrategy() (structural.RecoveryStrategy, error) {
	return structural.ParseRecoveryStrategy(c.Recovery)
}

// Matcher builds the link classifier from the rules file and the inline
// rules. A missing rules file is not an error.
func (c *Config) Matcher() (*linkmatch.Matcher, error) {
	m := linkmatch.NewMatcher(nil)
	if c.Links.RulesFile != "" {
		loaded, err := linkmatch.LoadRulesOrEmpty(c.Links.RulesFile)
		if err != nil {
			return nil, err
		}
		m = loaded
	}
	for _, r := range c.Links.Rules {
		m.AddRule(r.Name, r.Patterns)
	}
	return m, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from WIKIGRAPH_* environment variables.
func (c *Config) ApplyEnv() {
	c.Recovery = getEnv("WIKIGRAPH_RECOVERY", c.Recovery)
	c.Log.Level = getEnv("WIKIGRAPH_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("WIKIGRAPH_LOG_FORMAT", c.Log.Format)
	c.Store.Path = getEnv("WIKIGRAPH_DB", c.Store.Path)
	c.Batch.Workers = getEnvInt("WIKIGRAPH_WORKERS", c.Batch.Workers)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
