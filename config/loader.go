package config

import (
	"log/slog"
	"os"
	"path/filepath"
)

// ProjectConfigFile is searched for in the working directory and its parents.
const ProjectConfigFile = "wikigraph.yaml"

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load builds the configuration from, in order of precedence:
// 1. Defaults
// 2. The explicit file, or wikigraph.yaml found from dir upwards
// 3. WIKIGRAPH_* environment variables
// Command-line flags are applied by the caller on top.
func (l *Loader) Load(explicit, dir string) (*Config, error) {
	config := DefaultConfig()

	path := explicit
	if path == "" {
		path = findProjectConfig(dir)
	}
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded config", slog.String("path", path))
		config = loaded
	} else {
		l.logger.Debug("no project config found")
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// findProjectConfig searches for wikigraph.yaml in dir and its parents.
func findProjectConfig(dir string) string {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
