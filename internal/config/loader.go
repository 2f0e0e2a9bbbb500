package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/texlog/internal/filter"
	"gopkg.in/yaml.v3"
)

const (
	DefaultContextLines = 2
	DefaultFormat       = "text"
	DefaultEncoding     = "auto"
	DefaultDriver       = "sqlite3"
	DefaultTimeout      = "5m"
)

// Load reads and parses a texlog configuration from the given YAML file path.
// After parsing, it fills in defaults for anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./texlog.yaml, ~/.texlog/config.yaml.
// When neither exists the built-in Default is returned.
func LoadDefault() (*Config, error) {
	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

func searchPaths() []string {
	candidates := []string{"texlog.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".texlog", "config.yaml"))
	}
	return candidates
}

// Default returns the configuration used when no file is found. Its filters
// hide the warnings and errors that are routine in a multi-pass build.
func Default() *Config {
	cfg := &Config{Texlog: Texlog{
		Filters: defaultFilters(),
	}}
	applyDefaults(cfg)
	return cfg
}

func defaultFilters() filter.Spec {
	return filter.Spec{
		Warnings: map[string][]string{
			"message": {
				"(.*) float specifier changed to (.*)",
				"(.*)may have changed. Rerun to get cross(.*)",
				"(.*)run BibTeX on the file(.*)",
			},
			"component": {"Font"},
			"package":   {"rerunfilecheck"},
		},
		Errors: map[string][]string{
			"message": {"Dimension too large"},
		},
	}
}

// applyDefaults fills unset fields. Gate limits default to "no errors, any
// number of everything else".
func applyDefaults(cfg *Config) {
	t := &cfg.Texlog

	if t.ContextLines == nil {
		n := DefaultContextLines
		t.ContextLines = &n
	}
	if t.Format == "" {
		t.Format = DefaultFormat
	}
	if t.Encoding == "" {
		t.Encoding = DefaultEncoding
	}
	if t.Store.Driver == "" {
		t.Store.Driver = DefaultDriver
	}
	if t.Build.Timeout == "" {
		t.Build.Timeout = DefaultTimeout
	}
	if t.Build.Dir == "" {
		t.Build.Dir = "."
	}

	t.Gate.MaxErrors = orDefault(t.Gate.MaxErrors, 0)
	t.Gate.MaxWarnings = orDefault(t.Gate.MaxWarnings, -1)
	t.Gate.MaxBadBoxes = orDefault(t.Gate.MaxBadBoxes, -1)
	t.Gate.MaxMissingRefs = orDefault(t.Gate.MaxMissingRefs, -1)
}

func orDefault(v *int, def int) *int {
	if v != nil {
		return v
	}
	return &def
}
