package config

import "github.com/lucasnoah/texlog/internal/filter"

// Config is the top-level configuration structure parsed from texlog YAML.
type Config struct {
	Texlog Texlog `yaml:"texlog"`
}

// Texlog holds parsing, reporting, gating, and storage settings.
type Texlog struct {
	ContextLines *int        `yaml:"context_lines"`
	Encoding     string      `yaml:"encoding"`
	Format       string      `yaml:"format"`
	IncludeInfos bool        `yaml:"include_infos"`
	Filters      filter.Spec `yaml:"filters"`
	Gate         Gate        `yaml:"gate"`
	Store        Store       `yaml:"store"`
	Build        Build       `yaml:"build"`
}

// Gate sets the maximum count per diagnostic kind a log may contain before
// `--gate` fails. A negative value means unlimited.
type Gate struct {
	MaxErrors      *int `yaml:"max_errors"`
	MaxWarnings    *int `yaml:"max_warnings"`
	MaxBadBoxes    *int `yaml:"max_badboxes"`
	MaxMissingRefs *int `yaml:"max_missing_refs"`
}

// Store selects where parse runs are recorded.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Build describes how `texlog run` invokes the TeX engine.
type Build struct {
	Command   string `yaml:"command"`
	Dir       string `yaml:"dir"`
	LogFile   string `yaml:"log_file"`
	Timeout   string `yaml:"timeout"`
	MaxReruns int    `yaml:"max_reruns"`
}

// Context returns the configured context width.
func (t Texlog) Context() int {
	if t.ContextLines == nil {
		return DefaultContextLines
	}
	return *t.ContextLines
}
