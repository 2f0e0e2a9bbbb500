package config

import (
	"fmt"
	"time"

	"github.com/lucasnoah/texlog/internal/filter"
	"github.com/lucasnoah/texlog/internal/textenc"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedFormats is the set of valid report formats.
var recognizedFormats = map[string]bool{
	"text": true,
	"json": true,
}

// recognizedDrivers is the set of database/sql drivers the store can open.
var recognizedDrivers = map[string]bool{
	"sqlite3":  true,
	"postgres": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	t := cfg.Texlog

	if t.ContextLines != nil && *t.ContextLines < 0 {
		errs = append(errs, ValidationError{
			Field:   "texlog.context_lines",
			Message: fmt.Sprintf("must be >= 0, got %d", *t.ContextLines),
		})
	}

	if !recognizedFormats[t.Format] {
		errs = append(errs, ValidationError{
			Field:   "texlog.format",
			Message: fmt.Sprintf("unrecognized format %q", t.Format),
		})
	}

	if !textenc.Valid(t.Encoding) {
		errs = append(errs, ValidationError{
			Field:   "texlog.encoding",
			Message: fmt.Sprintf("unknown encoding %q", t.Encoding),
		})
	}

	if !recognizedDrivers[t.Store.Driver] {
		errs = append(errs, ValidationError{
			Field:   "texlog.store.driver",
			Message: fmt.Sprintf("unrecognized driver %q", t.Store.Driver),
		})
	}
	if t.Store.Driver == "postgres" && t.Store.DSN == "" {
		errs = append(errs, ValidationError{
			Field:   "texlog.store.dsn",
			Message: "is required for the postgres driver",
		})
	}

	if t.Build.Timeout != "" {
		if d, err := time.ParseDuration(t.Build.Timeout); err != nil || d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "texlog.build.timeout",
				Message: fmt.Sprintf("invalid duration %q", t.Build.Timeout),
			})
		}
	}

	if t.Build.MaxReruns < 0 {
		errs = append(errs, ValidationError{
			Field:   "texlog.build.max_reruns",
			Message: fmt.Sprintf("must be >= 0, got %d", t.Build.MaxReruns),
		})
	}

	// Validate every filter pattern compiles
	for _, list := range []struct {
		name string
		spec map[string][]string
	}{
		{"warnings", t.Filters.Warnings},
		{"errors", t.Filters.Errors},
		{"badboxes", t.Filters.BadBoxes},
		{"missing_refs", t.Filters.MissingRefs},
		{"infos", t.Filters.Infos},
	} {
		for attr, patterns := range list.spec {
			for _, pat := range patterns {
				if _, err := filter.Compile(map[string][]string{attr: {pat}}); err != nil {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("texlog.filters.%s.%s", list.name, attr),
						Message: fmt.Sprintf("invalid pattern %q", pat),
					})
				}
			}
		}
	}

	return errs
}
