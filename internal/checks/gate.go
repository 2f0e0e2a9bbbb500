package checks

import (
	"encoding/json"
	"fmt"

	"github.com/lucasnoah/texlog/internal/filter"
	"github.com/lucasnoah/texlog/internal/logparse"
	"github.com/lucasnoah/texlog/internal/report"
)

// GateLimits caps each diagnostic kind. A negative limit is unlimited.
type GateLimits struct {
	MaxErrors      int
	MaxWarnings    int
	MaxBadBoxes    int
	MaxMissingRefs int
}

// GateFailure describes one limit that was exceeded.
type GateFailure struct {
	Count   int    `json:"count"`
	Limit   int    `json:"limit"`
	Summary string `json:"summary"`
}

// GateResult is the structured output of a gate evaluation.
type GateResult struct {
	Gate     string                 `json:"gate"`
	Passed   bool                   `json:"passed"`
	Counts   logparse.Counts        `json:"counts"`
	Failures map[string]GateFailure `json:"failures,omitempty"`
}

// JSON returns the gate result as indented JSON.
func (g *GateResult) JSON() (string, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// failureOrder is the order failures are reported in: the per-kind limits in
// the order Evaluate checks them, then the build outcome.
var failureOrder = []string{
	logparse.KindError.String(),
	logparse.KindWarning.String(),
	logparse.KindBadBox.String(),
	logparse.KindMissingRef.String(),
	"exit_code",
	"timeout",
}

// FailureKeys returns the keys of Failures in a stable order.
func (g *GateResult) FailureKeys() []string {
	keys := make([]string, 0, len(g.Failures))
	for _, k := range failureOrder {
		if _, ok := g.Failures[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Evaluate checks counts against limits.
func Evaluate(gate string, counts logparse.Counts, limits GateLimits) *GateResult {
	g := &GateResult{
		Gate:     gate,
		Passed:   true,
		Counts:   counts,
		Failures: make(map[string]GateFailure),
	}
	check := func(kind logparse.Kind, count, limit int) {
		if limit < 0 || count <= limit {
			return
		}
		g.Passed = false
		g.Failures[kind.String()] = GateFailure{
			Count:   count,
			Limit:   limit,
			Summary: fmt.Sprintf("%d %s exceed limit %d", count, kind, limit),
		}
	}
	check(logparse.KindError, counts.Errors, limits.MaxErrors)
	check(logparse.KindWarning, counts.Warnings, limits.MaxWarnings)
	check(logparse.KindBadBox, counts.BadBoxes, limits.MaxBadBoxes)
	check(logparse.KindMissingRef, counts.MissingRefs, limits.MaxMissingRefs)
	return g
}

// GateOpts configures a gate run.
type GateOpts struct {
	Build   BuildConfig
	Limits  GateLimits
	Filters filter.Set
}

// RunGate builds the document, filters the parsed log and evaluates the
// remaining counts. A timeout or non-zero exit code fails the gate even
// when the log is clean. The raw build result is returned for DB logging.
func (r *Runner) RunGate(dir string, opts GateOpts) (*GateResult, *Result, error) {
	result, err := r.Run(dir, opts.Build)
	if err != nil {
		return nil, nil, fmt.Errorf("run build %q: %w", opts.Build.Command, err)
	}

	rep := report.Build(result.Source, result.Encoding, result.Parser, opts.Filters)
	gate := Evaluate(opts.Build.Command, rep.Kept(), opts.Limits)

	switch {
	case result.TimedOut:
		gate.Passed = false
		gate.Failures["timeout"] = GateFailure{Count: 1, Summary: result.Summary}
	case result.ExitCode != 0:
		gate.Passed = false
		gate.Failures["exit_code"] = GateFailure{
			Count:   result.ExitCode,
			Summary: fmt.Sprintf("build exited with code %d", result.ExitCode),
		}
	}

	return gate, result, nil
}
