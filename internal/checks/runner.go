package checks

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasnoah/texlog/internal/logparse"
	"github.com/lucasnoah/texlog/internal/textenc"
)

// DefaultTimeout applies when BuildConfig.Timeout is unset.
const DefaultTimeout = 5 * time.Minute

// Result holds the structured outcome of one build.
type Result struct {
	Command    string           `json:"command"`
	Passed     bool             `json:"passed"`
	Reruns     int              `json:"reruns"`
	ExitCode   int              `json:"exit_code"`
	DurationMs int              `json:"duration_ms"`
	Summary    string           `json:"summary"`
	Source     string           `json:"source"`
	Encoding   string           `json:"encoding,omitempty"`
	TimedOut   bool             `json:"timed_out,omitempty"`
	Stdout     string           `json:"stdout,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
	Parser     *logparse.Parser `json:"-"`
}

// BuildConfig describes how to build a document and where its log lands.
type BuildConfig struct {
	Command      string
	LogFile      string // relative to the build dir; empty parses stdout
	Encoding     string
	Timeout      time.Duration
	ContextLines int
	IncludeInfos bool
	MaxReruns    int
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes builds and parses their logs.
type Runner struct {
	cmd    CommandRunner
	logger *slog.Logger
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	return &Runner{cmd: cmd, logger: slog.Default()}
}

// Run builds once in dir and parses the resulting log. When the log asks
// for another pass ("Rerun to get ...") the build is repeated, up to
// cfg.MaxReruns extra times, and the last pass is reported.
func (r *Runner) Run(dir string, cfg BuildConfig) (*Result, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result, err := r.runOnce(dir, cfg, timeout)
	if err != nil {
		return nil, err
	}

	for result.Reruns < cfg.MaxReruns && !result.TimedOut && wantsRerun(result.Parser) {
		reruns := result.Reruns + 1
		r.logger.Info("log requests another pass", "command", cfg.Command, "pass", reruns+1)
		result, err = r.runOnce(dir, cfg, timeout)
		if err != nil {
			return nil, fmt.Errorf("rerun %d: %w", reruns, err)
		}
		result.Reruns = reruns
	}

	return result, nil
}

// runOnce executes the build command once and parses its log.
func (r *Runner) runOnce(dir string, cfg BuildConfig, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(ctx, dir, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		// Context deadline exceeded → timeout
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{
				Command:    cfg.Command,
				Passed:     false,
				ExitCode:   -1,
				DurationMs: durationMs,
				Summary:    fmt.Sprintf("timeout after %s", timeout),
				TimedOut:   true,
				Stdout:     stdout,
				Stderr:     stderr,
				Parser:     logparse.New(),
			}, nil
		}
		return nil, fmt.Errorf("run build %q: %w", cfg.Command, err)
	}

	p, source, encoding, err := r.parseLog(dir, cfg, stdout)
	if err != nil {
		return nil, err
	}

	return &Result{
		Command:    cfg.Command,
		Passed:     exitCode == 0 && len(p.Errors) == 0,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Summary:    p.String(),
		Source:     source,
		Encoding:   encoding,
		Stdout:     stdout,
		Stderr:     stderr,
		Parser:     p,
	}, nil
}

// parseLog parses the named log file, or the captured stdout when the
// build config has none.
func (r *Runner) parseLog(dir string, cfg BuildConfig, stdout string) (*logparse.Parser, string, string, error) {
	newParser := func(encoding string) *logparse.Parser {
		return logparse.New(
			logparse.WithContextLines(cfg.ContextLines),
			logparse.WithInfos(cfg.IncludeInfos),
			logparse.WithSourceEncoding(encoding),
			logparse.WithLogger(r.logger),
		)
	}

	if cfg.LogFile == "" {
		name := cfg.Encoding
		if name == "" || name == textenc.Auto {
			name = textenc.Detect([]byte(stdout))
		}
		rd, canonical, err := textenc.NewReader(strings.NewReader(stdout), name)
		if err != nil {
			return nil, "", "", err
		}
		p := newParser(canonical)
		if err := p.ProcessReader(rd); err != nil {
			return nil, "", "", fmt.Errorf("parse build output: %w", err)
		}
		return p, "stdout", canonical, nil
	}

	path := cfg.LogFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	f, err := textenc.Open(path, cfg.Encoding)
	if err != nil {
		return nil, "", "", err
	}
	defer f.Close()
	p := newParser(f.Encoding)
	if err := p.ProcessReader(f); err != nil {
		return nil, "", "", fmt.Errorf("parse %s: %w", path, err)
	}
	return p, path, f.Encoding, nil
}

// wantsRerun reports whether any warning asks for another engine pass.
func wantsRerun(p *logparse.Parser) bool {
	for _, w := range p.Warnings {
		msg, err := w.Get("message")
		if err == nil && strings.Contains(msg, "Rerun to get") {
			return true
		}
	}
	return false
}
