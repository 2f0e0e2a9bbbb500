package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func executeCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags undoes the previous Execute, since cobra keeps flag values on
// the package-level commands.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

const sampleLog = `This is pdfTeX, Version 3.141592653-2.6-1.40.25 (TeX Live 2023)
Package hyperref Warning: Draft mode on.
LaTeX Font Warning: Font shape ` + "`OT1/cmr/bx/it'" + ` undefined
! Undefined control sequence.
l.6 \dtae
Overfull \hbox (54.95697pt too wide) in paragraph at lines 397--397
LaTeX Warning: Citation ` + "`foo'" + ` on page 1 undefined on input line 7.
`

const cleanLog = `This is pdfTeX, Version 3.14
Package hyperref Warning: Draft mode on.
Output written on main.pdf (1 page).
`

// writeFile writes content under dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// testConfig writes a config whose store lives in dir.
func testConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	return writeFile(t, dir, "texlog.yaml", `texlog:
  store:
    driver: sqlite3
    dsn: `+filepath.Join(dir, "runs.db")+`
  filters:
    warnings:
      component: [Font]
`+extra)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"parse", "run", "history", "show", "stats", "serve", "config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestConfigSubcommands(t *testing.T) {
	subcmds := []string{"validate", "show", "init"}
	for _, sub := range subcmds {
		out, err := executeCommand("config", sub, "--help")
		if err != nil {
			t.Errorf("config %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("config %s --help produced no output", sub)
		}
	}
}

func TestDBSubcommands(t *testing.T) {
	subcmds := []string{"migrate", "reset"}
	for _, sub := range subcmds {
		out, err := executeCommand("db", sub, "--help")
		if err != nil {
			t.Errorf("db %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("db %s --help produced no output", sub)
		}
	}
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	logPath := writeFile(t, dir, "main.log", sampleLog)

	out, err := executeCommand("parse", "--config", cfg, logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Errors: 1, Warnings: 2, Badboxes: 1",
		"Engine: pdfTeX 3.141592653-2.6-1.40.25",
		"Warning 1/2 (Type Package)",
		"1 Warnings were ignored.",
		"Missing reference 1/1 (Type Missing Citation)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestParseCommand_NoFilter(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	logPath := writeFile(t, dir, "main.log", sampleLog)

	out, err := executeCommand("parse", "--config", cfg, "--no-filter", logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Warning 2/2 (Type LaTeX)") {
		t.Errorf("expected the Font warning to be shown\n%s", out)
	}
	if !strings.Contains(out, "0 Warnings were ignored.") {
		t.Errorf("expected no ignored warnings\n%s", out)
	}
}

func TestParseCommand_JSONKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	a := writeFile(t, dir, "a.log", sampleLog)
	b := writeFile(t, dir, "b.log", cleanLog)

	out, err := executeCommand("parse", "--config", cfg, "--format", "json", "-j", "2", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded []struct {
		Source string `json:"source"`
		Counts struct {
			Errors int `json:"errors"`
		} `json:"counts"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(decoded))
	}
	if decoded[0].Source != a || decoded[1].Source != b {
		t.Errorf("sources = %q, %q", decoded[0].Source, decoded[1].Source)
	}
	if decoded[0].Counts.Errors != 1 || decoded[1].Counts.Errors != 0 {
		t.Errorf("error counts = %d, %d", decoded[0].Counts.Errors, decoded[1].Counts.Errors)
	}
}

func TestParseCommand_Stdin(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")

	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(sampleLog))
	rootCmd.SetArgs([]string{"parse", "--config", cfg, "-"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "<stdin>") {
		t.Errorf("expected <stdin> caption\n%s", buf.String())
	}
}

func TestParseCommand_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	if _, err := executeCommand("parse", "--config", cfg, filepath.Join(dir, "nope.log")); err == nil {
		t.Fatal("expected error for missing log")
	}
}

func TestParseCommand_BadFlags(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	logPath := writeFile(t, dir, "main.log", cleanLog)

	if _, err := executeCommand("parse", "--config", cfg, "--format", "xml", logPath); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := executeCommand("parse", "--config", cfg, "--encoding", "klingon", logPath); err == nil {
		t.Error("expected error for unknown encoding")
	}
	if _, err := executeCommand("parse", "--config", cfg, "--context=-1", logPath); err == nil {
		t.Error("expected error for negative context")
	}
}

func TestParseCommand_Gate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	broken := writeFile(t, dir, "main.log", sampleLog)
	clean := writeFile(t, dir, "clean.log", cleanLog)

	if _, err := executeCommand("parse", "--config", cfg, "--gate", clean); err != nil {
		t.Errorf("expected clean log to pass the gate: %v", err)
	}

	out, err := executeCommand("parse", "--config", cfg, "--gate", broken, clean)
	if err == nil {
		t.Fatal("expected gate failure")
	}
	if !strings.Contains(err.Error(), "1 of 2 logs") {
		t.Errorf("unexpected error %q", err)
	}
	if !strings.Contains(out, "[FAIL] "+broken) {
		t.Errorf("expected failure line for %s\n%s", broken, out)
	}
}

func TestParseCommand_GateFailuresInKindOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "  gate:\n    max_badboxes: 0\n    max_missing_refs: 0\n")
	broken := writeFile(t, dir, "main.log", sampleLog)

	for i := 0; i < 5; i++ {
		out, err := executeCommand("parse", "--config", cfg, "--gate", broken)
		if err == nil {
			t.Fatal("expected gate failure")
		}
		e := strings.Index(out, "— error:")
		b := strings.Index(out, "— badbox:")
		m := strings.Index(out, "— missing_ref:")
		if e < 0 || b < 0 || m < 0 {
			t.Fatalf("expected error, badbox and missing_ref failures\n%s", out)
		}
		if !(e < b && b < m) {
			t.Fatalf("failures out of order\n%s", out)
		}
	}
}

func TestParseCommand_StdinTwice(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")

	_, err := executeCommand("parse", "--config", cfg, "-", "-")
	if err == nil {
		t.Fatal("expected error when - is given twice")
	}
	if !strings.Contains(err.Error(), "only once") {
		t.Errorf("unexpected error %q", err)
	}
}

func TestParseSaveHistoryShow(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	logPath := writeFile(t, dir, "main.log", sampleLog)

	out, err := executeCommand("parse", "--config", cfg, "--save", logPath)
	if err != nil {
		t.Fatalf("parse --save: %v", err)
	}
	if !strings.Contains(out, "as run 1") {
		t.Errorf("expected save confirmation\n%s", out)
	}

	out, err = executeCommand("history", "--config", cfg)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, logPath) || !strings.Contains(out, "pdfTeX") {
		t.Errorf("history missing run\n%s", out)
	}

	out, err = executeCommand("show", "--config", cfg, "--kind", "badboxes", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "[badbox 1] Over") || !strings.Contains(out, "lines: 397--397") {
		t.Errorf("show output missing bad box\n%s", out)
	}
	if strings.Contains(out, "[error") {
		t.Errorf("--kind should hide errors\n%s", out)
	}

	if _, err := executeCommand("show", "--config", cfg, "99"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestStatsCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	logPath := writeFile(t, dir, "main.log", sampleLog)
	cleanPath := writeFile(t, dir, "clean.log", cleanLog)

	if _, err := executeCommand("parse", "--config", cfg, "--save", logPath, cleanPath); err != nil {
		t.Fatalf("parse --save: %v", err)
	}

	out, err := executeCommand("stats", "sources", "--config", cfg)
	if err != nil {
		t.Fatalf("stats sources: %v", err)
	}
	if !strings.Contains(out, logPath) || !strings.Contains(out, cleanPath) {
		t.Errorf("stats sources missing logs\n%s", out)
	}

	out, err = executeCommand("stats", "recurring", "--config", cfg, "--format", "json", "--limit", "1")
	if err != nil {
		t.Fatalf("stats recurring: %v", err)
	}
	var recurring []struct {
		Message string `json:"message"`
		Runs    int    `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &recurring); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(recurring) != 1 || recurring[0].Message != "Draft mode on." || recurring[0].Runs != 2 {
		t.Errorf("recurring = %+v", recurring)
	}

	out, err = executeCommand("stats", "build-duration", "--config", cfg)
	if err != nil {
		t.Fatalf("stats build-duration: %v", err)
	}
	if !strings.Contains(out, "No builds recorded.") {
		t.Errorf("plain parses should not count as builds\n%s", out)
	}
}

func TestHistoryEmpty(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	out, err := executeCommand("history", "--config", cfg)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No parse runs found.") {
		t.Errorf("unexpected output %q", out)
	}
}

// fakeBuild returns canned output for every command.
type fakeBuild struct {
	stdout   string
	exitCode int
	commands []string
}

func (f *fakeBuild) Run(ctx context.Context, dir, command string) (string, string, int, error) {
	f.commands = append(f.commands, command)
	return f.stdout, "", f.exitCode, nil
}

func withBuild(t *testing.T, fb *fakeBuild) {
	t.Helper()
	prev := buildRunner
	buildRunner = fb
	t.Cleanup(func() { buildRunner = prev })
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	fb := &fakeBuild{stdout: cleanLog}
	withBuild(t, fb)

	out, err := executeCommand("run", "--config", cfg, "--", "pdflatex", "-interaction=nonstopmode", "main.tex")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if len(fb.commands) != 1 || fb.commands[0] != "pdflatex -interaction=nonstopmode main.tex" {
		t.Errorf("commands = %q", fb.commands)
	}
	if !strings.Contains(out, "[PASS] pdflatex") {
		t.Errorf("expected PASS line\n%s", out)
	}
}

func TestRunCommand_ConfiguredCommandAndGate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "  build:\n    command: latexmk -pdf main.tex\n")
	fb := &fakeBuild{stdout: sampleLog, exitCode: 1}
	withBuild(t, fb)

	out, err := executeCommand("run", "--config", cfg, "--gate", "--save")
	if err == nil {
		t.Fatal("expected gate failure")
	}
	if len(fb.commands) != 1 || fb.commands[0] != "latexmk -pdf main.tex" {
		t.Errorf("commands = %q", fb.commands)
	}
	if !strings.Contains(out, "[FAIL] exit_code") || !strings.Contains(out, "[FAIL] error") {
		t.Errorf("expected exit code and error failures\n%s", out)
	}
	if !strings.Contains(out, "as run 1") {
		t.Errorf("expected the run to be saved\n%s", out)
	}
}

func TestRunCommand_NoCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	withBuild(t, &fakeBuild{})
	if _, err := executeCommand("run", "--config", cfg); err == nil {
		t.Fatal("expected error without a build command")
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := testConfig(t, dir, "")
	out, err := executeCommand("config", "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("unexpected output %q", out)
	}

	bad := writeFile(t, dir, "bad.yaml", "texlog:\n  format: xml\n  context_lines: -3\n")
	out, err = executeCommand("config", "validate", "--config", bad)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out, "texlog.format") || !strings.Contains(out, "texlog.context_lines") {
		t.Errorf("expected both errors listed\n%s", out)
	}
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	out, err := executeCommand("config", "show", "--config", cfg)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"context_lines: 2", "format: text", "max_errors: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texlog.yaml")
	if _, err := executeCommand("config", "init", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "rerunfilecheck") {
		t.Errorf("expected default filters in written config\n%s", data)
	}
	if _, err := executeCommand("config", "init", path); err == nil {
		t.Error("expected error when file exists without --force")
	}
	if _, err := executeCommand("config", "init", "--force", path); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestDBCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "")
	if _, err := executeCommand("db", "migrate", "--config", cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := executeCommand("db", "reset", "--config", cfg); err == nil {
		t.Error("expected reset to require --yes")
	}
	out, err := executeCommand("db", "reset", "--config", cfg, "--yes")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Database reset.") {
		t.Errorf("unexpected output %q", out)
	}
}
