package cli

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/texlog/internal/checks"
	"github.com/lucasnoah/texlog/internal/db"
	"github.com/lucasnoah/texlog/internal/logparse"
	"github.com/lucasnoah/texlog/internal/report"
	"github.com/spf13/cobra"
)

// buildRunner is replaced in tests.
var buildRunner checks.CommandRunner = &checks.ExecRunner{}

var runCmd = &cobra.Command{
	Use:   "run [-- COMMAND...]",
	Short: "Build a document and classify the log it produces",
	Long: `Run a TeX build through sh -c, then parse the log it writes (--log) or its
standard output. Without a COMMAND the configured build.command is used.

When the log asks for another pass ("Rerun to get cross-references right")
the build is repeated up to --reruns times and the last pass is reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := resolveParseOpts(cmd, cfg)
		if err != nil {
			return err
		}

		b := cfg.Texlog.Build
		command := strings.Join(args, " ")
		if command == "" {
			command = b.Command
		}
		if command == "" {
			return fmt.Errorf("no build command: pass one after -- or set texlog.build.command")
		}
		dir := b.Dir
		if cmd.Flags().Changed("dir") {
			dir, _ = cmd.Flags().GetString("dir")
		}
		logFile := b.LogFile
		if cmd.Flags().Changed("log") {
			logFile, _ = cmd.Flags().GetString("log")
		}
		timeout := parseDuration(b.Timeout, checks.DefaultTimeout)
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetDuration("timeout")
		}
		reruns := b.MaxReruns
		if cmd.Flags().Changed("reruns") {
			reruns, _ = cmd.Flags().GetInt("reruns")
		}
		save, _ := cmd.Flags().GetBool("save")
		gate, _ := cmd.Flags().GetBool("gate")

		runner := checks.NewRunner(buildRunner)
		gateResult, result, err := runner.RunGate(dir, checks.GateOpts{
			Build: checks.BuildConfig{
				Command:      command,
				LogFile:      logFile,
				Encoding:     opts.encoding,
				Timeout:      timeout,
				ContextLines: opts.context,
				IncludeInfos: opts.infos,
				MaxReruns:    reruns,
			},
			Limits:  gateLimits(cfg),
			Filters: opts.filters,
		})
		if err != nil {
			return err
		}

		rep := report.Build(result.Source, result.Encoding, result.Parser, opts.filters)
		if err := renderReports(cmd, opts.format, []*report.Report{rep}); err != nil {
			return err
		}

		w := cmd.ErrOrStderr()
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		extra := ""
		if result.Reruns > 0 {
			extra = fmt.Sprintf(", %d reruns", result.Reruns)
		}
		fmt.Fprintf(w, "[%s] %s — exit %d (%dms%s)\n", status, command, result.ExitCode, result.DurationMs, extra)

		if save && !result.TimedOut {
			exit := result.ExitCode
			meta := &db.RunMeta{ExitCode: &exit, DurationMs: result.DurationMs}
			if err := saveRuns(cmd, cfg, []*report.Report{rep}, []*logparse.Parser{result.Parser}, meta); err != nil {
				return err
			}
		}

		if result.TimedOut {
			cmd.SilenceUsage = true
			return fmt.Errorf("build %s", result.Summary)
		}
		if gate && !gateResult.Passed {
			for _, kind := range gateResult.FailureKeys() {
				fmt.Fprintf(w, "[FAIL] %s: %s\n", kind, gateResult.Failures[kind].Summary)
			}
			cmd.SilenceUsage = true
			return fmt.Errorf("gate failed: %d limits exceeded", len(gateResult.Failures))
		}
		return nil
	},
}

func init() {
	addReportFlags(runCmd)
	runCmd.Flags().String("dir", ".", "Directory to run the build in")
	runCmd.Flags().String("log", "", "Log file to parse, relative to --dir (default: the build's stdout)")
	runCmd.Flags().Duration("timeout", 0, "Build timeout (default: build.timeout from config)")
	runCmd.Flags().Int("reruns", 0, "Maximum extra passes when the log asks for a rerun")
}
