package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/lucasnoah/texlog/internal/checks"
	"github.com/lucasnoah/texlog/internal/config"
	"github.com/lucasnoah/texlog/internal/db"
	"github.com/lucasnoah/texlog/internal/filter"
	"github.com/lucasnoah/texlog/internal/logparse"
	"github.com/lucasnoah/texlog/internal/report"
	"github.com/lucasnoah/texlog/internal/textenc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// stdinName is the FILE argument that reads the log from standard input.
const stdinName = "-"

var parseCmd = &cobra.Command{
	Use:   "parse FILE...",
	Short: "Classify the diagnostics in one or more TeX logs",
	Long: `Parse each log file and print its errors, warnings, bad boxes, and missing
references. Use "-" to read a log from standard input.

Configured filters hide routine diagnostics unless --no-filter is given. With
--gate the command fails when any log exceeds the configured limits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if n := countStdin(args); n > 1 {
			return fmt.Errorf("standard input (%q) can be parsed only once, got it %d times", stdinName, n)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := resolveParseOpts(cmd, cfg)
		if err != nil {
			return err
		}
		jobs, _ := cmd.Flags().GetInt("jobs")
		save, _ := cmd.Flags().GetBool("save")
		gate, _ := cmd.Flags().GetBool("gate")

		parsers := make([]*logparse.Parser, len(args))
		encodings := make([]string, len(args))

		g := new(errgroup.Group)
		if jobs > 0 {
			g.SetLimit(jobs)
		}
		for i, path := range args {
			g.Go(func() error {
				p, enc, err := parseSource(path, opts, cmd.InOrStdin())
				if err != nil {
					return err
				}
				parsers[i], encodings[i] = p, enc
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		reports := make([]*report.Report, len(args))
		for i, path := range args {
			reports[i] = report.Build(sourceName(path), encodings[i], parsers[i], opts.filters)
		}

		if err := renderReports(cmd, opts.format, reports); err != nil {
			return err
		}

		if save {
			if err := saveRuns(cmd, cfg, reports, parsers, nil); err != nil {
				return err
			}
		}

		if gate {
			return gateReports(cmd, cfg, reports)
		}
		return nil
	},
}

// parseOpts is the config with command-line overrides applied.
type parseOpts struct {
	context  int
	encoding string
	format   string
	infos    bool
	filters  filter.Set
}

func resolveParseOpts(cmd *cobra.Command, cfg *config.Config) (parseOpts, error) {
	t := cfg.Texlog
	opts := parseOpts{
		context:  t.Context(),
		encoding: t.Encoding,
		format:   t.Format,
		infos:    t.IncludeInfos,
	}
	flags := cmd.Flags()
	if flags.Changed("context") {
		opts.context, _ = flags.GetInt("context")
		if opts.context < 0 {
			return opts, fmt.Errorf("--context must be >= 0, got %d", opts.context)
		}
	}
	if flags.Changed("encoding") {
		opts.encoding, _ = flags.GetString("encoding")
		if !textenc.Valid(opts.encoding) {
			return opts, fmt.Errorf("unknown encoding %q", opts.encoding)
		}
	}
	if flags.Changed("format") {
		opts.format, _ = flags.GetString("format")
	}
	if opts.format != "text" && opts.format != "json" {
		return opts, fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}
	if flags.Changed("infos") {
		opts.infos, _ = flags.GetBool("infos")
	}

	if noFilter, _ := flags.GetBool("no-filter"); !noFilter {
		set, err := filter.CompileSet(t.Filters)
		if err != nil {
			return opts, fmt.Errorf("compile filters: %w", err)
		}
		opts.filters = set
	}
	return opts, nil
}

// parseSource decodes and parses one FILE argument.
func parseSource(path string, opts parseOpts, stdin io.Reader) (*logparse.Parser, string, error) {
	var (
		rd       io.Reader
		encoding string
	)
	if path == stdinName {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}
		name := opts.encoding
		if name == "" || name == textenc.Auto {
			name = textenc.Detect(data)
		}
		rd, encoding, err = textenc.NewReader(bytes.NewReader(data), name)
		if err != nil {
			return nil, "", err
		}
	} else {
		f, err := textenc.Open(path, opts.encoding)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		rd, encoding = f, f.Encoding
	}

	p := logparse.New(
		logparse.WithContextLines(opts.context),
		logparse.WithInfos(opts.infos),
		logparse.WithSourceEncoding(encoding),
		logparse.WithLogger(slog.Default().With("source", sourceName(path))),
	)
	if err := p.ProcessReader(rd); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", sourceName(path), err)
	}
	slog.Debug("parsed log", "source", sourceName(path), "encoding", encoding, "summary", p.String())
	return p, encoding, nil
}

func countStdin(args []string) int {
	n := 0
	for _, a := range args {
		if a == stdinName {
			n++
		}
	}
	return n
}

func sourceName(path string) string {
	if path == stdinName {
		return "<stdin>"
	}
	return path
}

func renderReports(cmd *cobra.Command, format string, reports []*report.Report) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		return report.WriteJSON(w, reports)
	}
	opts := report.Options{Color: useColor(cmd)}
	opts.ShowContext, _ = cmd.Flags().GetBool("show-context")
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := report.WriteText(w, r, opts); err != nil {
			return err
		}
	}
	return nil
}

// saveRuns records each report's parser in the store. meta, when set,
// supplies the exit code and duration of the build that produced the logs.
func saveRuns(cmd *cobra.Command, cfg *config.Config, reports []*report.Report, parsers []*logparse.Parser, meta *db.RunMeta) error {
	d, cleanup, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for i, r := range reports {
		m := db.RunMeta{Source: r.Source, Encoding: r.Encoding}
		if meta != nil {
			m.ExitCode, m.DurationMs = meta.ExitCode, meta.DurationMs
		}
		id, err := d.LogParseRun(m, parsers[i])
		if err != nil {
			return fmt.Errorf("save %s: %w", r.Source, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s as run %d\n", r.Source, id)
	}
	return nil
}

// gateReports evaluates every report's filtered counts against the
// configured limits.
func gateReports(cmd *cobra.Command, cfg *config.Config, reports []*report.Report) error {
	limits := gateLimits(cfg)
	failed := 0
	w := cmd.ErrOrStderr()
	for _, r := range reports {
		res := checks.Evaluate(r.Source, r.Kept(), limits)
		if res.Passed {
			continue
		}
		failed++
		for _, kind := range res.FailureKeys() {
			fmt.Fprintf(w, "[FAIL] %s — %s: %s\n", r.Source, kind, res.Failures[kind].Summary)
		}
	}
	if failed > 0 {
		cmd.SilenceUsage = true
		return fmt.Errorf("gate failed: %d of %d logs exceeded limits", failed, len(reports))
	}
	return nil
}

func gateLimits(cfg *config.Config) checks.GateLimits {
	g := cfg.Texlog.Gate
	deref := func(v *int, def int) int {
		if v == nil {
			return def
		}
		return *v
	}
	return checks.GateLimits{
		MaxErrors:      deref(g.MaxErrors, 0),
		MaxWarnings:    deref(g.MaxWarnings, -1),
		MaxBadBoxes:    deref(g.MaxBadBoxes, -1),
		MaxMissingRefs: deref(g.MaxMissingRefs, -1),
	}
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().Int("context", logparse.DefaultContextLines, "Lines of context kept after each diagnostic")
	cmd.Flags().String("encoding", textenc.Auto, "Log encoding: auto, utf-8, latin-1, windows-1252, utf-16, or a WHATWG label")
	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().Bool("infos", false, "Also collect \"... Info: ...\" lines")
	cmd.Flags().Bool("no-filter", false, "Show diagnostics the configured filters would hide")
	cmd.Flags().Bool("show-context", false, "Print the context lines under each diagnostic")
	cmd.Flags().String("color", "auto", "Colour the text report: auto, always, never")
	cmd.Flags().Bool("save", false, "Record the parse in the run store")
	cmd.Flags().Bool("gate", false, "Fail when filtered counts exceed the configured limits")
}

func init() {
	addReportFlags(parseCmd)
	parseCmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "Maximum number of logs parsed at once")
}
