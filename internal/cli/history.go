package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasnoah/texlog/internal/logparse"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [SOURCE]",
	Short: "List saved parse runs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var source string
		if len(args) == 1 {
			source = args[0]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		runs, err := d.ListParseRuns(source, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No parse runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-6s %-20s %-8s %-6s %-6s %-6s %-6s %-5s %s\n",
			"ID", "TIMESTAMP", "ENGINE", "ERR", "WARN", "BOX", "REF", "EXIT", "SOURCE")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
		for _, r := range runs {
			exit := "-"
			if r.ExitCode != nil {
				exit = strconv.Itoa(*r.ExitCode)
			}
			fmt.Fprintf(w, "%-6d %-20s %-8s %-6d %-6d %-6d %-6d %-5s %s\n",
				r.ID, r.Timestamp, r.Engine, r.Errors, r.Warnings, r.BadBoxes, r.MissingRefs, exit, r.Source)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show the diagnostics of a saved parse run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", args[0], err)
		}
		kindFlag, _ := cmd.Flags().GetString("kind")
		format, _ := cmd.Flags().GetString("format")
		var kind string
		if kindFlag != "" {
			k, err := logparse.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			kind = k.String()
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := d.GetParseRun(id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no parse run with ID %d", id)
		}
		diags, err := d.GetDiagnostics(id, kind)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format == "json" {
			data, err := json.MarshalIndent(struct {
				Run         any `json:"run"`
				Diagnostics any `json:"diagnostics"`
			}{run, diags}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
			return nil
		}

		fmt.Fprintf(w, "Run:       %d\n", run.ID)
		fmt.Fprintf(w, "Source:    %s\n", run.Source)
		if run.Engine != "" {
			fmt.Fprintf(w, "Engine:    %s %s\n", run.Engine, run.Version)
		}
		if run.Encoding != "" {
			fmt.Fprintf(w, "Encoding:  %s\n", run.Encoding)
		}
		fmt.Fprintf(w, "Summary:   Errors: %d, Warnings: %d, Badboxes: %d, Missing refs: %d\n",
			run.Errors, run.Warnings, run.BadBoxes, run.MissingRefs)
		if run.ExitCode != nil {
			fmt.Fprintf(w, "Exit Code: %d\n", *run.ExitCode)
			fmt.Fprintf(w, "Duration:  %dms\n", run.DurationMs)
		}
		fmt.Fprintf(w, "Timestamp: %s\n", run.Timestamp)

		for _, dg := range diags {
			fmt.Fprintln(w)
			typ, _ := dg.Message.Get("type")
			fmt.Fprintf(w, "[%s %d] %s\n", dg.Kind, dg.Position+1, typ)
			for _, k := range dg.Message.Keys() {
				if k == "type" {
					continue
				}
				v, _ := dg.Message.Get(k)
				fmt.Fprintf(w, "  %s: %s\n", k, v)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")

	showCmd.Flags().String("kind", "", "Only show one kind: error, warning, badbox, missing_ref, info")
	showCmd.Flags().String("format", "text", "Output format: text or json")
}
