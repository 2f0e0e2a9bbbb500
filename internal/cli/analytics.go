package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/texlog/internal/analytics"
	"github.com/lucasnoah/texlog/internal/db"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Query trends across saved parse runs",
}

// withStatsDB opens the store for a stats subcommand.
func withStatsDB(fn func(d *db.DB, since, format string, w io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		format, _ := cmd.Flags().GetString("format")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(d, since, format, cmd.OutOrStdout())
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

var statsSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Runs, clean rate, and average counts per log",
	RunE: withStatsDB(func(d *db.DB, since, format string, w io.Writer) error {
		results, err := analytics.QuerySourceTrends(d, since)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(w, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(w, "No parse runs found.")
			return nil
		}
		fmt.Fprintf(w, "%-5s %-7s %-8s %-8s %-8s %-12s %s\n",
			"RUNS", "CLEAN%", "AVG ERR", "AVG WARN", "AVG BOX", "LATEST E/W", "SOURCE")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
		for _, r := range results {
			fmt.Fprintf(w, "%-5d %-7.1f %-8.1f %-8.1f %-8.1f %-12s %s\n",
				r.Runs, r.CleanPct, r.AvgErrors, r.AvgWarnings, r.AvgBadBoxes,
				fmt.Sprintf("%d/%d", r.LatestErrors, r.LatestWarnings), r.Source)
		}
		return nil
	}),
}

var statsDurationCmd = &cobra.Command{
	Use:   "build-duration",
	Short: "Average and percentile build times per log",
	RunE: withStatsDB(func(d *db.DB, since, format string, w io.Writer) error {
		results, err := analytics.QueryBuildDurations(d, since)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(w, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(w, "No builds recorded. Save builds with `texlog run --save`.")
			return nil
		}
		fmt.Fprintf(w, "%-6s %-8s %-8s %-8s %s\n", "BUILDS", "AVG s", "P50 s", "P95 s", "SOURCE")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
		for _, r := range results {
			fmt.Fprintf(w, "%-6d %-8.1f %-8.1f %-8.1f %s\n", r.Count, r.Avg, r.P50, r.P95, r.Source)
		}
		return nil
	}),
}

var statsRecurringCmd = &cobra.Command{
	Use:   "recurring",
	Short: "Diagnostics that appear in the most runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStatsDB(func(d *db.DB, since, format string, w io.Writer) error {
			results, err := analytics.QueryRecurring(d, since, limit)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(w, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(w, "No diagnostics found.")
				return nil
			}
			fmt.Fprintf(w, "%-6s %-6s %-6s %-12s %-10s %s\n", "COUNT", "RUNS", "RUN%", "KIND", "TYPE", "MESSAGE")
			fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
			for _, r := range results {
				fmt.Fprintf(w, "%-6d %-6d %-6.1f %-12s %-10s %s\n", r.Count, r.Runs, r.RunPct, r.Kind, r.Type, r.Message)
			}
			return nil
		})(cmd, args)
	},
}

func init() {
	for _, c := range []*cobra.Command{statsSourcesCmd, statsDurationCmd, statsRecurringCmd} {
		c.Flags().String("since", "", "Only runs at or after this timestamp (YYYY-MM-DD[ HH:MM:SS])")
		c.Flags().String("format", "text", "Output format: text or json")
		statsCmd.AddCommand(c)
	}
	statsRecurringCmd.Flags().Int("limit", 20, "Maximum number of diagnostics to list (0 for all)")
}
