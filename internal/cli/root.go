package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lucasnoah/texlog/internal/config"
	"github.com/lucasnoah/texlog/internal/db"
	"github.com/lucasnoah/texlog/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// configFile overrides the config search path for every command.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "texlog",
	Short: "texlog — classify the diagnostics in TeX and LaTeX logs",
	Long: `texlog reads the log a TeX engine writes and sorts its lines into errors,
warnings, bad boxes, and missing references, each with the lines that follow it.

Configuration is read from ./texlog.yaml or ~/.texlog/config.yaml. Parse runs
saved with --save are stored in ~/.texlog/texlog.db unless a store is configured.`,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		asJSON, _ := cmd.Flags().GetBool("log-json")
		logging.Init(asJSON, logging.ParseLevel(level))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to texlog config file")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs to stderr as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads --config or the default search path and rejects an
// invalid config.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s (run `texlog config validate` for all %d)", errs[0], len(errs))
	}
	return cfg, nil
}

// openDB opens and migrates the configured store, returning it with a
// cleanup func.
func openDB(cfg *config.Config) (*db.DB, func(), error) {
	driver, dsn := cfg.Texlog.Store.Driver, cfg.Texlog.Store.DSN
	if dsn == "" && driver == db.DriverSQLite {
		var err error
		if dsn, err = db.DefaultDSN(); err != nil {
			return nil, nil, err
		}
	}
	d, err := db.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// parseDuration parses a duration string, falling back to a default.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// useColor resolves --color against the command's output.
func useColor(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	return cmd.OutOrStdout() == os.Stdout && !color.NoColor
}
