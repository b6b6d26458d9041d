package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/KaramelBytes/fileflow-cli/internal/config"
	"github.com/KaramelBytes/fileflow-cli/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	// Overrides for config keys (applied only when set on the command line)
	flagDelimiter   string
	flagLogFormat   string
	flagOnMalformed string
	flagWorkers     int
	// XLSX sheet selection
	flagSheetName  string
	flagSheetIndex int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "fileflow",
	Short: "FileFlow CLI: profile, summarise and transform tabular files",
	Long: `FileFlow profiles the columns of a CSV or XLSX file, computes descriptive statistics
and correlations, and streams the data through per-column filter and replace rules
into a preview or a new CSV file.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ~/.fileflow/config.yaml)")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.StringVar(&flagLogFormat, "log-format", "", "log format: text | json (overrides config)")
	f.StringVar(&flagDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (overrides config)")
	f.StringVar(&flagOnMalformed, "on-malformed", "", "malformed records: abort | skip (overrides config)")
	f.IntVar(&flagWorkers, "workers", 0, "max concurrent column reads (overrides config)")
	f.StringVar(&flagSheetName, "sheet-name", "", "XLSX: sheet name to read")
	f.IntVar(&flagSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults so read-only commands still work
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("delimiter") {
		cfg.Delimiter = flagDelimiter
	}
	if f.Changed("on-malformed") {
		cfg.OnMalformed = flagOnMalformed
	}
	if f.Changed("workers") && flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if f.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
}
