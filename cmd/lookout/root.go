package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lookout/internal/logging"
	"lookout/internal/run"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "lookout",
	Short: "Classify CI job failures and file deduplicated tracker issues",
	Long: "Lookout extracts failures from a CI job run's artifacts (JUnit reports\n" +
		"and pod status markers), routes them through an ordered rule set, and\n" +
		"files or updates tracker issues deduplicated by failure fingerprint.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		// Preconditions fail before any tracker mutation and get their
		// own exit code; everything else is a partial or failed run.
		var pre *run.PreconditionError
		if errors.As(err, &pre) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
