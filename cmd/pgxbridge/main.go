// Command pgxbridge runs the extraction pipeline from the terminal: pattern
// extraction, CPIC annotation, run comparison, and reference table inspection.
// Results go to stdout as indented JSON; diagnostics go to stderr.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgxbridge/internal/config"
)

var (
	flagConfig    string
	flagReference string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "pgxbridge",
	Short: "Extract and annotate pharmacogenomic facts from clinical reports",
	Long: `pgxbridge extracts gene/genotype/phenotype facts from clinical report text,
annotates them against the CPIC reference table, and compares extraction runs.

Commands print indented JSON to stdout so output can be piped to jq or saved
and fed back into compare.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file path")
	pf.StringVar(&flagReference, "reference", "", "reference table CSV path (overrides config)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "stderr log level (debug, info, warn, error)")
}

// cliLogger writes to stderr so stdout stays parseable JSON.
func cliLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

// referencePath resolves the table location: the --reference flag wins,
// otherwise the config file (or its defaults) decides.
func referencePath() (string, error) {
	if flagReference != "" {
		return flagReference, nil
	}

	var (
		manager *config.Manager
		err     error
	)
	if flagConfig != "" {
		manager, err = config.NewManagerWithPath(flagConfig)
	} else {
		manager, err = config.NewManager()
	}
	if err != nil {
		return "", fmt.Errorf("loading configuration: %w", err)
	}
	return manager.GetConfig().Reference.Path, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
