package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/reference"
	"github.com/pgxbridge/internal/service"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <file>",
	Short: "Extract, annotate, and summarize a text report",
	Long: `Runs the full pipeline over a plain-text clinical report: pattern
extraction, CPIC reference annotation, priority categorization, and summary
statistics. Prints the complete document result as JSON, in the same shape
the HTTP API returns and the compare command consumes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		logger := cliLogger()
		path, err := referencePath()
		if err != nil {
			return err
		}
		table, err := reference.Load(path, logger)
		if err != nil {
			return err
		}

		pipeline := service.NewPipeline(table, logger)
		result, err := pipeline.ProcessText(cmd.Context(), domain.PATTERN_EXTRACTION, string(data))
		if err != nil {
			return err
		}
		result.Filename = filepath.Base(args[0])
		return printJSON(cmd, result)
	},
}

func init() {
	rootCmd.AddCommand(annotateCmd)
}
