package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/service"
)

var compareCmd = &cobra.Command{
	Use:   "compare <fileA> <fileB>",
	Short: "Compare two saved extraction results",
	Long: `Reads two document result JSON files (as produced by annotate or the HTTP
API) and prints a field-by-field similarity report. Useful for checking how
two extraction methods agree on the same source document.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := readResult(args[0])
		if err != nil {
			return err
		}
		b, err := readResult(args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, service.CompareRuns(a, b))
	},
}

func readResult(path string) (*domain.DocumentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result domain.DocumentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &result, nil
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
