package main

import (
	"github.com/spf13/cobra"

	"github.com/pgxbridge/internal/reference"
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Reference table utilities",
}

var referenceStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row and gene counts for the reference table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := referencePath()
		if err != nil {
			return err
		}
		table, err := reference.Load(path, cliLogger())
		if err != nil {
			return err
		}

		out := struct {
			Path string `json:"path"`
			reference.Stats
		}{Path: table.Path(), Stats: table.Stats()}
		return printJSON(cmd, out)
	},
}

func init() {
	referenceCmd.AddCommand(referenceStatsCmd)
	rootCmd.AddCommand(referenceCmd)
}
