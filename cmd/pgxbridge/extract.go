package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/service"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract raw gene facts from a text report",
	Long: `Runs pattern extraction over a plain-text clinical report and prints the
raw gene facts and parsed patient fields as JSON. Facts are not annotated,
so no reference table is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		text := string(data)

		logger := cliLogger()
		out := struct {
			Patient domain.PatientInfo   `json:"patient_info"`
			Facts   []domain.RawGeneFact `json:"facts"`
		}{
			Patient: service.NewPatientParser(logger).Parse(text),
			Facts:   service.NewExtractor(logger).Extract(text),
		}
		return printJSON(cmd, out)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
