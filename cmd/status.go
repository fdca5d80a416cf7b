package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the result files",
	Long:  "Counts outcomes per result file and overall: success, empty, not found, recovered near matches and other errors.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		parts, _ := cmd.Flags().GetInt("parts")

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		// Reading results needs no ledger.
		p := pipeline.New(chunk.NewStore(cfg.ResultDir(), cfg.ResultBase(), cfg.Output.BOM), nil)
		summary, err := p.Status(ctx, pipeline.PartRange(parts))
		if err != nil {
			return err
		}

		if format == "table" {
			formatSummary(os.Stdout, summary)
			return nil
		}
		return writeStructured(os.Stdout, format, summary)
	},
}

func init() {
	statusCmd.Flags().String("format", "table", "output format: table, json, yaml")
	statusCmd.Flags().Int("parts", 0, "limit the summary to parts 1..N (default all)")
	rootCmd.AddCommand(statusCmd)
}
