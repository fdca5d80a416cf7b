package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge every result file into the final table",
	Long: "Reads every result file once, in part order, and writes one row per input record with a single " +
		"final coordinate pair: the direct match when present, otherwise the near match.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputFlags(cmd)
		overrideString(cmd, "output", &cfg.Output.FinalFile)
		overrideString(cmd, "misses", &cfg.Output.MissesFile)
		parts, _ := cmd.Flags().GetInt("parts")

		env, err := initPipeline(ctx, "consolidate")
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := consolidateInput()
		if err != nil {
			return err
		}

		opts := pipeline.ConsolidateOptions{
			Input:  in,
			Parts:  parts,
			Output: cfg.FinalPath(),
			Misses: cfg.MissesPath(),
		}
		zap.L().With(zap.String("command", "consolidate")).Info("consolidating results",
			zap.Int("parts", opts.Parts),
			zap.String("output", opts.Output),
		)

		summary, err := env.Pipeline.Consolidate(ctx, opts)
		if err != nil {
			return err
		}

		formatSummary(os.Stdout, summary)
		fmt.Fprintf(os.Stdout, "Output:           %s\n", opts.Output)
		if opts.Misses != "" {
			fmt.Fprintf(os.Stdout, "Misses:           %s\n", opts.Misses)
		}
		return nil
	},
}

// consolidateInput opens the input table when it is available, so every
// part is checked against its chunk and a missing trailing chunk is caught.
// Without an input the consolidator falls back to the highest existing part.
func consolidateInput() (*chunk.Input, error) {
	if cfg.Input.Path == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Input.Path); err != nil {
		zap.L().Warn("input table not readable, consolidating existing parts",
			zap.String("input", cfg.Input.Path), zap.Error(err))
		return nil, nil
	}
	return openInput()
}

func init() {
	addInputFlags(consolidateCmd)
	consolidateCmd.Flags().String("output", "", "final table path (overrides output.final_file)")
	consolidateCmd.Flags().String("misses", "", "also write records without coordinates to this file")
	consolidateCmd.Flags().Int("parts", 0, "expected number of parts (default: derived from the input)")
	rootCmd.AddCommand(consolidateCmd)
}
