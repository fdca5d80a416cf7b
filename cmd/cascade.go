package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/normalize"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Recover not-found records through address normalization",
	Long: "Runs the normalization stages in order over every not_found record without a near match. " +
		"Each stage rewrites the address and keeps the first rewrite the service resolves.\n\n" +
		"Stages: " + strings.Join(normalize.Names(), ", "),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		overrideInt(cmd, "concurrency", &cfg.Cascade.Concurrency)
		overrideSecs(cmd, "timeout", &cfg.Cascade.TimeoutSecs)
		if cmd.Flags().Changed("stages") {
			cfg.Cascade.Stages, _ = cmd.Flags().GetStringSlice("stages")
		}
		parts, _ := cmd.Flags().GetInt("parts")

		stages, err := normalize.ByName(cfg.Cascade.Stages)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "cascade")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().With(zap.String("command", "cascade")).Info("running normalization cascade",
			zap.Strings("stages", cfg.Cascade.Stages),
			zap.Int("parts", parts),
			zap.Int("concurrency", cfg.Cascade.Concurrency),
		)

		report, err := env.Pipeline.Cascade(ctx, cascadeEngine(), stages, pipeline.PartRange(parts))
		if err != nil {
			return err
		}
		formatCascade(os.Stdout, report)
		return nil
	},
}

func init() {
	cascadeCmd.Flags().StringSlice("stages", nil, "stages to run, in order (overrides cascade.stages)")
	cascadeCmd.Flags().Int("concurrency", 0, "max in-flight requests (overrides cascade.concurrency)")
	cascadeCmd.Flags().Duration("timeout", 0, "per-request timeout (overrides cascade.timeout_secs)")
	cascadeCmd.Flags().Int("parts", 0, "limit the pass to parts 1..N (default all)")
	rootCmd.AddCommand(cascadeCmd)
}
