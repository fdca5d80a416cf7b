package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-resolve records that failed with a transient error",
	Long: "Re-resolves every communication_error and/or timeout record in the result files with a longer " +
		"timeout and more attempts. Records that no longer carry the status are left alone, so the pass can be repeated.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		overrideInt(cmd, "concurrency", &cfg.Retry.Concurrency)
		overrideInt(cmd, "max-attempts", &cfg.Retry.MaxAttempts)
		overrideSecs(cmd, "timeout", &cfg.Retry.TimeoutSecs)
		overrideSecs(cmd, "timeout", &cfg.Retry.TimeoutPassSecs)

		names, _ := cmd.Flags().GetStringSlice("kind")
		kinds, err := pipeline.ParseKinds(names)
		if err != nil {
			return err
		}
		parts, _ := cmd.Flags().GetInt("parts")

		env, err := initPipeline(ctx, "retry")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().With(zap.String("command", "retry")).Info("retrying transient failures",
			zap.Any("kinds", kinds),
			zap.Int("parts", parts),
			zap.Int("concurrency", cfg.Retry.Concurrency),
			zap.Duration("timeout", cfg.Retry.Timeout()),
			zap.Duration("timeout_pass", cfg.Retry.TimeoutPass()),
		)

		// One pass per kind so each gets its own deadline.
		engines := retryEngines(kinds)
		for _, kind := range kinds {
			report, err := env.Pipeline.Retry(ctx, engines[kind], []model.Status{kind}, pipeline.PartRange(parts))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Retried %s %s records in %d of %d chunks, %s resolved\n",
				humanize.Comma(int64(report.Targets)), kind, report.Written, report.Parts, humanize.Comma(int64(report.Resolved)))
		}
		return nil
	},
}

func init() {
	retryCmd.Flags().StringSlice("kind", nil, "statuses to retry: communication_error, timeout (default both)")
	retryCmd.Flags().Int("concurrency", 0, "max in-flight requests (overrides retry.concurrency)")
	retryCmd.Flags().Int("max-attempts", 0, "attempts per record (overrides retry.max_attempts)")
	retryCmd.Flags().Duration("timeout", 0, "per-request timeout (overrides retry.timeout_secs and retry.timeout_pass_secs)")
	retryCmd.Flags().Int("parts", 0, "limit the pass to parts 1..N (default all)")
	rootCmd.AddCommand(retryCmd)
}
