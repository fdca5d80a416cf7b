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
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve every incomplete chunk of the input table",
	Long: "Splits the input into fixed-size chunks and resolves each chunk that has no complete result file. " +
		"Interrupted runs resume at the first incomplete chunk.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputFlags(cmd)
		overrideInt(cmd, "concurrency", &cfg.Geocode.Concurrency)
		overrideSecs(cmd, "timeout", &cfg.Geocode.TimeoutSecs)

		env, err := initPipeline(ctx, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := openInput()
		if err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "geocode"))
		log.Info("geocoding input",
			zap.String("input", in.Path()),
			zap.String("encoding", in.Encoding()),
			zap.Int("chunk_size", in.ChunkSize()),
			zap.Int("concurrency", cfg.Geocode.Concurrency),
		)

		report, err := env.Pipeline.Geocode(ctx, in, geocodeEngine())
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Chunks: %d written, %d already complete\n", report.Written, report.Skipped)
		for _, st := range model.Statuses {
			if n := report.Counts[st]; n > 0 {
				fmt.Fprintf(os.Stdout, "  %-20s %s\n", st, humanize.Comma(int64(n)))
			}
		}
		return nil
	},
}

// addInputFlags registers the flags that describe the input table.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("address-column", "", "address column name (overrides input.address_column)")
	cmd.Flags().String("id-column", "", "identifier column name (overrides input.id_column)")
	cmd.Flags().String("encoding", "", "input encoding: auto, utf-8, shift_jis, euc-jp")
	cmd.Flags().Int("chunk-size", 0, "records per chunk (overrides geocode.chunk_size)")
}

func applyInputFlags(cmd *cobra.Command) {
	overrideString(cmd, "address-column", &cfg.Input.AddressColumn)
	overrideString(cmd, "id-column", &cfg.Input.IDColumn)
	overrideString(cmd, "encoding", &cfg.Input.Encoding)
	overrideInt(cmd, "chunk-size", &cfg.Geocode.ChunkSize)
}

func init() {
	addInputFlags(geocodeCmd)
	geocodeCmd.Flags().Int("concurrency", 0, "max in-flight requests (overrides geocode.concurrency)")
	geocodeCmd.Flags().Duration("timeout", 0, "per-request timeout (overrides geocode.timeout_secs)")
	rootCmd.AddCommand(geocodeCmd)
}
