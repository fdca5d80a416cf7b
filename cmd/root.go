package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gsi-geocoder",
	Short: "Resumable bulk geocoding against the GSI address search",
	Long: "Resolves large address tables to coordinates in fixed-size chunks, retries transient failures, " +
		"recovers not-found addresses through a normalization cascade and consolidates one final table.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		overrideString(cmd, "input", &cfg.Input.Path)
		overrideString(cmd, "dir", &cfg.Output.Dir)
		overrideString(cmd, "base", &cfg.Output.Base)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("input", "", "input table (overrides input.path)")
	rootCmd.PersistentFlags().String("dir", "", "result directory (default: the input's directory)")
	rootCmd.PersistentFlags().String("base", "", "result file stem (default: the input file name)")
}

// overrideString copies a flag into dst when it was set explicitly.
func overrideString(cmd *cobra.Command, name string, dst *string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if f != nil && f.Changed {
		*dst = f.Value.String()
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt(name); err == nil {
			*dst = v
		}
	}
}

func overrideSecs(cmd *cobra.Command, name string, dst *int) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		if d, err := cmd.Flags().GetDuration(name); err == nil && d > 0 {
			secs := int(d.Seconds())
			if secs < 1 {
				secs = 1
			}
			*dst = secs
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
