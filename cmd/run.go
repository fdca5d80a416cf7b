package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/engine"
	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/normalize"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage: geocode, retry, cascade, consolidate",
	Long: "Runs the whole batch: the first pass, a retry of communication errors, a retry of timeouts, " +
		"the normalization cascade and the final consolidation. Every stage resumes from existing results.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputFlags(cmd)
		overrideString(cmd, "output", &cfg.Output.FinalFile)
		overrideString(cmd, "misses", &cfg.Output.MissesFile)

		stages, err := normalize.ByName(cfg.Cascade.Stages)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := openInput()
		if err != nil {
			return err
		}

		steps := runSteps{
			geocode: geocodeEngine(),
			retry:   retryEngines(retryOrder),
			cascade: cascadeEngine(),
			stages:  stages,
			output:  cfg.FinalPath(),
			misses:  cfg.MissesPath(),
		}
		summary, err := steps.run(ctx, env.Pipeline, in)
		if err != nil {
			return err
		}

		formatSummary(os.Stdout, summary)
		fmt.Fprintf(os.Stdout, "Output:           %s\n", steps.output)
		return nil
	},
}

// retryOrder runs communication errors first; timeouts get their own pass.
var retryOrder = []model.Status{model.StatusCommunicationError, model.StatusTimeout}

// runSteps is the end-to-end stage sequence.
type runSteps struct {
	geocode *engine.Engine
	retry   map[model.Status]*engine.Engine
	cascade *engine.Engine
	stages  []normalize.Stage
	output  string
	misses  string
}

func (s runSteps) run(ctx context.Context, p *pipeline.Pipeline, in *chunk.Input) (*pipeline.Summary, error) {
	log := zap.L().With(zap.String("command", "run"))

	gr, err := p.Geocode(ctx, in, s.geocode)
	if err != nil {
		return nil, eris.Wrap(err, "run: geocode")
	}
	log.Info("first pass done", zap.Int("written", gr.Written), zap.Int("skipped", gr.Skipped))

	for _, kind := range retryOrder {
		rr, err := p.Retry(ctx, s.retry[kind], []model.Status{kind}, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "run: retry %s", kind)
		}
		log.Info("retry pass done",
			zap.String("kind", string(kind)),
			zap.Int("targets", rr.Targets),
			zap.Int("resolved", rr.Resolved),
		)
	}

	cr, err := p.Cascade(ctx, s.cascade, s.stages, nil)
	if err != nil {
		return nil, eris.Wrap(err, "run: cascade")
	}
	log.Info("cascade done", zap.Int("recovered", cr.Recovered()), zap.Int("remaining", cr.Remaining()))

	summary, err := p.Consolidate(ctx, pipeline.ConsolidateOptions{Input: in, Output: s.output, Misses: s.misses})
	if err != nil {
		return nil, eris.Wrap(err, "run: consolidate")
	}
	return summary, nil
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().String("output", "", "final table path (overrides output.final_file)")
	runCmd.Flags().String("misses", "", "also write records without coordinates to this file")
	rootCmd.AddCommand(runCmd)
}
