package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gsi-geocoder/internal/chunk"
	"github.com/sells-group/gsi-geocoder/internal/engine"
	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/pipeline"
	"github.com/sells-group/gsi-geocoder/internal/resilience"
	"github.com/sells-group/gsi-geocoder/internal/store"
	"github.com/sells-group/gsi-geocoder/pkg/geocode"
)

// pipelineEnv holds the ledger and the pipeline over the configured result
// directory.
type pipelineEnv struct {
	Ledger   store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Ledger != nil {
		_ = pe.Ledger.Close()
	}
}

// initPipeline validates the config for mode, opens the ledger and builds
// the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	ledger, err := initLedger(ctx)
	if err != nil {
		return nil, err
	}

	results := chunk.NewStore(cfg.ResultDir(), cfg.ResultBase(), cfg.Output.BOM)
	zap.L().Debug("pipeline environment ready",
		zap.String("mode", mode),
		zap.String("dir", results.Dir()),
		zap.String("base", results.Base()),
		zap.String("ledger", cfg.Ledger.Driver),
	)
	return &pipelineEnv{
		Ledger:   ledger,
		Pipeline: pipeline.New(results, ledger),
	}, nil
}

// initLedger opens and migrates the configured run ledger.
func initLedger(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open ledger")
	}
	return st, nil
}

// openInput validates the configured input table.
func openInput() (*chunk.Input, error) {
	return chunk.OpenInput(cfg.Input.Path, chunk.InputOptions{
		IDColumn:      cfg.Input.IDColumn,
		AddressColumn: cfg.Input.AddressColumn,
		Encoding:      cfg.Input.Encoding,
		HasHeader:     cfg.Input.HasHeader,
		ChunkSize:     cfg.Geocode.ChunkSize,
	})
}

// geocodeEngine builds the first-pass engine: short timeout, a few quick
// in-call retries.
func geocodeEngine() *engine.Engine {
	g := cfg.Geocode
	policy := resilience.NewPolicy(g.MaxAttempts, g.InitialBackoffMs, g.MaxBackoffMs)
	return newEngine("geocode", g.Concurrency, g.Timeout(), policy)
}

// retryEngine builds the engine for one retry pass: longer timeout, more
// attempts, linear backoff. The timeout pass gets its own deadline.
func retryEngine(kind model.Status) *engine.Engine {
	r := cfg.Retry
	policy := resilience.NewPolicy(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs)
	policy.Linear = true
	return newEngine("retry_"+string(kind), r.Concurrency, retryTimeout(kind), policy)
}

func retryTimeout(kind model.Status) time.Duration {
	if kind == model.StatusTimeout {
		return cfg.Retry.TimeoutPass()
	}
	return cfg.Retry.Timeout()
}

// retryEngines builds one engine per retry kind.
func retryEngines(kinds []model.Status) map[model.Status]*engine.Engine {
	engines := make(map[model.Status]*engine.Engine, len(kinds))
	for _, kind := range kinds {
		engines[kind] = retryEngine(kind)
	}
	return engines
}

// cascadeEngine builds the engine that resolves normalized rewrites.
func cascadeEngine() *engine.Engine {
	c := cfg.Cascade
	policy := resilience.NewPolicy(c.MaxAttempts, cfg.Geocode.InitialBackoffMs, cfg.Geocode.MaxBackoffMs)
	return newEngine("cascade", c.Concurrency, c.Timeout(), policy)
}

func newEngine(pass string, concurrency int, timeout time.Duration, policy resilience.Policy) *engine.Engine {
	client := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithTimeout(timeout),
		geocode.WithRetryPolicy(policy),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithMaxConns(concurrency),
	)
	return engine.New(client, concurrency,
		engine.WithLogger(zap.L().With(zap.String("pass", pass), zap.Duration("timeout", timeout))),
	)
}
