// Package engine fans address resolution out to a bounded pool of workers.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gsi-geocoder/internal/model"
)

// Resolver resolves one address into one outcome.
type Resolver interface {
	Resolve(ctx context.Context, address string) (model.Outcome, error)
}

// Engine resolves batches of addresses with at most Concurrency calls in
// flight. Outputs are index-addressed, so completion order never affects
// the result.
type Engine struct {
	resolver    Resolver
	concurrency int
	logEvery    int
	log         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgressEvery logs a progress line every n completed items. Zero
// disables progress logging.
func WithProgressEvery(n int) Option {
	return func(e *Engine) {
		e.logEvery = n
	}
}

// WithLogger sets the logger used for progress lines.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine. A concurrency below 1 is treated as 1.
func New(r Resolver, concurrency int, opts ...Option) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	e := &Engine{
		resolver:    r,
		concurrency: concurrency,
		logEvery:    10000,
		log:         zap.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Concurrency returns the in-flight ceiling.
func (e *Engine) Concurrency() int {
	return e.concurrency
}

// Resolve resolves every address and returns outcomes in input order. It
// fails only when ctx is cancelled; partial results are discarded.
func (e *Engine) Resolve(ctx context.Context, addrs []string) ([]model.Outcome, error) {
	out := make([]model.Outcome, len(addrs))
	err := e.ForEach(ctx, len(addrs), func(ctx context.Context, i int) error {
		o, err := e.resolver.Resolve(ctx, addrs[i])
		if err != nil {
			return err
		}
		out[i] = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach runs fn for indexes 0..n-1 with bounded concurrency. The first
// error cancels the remaining work and is returned.
func (e *Engine) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	start := time.Now()
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(gctx, i); err != nil {
				return err
			}
			if c := done.Add(1); e.logEvery > 0 && c%int64(e.logEvery) == 0 {
				e.log.Info("engine: progress",
					zap.Int64("done", c),
					zap.Int("total", n),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return eris.Wrap(err, "engine: resolve batch")
	}
	return nil
}

// First tries candidates in order and stops at the first success. ok is false
// when no candidate resolved. Candidates are tried sequentially so one
// address never occupies more than one slot of the pool.
func (e *Engine) First(ctx context.Context, candidates []string) (cand string, out model.Outcome, ok bool, err error) {
	for _, c := range candidates {
		o, err := e.resolver.Resolve(ctx, c)
		if err != nil {
			return "", model.Outcome{}, false, err
		}
		if o.Status == model.StatusSuccess {
			return c, o, true, nil
		}
	}
	return "", model.Outcome{}, false, nil
}
