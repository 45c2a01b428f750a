// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/regflow/internal/config"
	"github.com/xkilldash9x/regflow/internal/flow"
	"github.com/xkilldash9x/regflow/internal/identity"
)

// persistTimeout bounds a single result write. It applies even after the batch context
// has been canceled, so results of runs that did finish are not lost on shutdown.
const persistTimeout = 30 * time.Second

// -- Interfaces for Dependency Inversion --

// Runner performs one registration attempt. *flow.Driver satisfies it.
type Runner interface {
	Run(ctx context.Context, attempt flow.Attempt) flow.RunResult
}

// CredentialSource hands out a fresh identity per run. *identity.Generator satisfies it.
type CredentialSource interface {
	Next() (identity.Credentials, error)
}

// ResultSink persists finished runs. *store.Store satisfies it.
type ResultSink interface {
	SaveResult(ctx context.Context, result flow.RunResult) error
}

// Batch runs a number of independent registration attempts with bounded parallelism
// and a start rate limit.
type Batch struct {
	runner  Runner
	creds   CredentialSource
	sink    ResultSink
	cfg     config.BatchConfig
	limiter *rate.Limiter
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes a Batch.
type Option func(*Batch)

// WithSink persists every result as soon as its run finishes.
func WithSink(s ResultSink) Option {
	return func(b *Batch) { b.sink = s }
}

// WithNow replaces the wall clock used to stamp attempt start times.
func WithNow(now func() time.Time) Option {
	return func(b *Batch) { b.now = now }
}

// New creates a Batch.
func New(runner Runner, creds CredentialSource, cfg config.BatchConfig, logger *zap.Logger, opts ...Option) (*Batch, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if creds == nil {
		return nil, errors.New("credential source cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch configuration: %w", err)
	}

	b := &Batch{
		runner:  runner,
		creds:   creds,
		cfg:     cfg,
		limiter: newLimiter(cfg.RatePerMinute),
		now:     time.Now,
		logger:  logger.Named("engine"),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// newLimiter allows ratePerMinute run starts per minute with no bursting. Zero disables
// pacing.
func newLimiter(ratePerMinute float64) *rate.Limiter {
	if ratePerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(ratePerMinute/60), 1)
}

// Run starts up to cfg.Count runs and waits for every started run to finish. Results are
// returned in start order. When scheduling stops early, because ctx was canceled or no
// credentials could be generated, the results of the runs that did start are returned
// together with the reason.
func (b *Batch) Run(ctx context.Context) ([]flow.RunResult, error) {
	b.logger.Info("Starting batch",
		zap.Int("count", b.cfg.Count),
		zap.Int("parallel", b.cfg.Parallel),
		zap.Float64("rate_per_minute", b.cfg.RatePerMinute),
	)

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]flow.RunResult, b.cfg.Count)
		started int
		stopErr error
	)
	g.SetLimit(b.cfg.Parallel)

	for i := 0; i < b.cfg.Count; i++ {
		if err := b.limiter.Wait(ctx); err != nil {
			stopErr = fmt.Errorf("batch stopped after %d of %d runs: %w", started, b.cfg.Count, waitErr(ctx, err))
			break
		}
		creds, err := b.creds.Next()
		if err != nil {
			stopErr = fmt.Errorf("failed to generate credentials for run %d: %w", i+1, err)
			break
		}

		attempt := flow.NewAttempt(creds.Identity, creds.Password, b.now())
		index := i
		started++
		b.logger.Info("Scheduling run",
			zap.Int("index", index+1),
			zap.String("run_id", attempt.RunID),
			zap.String("identity", attempt.Identity),
		)

		// Go blocks while Parallel runs are in flight.
		g.Go(func() error {
			result := b.runner.Run(ctx, attempt)
			b.persist(ctx, result)
			mu.Lock()
			results[index] = result
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	results = results[:started]

	b.logger.Info("Batch finished", zap.Int("started", started), zap.Any("summary", Summarize(results)))
	return results, stopErr
}

func (b *Batch) persist(ctx context.Context, result flow.RunResult) {
	if b.sink == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := b.sink.SaveResult(persistCtx, result); err != nil {
		b.logger.Error("Failed to persist run result", zap.String("run_id", result.RunID), zap.Error(err))
	}
}

// waitErr reports cancellation rather than the limiter's "would exceed deadline" error
// when the context is what stopped the wait.
func waitErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// Summarize counts results per status.
func Summarize(results []flow.RunResult) map[flow.Status]int {
	summary := make(map[flow.Status]int, 4)
	for _, r := range results {
		summary[r.Status]++
	}
	return summary
}
