// internal/flow/driver.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
)

// cleanupTimeout bounds evidence capture and session release after the run body ends.
const cleanupTimeout = 15 * time.Second

// Driver runs complete registration attempts. A Driver holds no per-run state, so one
// Driver may serve many concurrent runs as long as the Launcher hands out a separate
// session per Acquire.
type Driver struct {
	launcher browser.Launcher
	opts     Options
	clock    Clock
	source   CodeSource
	logger   *zap.Logger
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) DriverOption {
	return func(d *Driver) { d.clock = c }
}

// WithCodeSource makes the driver type codes obtained outside the page.
func WithCodeSource(s CodeSource) DriverOption {
	return func(d *Driver) { d.source = s }
}

// NewDriver creates a Driver.
func NewDriver(launcher browser.Launcher, opts Options, logger *zap.Logger, options ...DriverOption) *Driver {
	d := &Driver{
		launcher: launcher,
		opts:     opts,
		clock:    RealClock,
		logger:   logger.Named("flow"),
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// outcome is the verdict of the run body before cleanup.
type outcome struct {
	status  Status
	message string
	url     string
}

// Run performs one registration attempt and returns its result. It never returns an
// error: every failure is reported through the result's status and message.
func (d *Driver) Run(ctx context.Context, attempt Attempt) RunResult {
	logger := d.logger.With(zap.String("run_id", attempt.RunID), zap.String("identity", attempt.Identity))
	start := d.clock.Now()
	result := RunResult{
		RunID:     attempt.RunID,
		Identity:  attempt.Identity,
		StartedAt: attempt.StartTime,
	}

	page, err := d.launcher.Acquire(ctx)
	if err != nil {
		logger.Error("Failed to acquire browser session", zap.Error(err))
		o := failed(ctx, fmt.Errorf("failed to acquire browser session: %w", err))
		result.Status, result.Message = o.status, o.message
	} else {
		d.guard(ctx, page, attempt, &result, logger)
	}

	result.DurationSeconds = d.clock.Now().Sub(start).Seconds()
	logger.Info("Run finished",
		zap.String("status", string(result.Status)),
		zap.String("message", result.Message),
		zap.Float64("duration_seconds", result.DurationSeconds),
	)
	return result
}

// guard runs the flow body and then, on every exit path including a panic, captures
// evidence and releases the page exactly once.
func (d *Driver) guard(ctx context.Context, page browser.Page, attempt Attempt, result *RunResult, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic during registration run", zap.Any("panic", r), zap.Stack("stack"))
			result.Status = StatusUnknown
			result.Message = fmt.Sprintf("run aborted by panic: %v", r)
		}
		d.cleanup(ctx, page, attempt, result, logger)
	}()

	o := d.execute(ctx, page, attempt, logger)
	result.Status, result.Message, result.URL = o.status, o.message, o.url
}

func (d *Driver) execute(ctx context.Context, page browser.Page, attempt Attempt, logger *zap.Logger) outcome {
	if err := page.Open(ctx, d.opts.TargetURL); err != nil {
		logger.Error("Failed to open target page", zap.Error(err))
		return failed(ctx, err)
	}

	if _, err := RunSteps(ctx, page, d.clock, d.opts.FormSteps(attempt), d.opts.StepTimeout, logger); err != nil {
		logger.Error("Registration form could not be completed", zap.Error(err))
		return failed(ctx, err)
	}

	if _, err := WaitForCode(ctx, page, d.clock, d.opts.Code, d.source, logger); err != nil {
		var timeoutErr *CodeTimeoutError
		if errors.As(err, &timeoutErr) {
			logger.Error("Verification code not entered in time",
				zap.Duration("elapsed", timeoutErr.Elapsed),
				zap.String("last_observed", timeoutErr.LastObserved),
			)
			location, _ := page.CurrentLocation(ctx)
			return outcome{status: StatusTimeout, message: MessageCodeTimeout, url: location}
		}
		return failed(ctx, err)
	}

	if _, err := RunSteps(ctx, page, d.clock, []Step{d.opts.SubmitStep()}, d.opts.StepTimeout, logger); err != nil {
		logger.Error("Submit failed", zap.Error(err))
		return failed(ctx, err)
	}

	select {
	case <-ctx.Done():
		return failed(ctx, ctx.Err())
	case <-d.clock.After(d.opts.SettlePeriod):
	}

	location, toast := observe(ctx, page, d.opts.Selectors.Toast, logger)
	c := Classify(location, toast, d.opts.SuccessKeywords)
	logger.Info("Registration result classified", zap.String("status", string(c.Status)), zap.String("url", location))
	return outcome{status: c.Status, message: c.Message, url: location}
}

// cleanup is best effort: failures and panics are logged and never change the result's
// status. Release is deferred first so it runs even when evidence capture panics.
func (d *Driver) cleanup(ctx context.Context, page browser.Page, attempt Attempt, result *RunResult, logger *zap.Logger) {
	cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), cleanupTimeout)
	defer cancel()

	defer bestEffort("release browser session", logger, func() {
		if err := page.Release(cleanupCtx); err != nil {
			logger.Warn("Failed to release browser session", zap.Error(err))
		}
	})

	if result.URL == "" {
		bestEffort("read final location", logger, func() {
			if location, err := page.CurrentLocation(cleanupCtx); err == nil {
				result.URL = location
			}
		})
	}

	path := d.evidencePath(attempt)
	bestEffort("capture evidence", logger, func() {
		if err := page.CaptureEvidence(cleanupCtx, path); err != nil {
			logger.Warn("Failed to capture evidence", zap.String("path", path), zap.Error(err))
			return
		}
		result.Evidence = path
	})
}

// bestEffort runs fn and swallows any panic it raises.
func bestEffort(what string, logger *zap.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Recovered from panic during cleanup", zap.String("step", what), zap.Any("panic", r))
		}
	}()
	fn()
}

func (d *Driver) evidencePath(a Attempt) string {
	id := a.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("reg_fast_%s_%s.png", a.StartTime.Format("20060102_150405"), id)
	return filepath.Join(d.opts.EvidenceDir, name)
}

// failed maps an error to an error outcome, naming cancellation explicitly.
func failed(ctx context.Context, err error) outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{status: StatusError, message: fmt.Sprintf("run canceled: %v", ctxErr)}
	}
	return outcome{status: StatusError, message: err.Error()}
}
