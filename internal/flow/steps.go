// internal/flow/steps.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
)

// Action is what a step does once its precondition holds.
type Action int

const (
	ActionClick Action = iota
	ActionType
)

func (a Action) String() string {
	if a == ActionType {
		return "type"
	}
	return "click"
}

// Step is one bounded wait followed by one action.
type Step struct {
	Name      string
	Locator   browser.Locator
	Condition browser.Condition
	Action    Action
	// Text is typed when Action is ActionType.
	Text string
	// Optional steps may time out or fail without aborting the sequence.
	Optional bool
}

// StepOutcome classifies how a single step ended.
type StepOutcome int

const (
	OutcomeSuccess StepOutcome = iota
	OutcomeTimeout
	OutcomeTransientError
)

func (o StepOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// StepReport records the outcome of a step that was attempted.
type StepReport struct {
	Name    string
	Outcome StepOutcome
	Elapsed time.Duration
	Err     error
}

// StepError aborts a run when a required step does not succeed.
type StepError struct {
	Step    string
	Outcome StepOutcome
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("required step %q failed (%s): %v", e.Step, e.Outcome, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RunSteps executes steps strictly in order, each once. It returns the reports for every
// attempted step and a *StepError for the first required step that did not succeed.
// Cancellation of ctx is returned as-is, even from an optional step.
func RunSteps(ctx context.Context, page browser.Page, clock Clock, steps []Step, timeout time.Duration, logger *zap.Logger) ([]StepReport, error) {
	reports := make([]StepReport, 0, len(steps))

	for _, step := range steps {
		start := clock.Now()
		outcome, err := runStep(ctx, page, step, timeout)
		report := StepReport{Name: step.Name, Outcome: outcome, Elapsed: clock.Now().Sub(start), Err: err}
		reports = append(reports, report)

		if outcome == OutcomeSuccess {
			logger.Info("Step completed", zap.String("step", step.Name), zap.Duration("elapsed", report.Elapsed))
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reports, ctxErr
		}
		if step.Optional {
			if outcome == OutcomeTimeout {
				logger.Debug("Optional step skipped", zap.String("step", step.Name))
			} else {
				logger.Warn("Optional step failed", zap.String("step", step.Name), zap.Error(err))
			}
			continue
		}
		return reports, &StepError{Step: step.Name, Outcome: outcome, Err: err}
	}
	return reports, nil
}

func runStep(ctx context.Context, page browser.Page, step Step, timeout time.Duration) (StepOutcome, error) {
	el, err := page.WaitUntil(ctx, step.Locator, step.Condition, timeout)
	if err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return OutcomeTimeout, err
		}
		return OutcomeTransientError, err
	}

	switch step.Action {
	case ActionType:
		err = el.SendText(ctx, step.Text)
	default:
		err = el.Click(ctx)
	}
	if err != nil {
		return OutcomeTransientError, fmt.Errorf("%s on %s: %w", step.Action, step.Locator, err)
	}
	return OutcomeSuccess, nil
}
