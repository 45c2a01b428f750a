// internal/flow/code.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
	"github.com/xkilldash9x/regflow/internal/config"
)

// ErrCodeWaitTimeout matches any *CodeTimeoutError via errors.Is.
var ErrCodeWaitTimeout = errors.New(MessageCodeTimeout)

// CodeTimeoutError is returned by WaitForCode when no valid code appeared before the deadline.
type CodeTimeoutError struct {
	Deadline     time.Duration
	Elapsed      time.Duration
	LastObserved string
}

func (e *CodeTimeoutError) Error() string {
	return fmt.Sprintf("verification code not entered within %v (waited %v, last observed %q)",
		e.Deadline, e.Elapsed.Round(time.Millisecond), e.LastObserved)
}

func (e *CodeTimeoutError) Is(target error) bool { return target == ErrCodeWaitTimeout }

// IsCode reports whether s, once trimmed, is exactly n ASCII digits.
func IsCode(s string, n int) bool {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CodeSource supplies codes obtained outside the page, e.g. typed on a terminal or
// forwarded from a phone. Poll never blocks.
type CodeSource interface {
	Poll() (string, bool)
}

// CodeWait configures WaitForCode.
type CodeWait struct {
	// Strategy is config.CodeStrategyField or config.CodeStrategyVisibleInputs.
	Strategy string
	// Field is the code input. Codes from a CodeSource are typed here.
	Field browser.Locator
	// Inputs and Exclude drive the visible-inputs strategy: every visible match of Inputs
	// is read except the one whose id equals Exclude's value. Exclude must be an id
	// locator; OptionsFromConfig enforces that.
	Inputs   browser.Locator
	Exclude  browser.Locator
	Length   int
	Interval time.Duration
	Deadline time.Duration
}

// WaitForCode blocks until a human (or the configured CodeSource) has entered a valid
// code into the page and returns it. Read failures during polling are logged at debug
// level and otherwise ignored.
func WaitForCode(ctx context.Context, page browser.Page, clock Clock, w CodeWait, source CodeSource, logger *zap.Logger) (string, error) {
	read := readField(page, w.Field)
	if w.Strategy == config.CodeStrategyVisibleInputs {
		read = readVisibleInputs(page, w.Inputs, w.Exclude, w.Length)
	}

	var typed string
	sample := func(ctx context.Context) (string, error) {
		if source != nil {
			if code, ok := source.Poll(); ok && code != typed {
				if err := typeCode(ctx, page, w.Field, code); err != nil {
					logger.Warn("Failed to type code from external source", zap.Error(err))
				} else {
					typed = code
					logger.Info("Typed verification code from external source")
				}
			}
		}

		value, err := read(ctx)
		if err != nil {
			logger.Debug("Code field not readable yet", zap.Error(err))
		}
		return value, err
	}
	accept := func(v string) bool { return IsCode(v, w.Length) }

	logger.Info("Waiting for verification code", zap.Duration("deadline", w.Deadline))
	code, state, err := PollUntil(ctx, clock, sample, accept, w.Interval, w.Deadline)
	if err != nil {
		if errors.Is(err, ErrPollExpired) {
			return "", &CodeTimeoutError{Deadline: w.Deadline, Elapsed: state.Elapsed, LastObserved: state.LastObserved}
		}
		return "", err
	}
	code = strings.TrimSpace(code)
	logger.Info("Verification code detected", zap.Duration("elapsed", state.Elapsed))
	return code, nil
}

func readField(page browser.Page, loc browser.Locator) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		el, err := page.FindElement(ctx, loc)
		if err != nil {
			return "", err
		}
		value, _, err := el.ReadAttribute(ctx, "value")
		return value, err
	}
}

// readVisibleInputs returns the first valid code among the visible inputs, or else the
// first non-empty value so the caller can report what was last seen.
func readVisibleInputs(page browser.Page, inputs, exclude browser.Locator, length int) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		elements, err := page.FindElements(ctx, inputs)
		if err != nil {
			return "", err
		}

		var fallback string
		for _, el := range elements {
			if exclude.Kind == browser.KindID && exclude.Value != "" {
				if id, ok, err := el.ReadAttribute(ctx, "id"); err == nil && ok && id == exclude.Value {
					continue
				}
			}
			visible, err := el.IsVisible(ctx)
			if err != nil || !visible {
				continue
			}
			value, _, err := el.ReadAttribute(ctx, "value")
			if err != nil {
				continue
			}
			if IsCode(value, length) {
				return value, nil
			}
			if fallback == "" && strings.TrimSpace(value) != "" {
				fallback = value
			}
		}
		return fallback, nil
	}
}

func typeCode(ctx context.Context, page browser.Page, loc browser.Locator, code string) error {
	el, err := page.FindElement(ctx, loc)
	if err != nil {
		return err
	}
	// Anything already in the field would be prefixed to the code.
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.SendText(ctx, code)
}
