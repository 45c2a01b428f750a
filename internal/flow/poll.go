// internal/flow/poll.go
package flow

import (
	"context"
	"errors"
	"time"
)

// ErrPollExpired is returned by PollUntil when the deadline passes without an accepted sample.
var ErrPollExpired = errors.New("poll deadline expired")

// PollState describes a poll loop at the moment it returned.
type PollState[T any] struct {
	Elapsed  time.Duration
	Deadline time.Duration
	// LastObserved is the most recent successful sample.
	LastObserved T
	// LastErr is the error from the most recent sample, nil if it succeeded.
	LastErr error
	Samples int
	Expired bool
}

// PollUntil samples at a fixed interval until accept returns true, the deadline passes,
// or ctx is canceled. A failing sample counts as "no value yet" and never aborts the loop.
//
// The final wait is shortened so the last sample lands on the deadline; on expiry
// Elapsed is therefore at least deadline and at most deadline plus one interval.
func PollUntil[T any](
	ctx context.Context,
	clock Clock,
	sample func(ctx context.Context) (T, error),
	accept func(T) bool,
	interval, deadline time.Duration,
) (T, PollState[T], error) {
	var zero T
	state := PollState[T]{Deadline: deadline}
	start := clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			return zero, state, err
		}

		value, err := sample(ctx)
		state.Samples++
		state.Elapsed = clock.Now().Sub(start)
		state.LastErr = err
		if err == nil {
			state.LastObserved = value
			if accept(value) {
				return value, state, nil
			}
		}

		if state.Elapsed >= deadline {
			state.Expired = true
			return zero, state, ErrPollExpired
		}

		wait := interval
		if remaining := deadline - state.Elapsed; remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return zero, state, ctx.Err()
		case <-clock.After(wait):
		}
	}
}
