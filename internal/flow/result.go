// internal/flow/result.go
package flow

import (
	"time"

	"github.com/google/uuid"
)

// Status is the final verdict of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// Attempt holds the inputs of one registration run. It is never modified after creation.
type Attempt struct {
	RunID     string
	Identity  string
	Password  string
	StartTime time.Time
}

// NewAttempt stamps a fresh run ID and start time onto the given credentials.
func NewAttempt(identity, password string, now time.Time) Attempt {
	return Attempt{
		RunID:     uuid.New().String(),
		Identity:  identity,
		Password:  password,
		StartTime: now,
	}
}

// RunResult is produced exactly once per run, after the session has been released.
type RunResult struct {
	RunID           string    `json:"run_id"`
	Identity        string    `json:"identity"`
	Status          Status    `json:"status"`
	Message         string    `json:"message"`
	URL             string    `json:"url"`
	DurationSeconds float64   `json:"duration"`
	StartedAt       time.Time `json:"started_at"`
	Evidence        string    `json:"evidence,omitempty"`
}
