package api

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// StepRecord is the audit entry of one step: how often it was invoked,
// how long it took and the last error it returned.
type StepRecord struct {
	Name      string
	Status    Status
	Attempts  int
	Elapsed   time.Duration
	LastError *Error
}

// CompensationRecord is the outcome of one compensation during unwind.
// Err is nil when the compensation succeeded.
type CompensationRecord struct {
	Step    string
	Name    string
	Err     *Error
	Elapsed time.Duration
}

func (c CompensationRecord) Succeeded() bool { return c.Err == nil }

// RunResult holds the outcome of a run.
type RunResult struct {
	ID       string
	Workflow string
	Status   Status
	Input    any
	Output   any

	// Failure is the authoritative error of a failed or canceled run.
	Failure    *Error
	FailedStep string

	Steps         []StepRecord
	Compensations []CompensationRecord

	StartedAt  time.Time
	FinishedAt time.Time
}

// Err returns the run's error: a *TerminalError for failed runs and an
// error wrapping ErrRunCanceled for canceled ones.
func (r *RunResult) Err() error {
	switch r.Status {
	case StatusFailed:
		return &TerminalError{
			RunID:         r.ID,
			Workflow:      r.Workflow,
			Step:          r.FailedStep,
			Err:           r.Failure,
			Compensations: r.Compensations,
		}
	case StatusCanceled:
		if r.FailedStep != "" {
			return fmt.Errorf("%w: workflow %s run %s at step %s", ErrRunCanceled, r.Workflow, r.ID, r.FailedStep)
		}
		return fmt.Errorf("%w: workflow %s run %s", ErrRunCanceled, r.Workflow, r.ID)
	default:
		return nil
	}
}

// Step returns the record for the named step.
func (r *RunResult) Step(name string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Duration is the wall time between start and finish.
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
