package api

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StepFunc is a single unit of work in a workflow.
//
// ctx is cancelled on start-to-close timeouts, missed heartbeats and run
// cancellation. The engine does not wait for a step that ignores it: the
// attempt fails at once and the step's eventual result is discarded.
type StepFunc func(ctx context.Context, input any) (any, error)

// RegisterPolicy decides when a step's compensation is pushed onto the
// run's compensation stack.
type RegisterPolicy int

const (
	registerUnset RegisterPolicy = iota

	// RegisterBefore pushes the compensation as soon as the step is
	// dispatched, so it is unwound even when the step itself fails. Use it
	// for effects that may land despite an apparent failure, such as an
	// external payment capture.
	RegisterBefore

	// RegisterAfter pushes the compensation only once the step succeeds.
	// Use it for atomic effects like an in-process counter update.
	RegisterAfter
)

func (p RegisterPolicy) String() string {
	switch p {
	case RegisterBefore:
		return "register-before"
	case RegisterAfter:
		return "register-after"
	default:
		return "unset"
	}
}

// HeartbeatPolicy enables stall detection for a long-running step.
//
// The step reports liveness via RecordHeartbeat. Every Interval the monitor
// checks the time since the last heartbeat (or since the attempt started);
// once it reaches Timeout the attempt is cancelled with KindStalled.
// A zero Interval checks once per Timeout.
type HeartbeatPolicy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// CompensationDefinition undoes the effect of a forward step. It receives
// the input the forward step was dispatched with.
type CompensationDefinition struct {
	Name     string
	Fn       StepFunc
	Register RegisterPolicy

	// Timeout bounds a single compensation call. Compensations are never
	// retried.
	Timeout time.Duration
}

// InputFunc resolves a step's input from the run state.
type InputFunc func(s *State) (any, error)

// RuleFunc is an inline business rule evaluated before a step is
// dispatched. A non-nil error fails the run without retry.
type RuleFunc func(s *State) error

// StepDefinition describes a named step.
type StepDefinition struct {
	Name string
	Fn   StepFunc

	// Timeout is the start-to-close limit of a single attempt. Zero means
	// no limit.
	Timeout time.Duration

	// Retry is optional; without it the first error is terminal.
	Retry *RetryPolicy

	Heartbeat    *HeartbeatPolicy
	Compensation *CompensationDefinition

	// Input defaults to the previous step's output, or the run input for
	// the first step.
	Input InputFunc

	Precondition RuleFunc
}

// WorkflowDefinition describes a workflow as a sequence of steps.
type WorkflowDefinition struct {
	Name  string
	Steps []StepDefinition
}

// Validate checks that the definition can be executed.
func (d WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(d.Steps) == 0 {
		return errors.New("workflow must have at least one step")
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("step %q: duplicate step name", s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.Fn == nil {
			return fmt.Errorf("step %q: function is required", s.Name)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("step %q: negative timeout", s.Name)
		}
		if s.Retry != nil {
			if err := s.Retry.Validate(); err != nil {
				return fmt.Errorf("step %q: %w", s.Name, err)
			}
		}
		if hb := s.Heartbeat; hb != nil {
			if hb.Timeout <= 0 {
				return fmt.Errorf("step %q: heartbeat timeout must be positive", s.Name)
			}
			if hb.Interval < 0 {
				return fmt.Errorf("step %q: negative heartbeat interval", s.Name)
			}
		}
		if c := s.Compensation; c != nil {
			if c.Fn == nil {
				return fmt.Errorf("step %q: compensation function is required", s.Name)
			}
			if c.Register != RegisterBefore && c.Register != RegisterAfter {
				return fmt.Errorf("step %q: compensation register policy must be RegisterBefore or RegisterAfter", s.Name)
			}
		}
	}
	return nil
}

// CompensationName returns the compensation name, falling back to
// "<step>-compensation".
func (s StepDefinition) CompensationName() string {
	if s.Compensation == nil {
		return ""
	}
	if s.Compensation.Name != "" {
		return s.Compensation.Name
	}
	return s.Name + "-compensation"
}
