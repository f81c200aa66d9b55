// Package compensation implements the LIFO stack of compensating actions
// owned by a single saga run.
package compensation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"

	"github.com/petrijr/sagaflow/pkg/api"
)

// ErrUnwound is returned by Push once the stack has been unwound.
var ErrUnwound = errors.New("compensation stack already unwound")

// Entry is a registered compensating action.
type Entry struct {
	// Step is the forward step this entry undoes.
	Step string
	Name string

	// Input is the snapshot the forward step was dispatched with.
	Input any

	Fn      api.StepFunc
	Timeout time.Duration
}

// Outcome is the result of running one Entry.
type Outcome struct {
	Entry   Entry
	Err     error
	Elapsed time.Duration
}

// Record converts the outcome into its audit form.
func (o Outcome) Record() api.CompensationRecord {
	return api.CompensationRecord{
		Step:    o.Entry.Step,
		Name:    o.Entry.Name,
		Err:     api.Classify(o.Err),
		Elapsed: o.Elapsed,
	}
}

// Invoker runs a single compensation. The engine supplies one that applies
// the entry's timeout.
type Invoker func(ctx context.Context, e Entry) error

// Stack is a LIFO of compensations. It is unwound at most once; Push after
// Unwind fails with ErrUnwound. The zero value is ready to use.
type Stack struct {
	// Clock times each compensation. Defaults to the real clock.
	Clock clockwork.Clock

	mu      sync.Mutex
	entries []Entry
	unwound bool
}

// Push registers e on top of the stack.
func (s *Stack) Push(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unwound {
		return fmt.Errorf("push %s: %w", e.Name, ErrUnwound)
	}
	s.entries = append(s.entries, e)
	return nil
}

// Len returns the number of pending entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns the pending entries in insertion order.
func (s *Stack) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Unwind pops every entry in reverse insertion order and runs it with
// invoke, one at a time. A failing compensation is recorded and unwinding
// continues. A second call returns no outcomes.
func (s *Stack) Unwind(ctx context.Context, invoke Invoker, onOutcome func(Outcome)) []Outcome {
	s.mu.Lock()
	if s.unwound {
		s.mu.Unlock()
		return nil
	}
	s.unwound = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	outcomes := make([]Outcome, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		start := clock.Now()
		err := invoke(ctx, e)
		o := Outcome{Entry: e, Err: err, Elapsed: clock.Since(start)}
		outcomes = append(outcomes, o)
		if onOutcome != nil {
			onOutcome(o)
		}
	}
	return outcomes
}

// Err aggregates the failed outcomes, or returns nil when all succeeded.
func Err(outcomes []Outcome) error {
	var result *multierror.Error
	for _, o := range outcomes {
		if o.Err != nil {
			result = multierror.Append(result, fmt.Errorf("compensation %s for step %s: %w", o.Entry.Name, o.Entry.Step, o.Err))
		}
	}
	return result.ErrorOrNil()
}
