package api

import "fmt"

// State is the data a run has produced so far. Input resolvers and
// preconditions read it; only the engine writes it.
type State struct {
	input   any
	last    any
	outputs map[string]any
}

// NewState returns the state of a run that has not executed any step yet.
func NewState(input any) *State {
	return &State{
		input:   input,
		last:    input,
		outputs: make(map[string]any),
	}
}

// Input is the value the run was started with.
func (s *State) Input() any { return s.input }

// Last is the output of the most recent step, or the run input.
func (s *State) Last() any { return s.last }

// Output returns the output of a completed step.
func (s *State) Output(step string) (any, bool) {
	v, ok := s.outputs[step]
	return v, ok
}

// Bind records the output of a completed step.
func (s *State) Bind(step string, out any) {
	s.outputs[step] = out
	s.last = out
}

// InputAs returns the run input as T.
func InputAs[T any](s *State) (T, error) {
	v, ok := s.input.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("run input: expected %T, got %T", zero, s.input)
	}
	return v, nil
}

// OutputAs returns the output of step as T.
func OutputAs[T any](s *State, step string) (T, error) {
	var zero T
	raw, ok := s.outputs[step]
	if !ok {
		return zero, fmt.Errorf("step %q has no output", step)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("step %q output: expected %T, got %T", step, zero, raw)
	}
	return v, nil
}
