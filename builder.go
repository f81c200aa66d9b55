package sagaflow

import (
	"fmt"
	"time"

	"github.com/petrijr/sagaflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining sagas. Modifiers apply to
// the most recently added step:
//
//	flow := sagaflow.New("OrderPizza").
//	    Step("reserve", reserve).
//	    CompensateAfter("release", release).
//	    Step("charge", charge).
//	    WithRetry(sagaflow.Retry(5).WithExponentialBackoff(time.Second, 2, time.Minute).Policy()).
//	    CompensateBefore("refund", refund)
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
// Misuse (empty names, nil functions, modifiers before the first step)
// panics, since definitions are built once at startup.
type FlowBuilder struct {
	def api.WorkflowDefinition
}

// New creates a new workflow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.WorkflowDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
	}
}

// Name returns the workflow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns a copy of the underlying WorkflowDefinition.
func (b *FlowBuilder) Definition() WorkflowDefinition {
	def := b.def
	def.Steps = append([]api.StepDefinition(nil), b.def.Steps...)
	return def
}

// Step appends a step to the workflow.
func (b *FlowBuilder) Step(name string, fn StepFunc) *FlowBuilder {
	if name == "" {
		panic("sagaflow: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("sagaflow: step %q has nil function", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name: name,
		Fn:   fn,
	})
	return b
}

// StepWithRetry appends a step that uses the given retry policy.
func (b *FlowBuilder) StepWithRetry(name string, fn StepFunc, retry RetryPolicy) *FlowBuilder {
	return b.Step(name, fn).WithRetry(retry)
}

func (b *FlowBuilder) last(modifier string) *api.StepDefinition {
	if len(b.def.Steps) == 0 {
		panic(fmt.Sprintf("sagaflow: %s called before any Step", modifier))
	}
	return &b.def.Steps[len(b.def.Steps)-1]
}

// WithRetry sets the retry policy of the last step.
func (b *FlowBuilder) WithRetry(retry RetryPolicy) *FlowBuilder {
	// Copy so callers can mutate their policy afterwards.
	r := retry
	r.NonRetryableErrorKinds = append([]api.ErrorKind(nil), retry.NonRetryableErrorKinds...)
	b.last("WithRetry").Retry = &r
	return b
}

// WithTimeout sets the start-to-close timeout of each attempt of the last step.
func (b *FlowBuilder) WithTimeout(d time.Duration) *FlowBuilder {
	b.last("WithTimeout").Timeout = d
	return b
}

// WithHeartbeat enables stall detection for the last step.
func (b *FlowBuilder) WithHeartbeat(interval, timeout time.Duration) *FlowBuilder {
	b.last("WithHeartbeat").Heartbeat = &api.HeartbeatPolicy{Interval: interval, Timeout: timeout}
	return b
}

// WithInput sets how the last step's input is resolved from the run state.
func (b *FlowBuilder) WithInput(fn InputFunc) *FlowBuilder {
	b.last("WithInput").Input = fn
	return b
}

// Require guards the last step with a business rule. A rule violation
// fails the run without retry.
func (b *FlowBuilder) Require(rule RuleFunc) *FlowBuilder {
	b.last("Require").Precondition = rule
	return b
}

// CompensateBefore registers a compensation for the last step as soon as it
// is dispatched.
func (b *FlowBuilder) CompensateBefore(name string, fn StepFunc) *FlowBuilder {
	return b.compensate("CompensateBefore", name, fn, api.RegisterBefore)
}

// CompensateAfter registers a compensation for the last step once it
// succeeded.
func (b *FlowBuilder) CompensateAfter(name string, fn StepFunc) *FlowBuilder {
	return b.compensate("CompensateAfter", name, fn, api.RegisterAfter)
}

// WithCompensationTimeout bounds the last step's compensation.
func (b *FlowBuilder) WithCompensationTimeout(d time.Duration) *FlowBuilder {
	s := b.last("WithCompensationTimeout")
	if s.Compensation == nil {
		panic(fmt.Sprintf("sagaflow: step %q has no compensation", s.Name))
	}
	s.Compensation.Timeout = d
	return b
}

func (b *FlowBuilder) compensate(modifier, name string, fn StepFunc, policy RegisterPolicy) *FlowBuilder {
	s := b.last(modifier)
	if fn == nil {
		panic(fmt.Sprintf("sagaflow: compensation of step %q has nil function", s.Name))
	}
	s.Compensation = &api.CompensationDefinition{
		Name:     name,
		Fn:       fn,
		Register: policy,
	}
	return b
}

// Register registers the built workflow with the given engine.
func (b *FlowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.Definition())
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
