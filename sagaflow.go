package sagaflow

import (
	"context"

	"github.com/petrijr/sagaflow/internal/engine"
	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine                 = api.Engine
	WorkflowDefinition     = api.WorkflowDefinition
	StepDefinition         = api.StepDefinition
	StepFunc               = api.StepFunc
	InputFunc              = api.InputFunc
	RuleFunc               = api.RuleFunc
	State                  = api.State
	RetryPolicy            = api.RetryPolicy
	HeartbeatPolicy        = api.HeartbeatPolicy
	CompensationDefinition = api.CompensationDefinition
	RegisterPolicy         = api.RegisterPolicy
	RunResult              = api.RunResult
	StepRecord             = api.StepRecord
	CompensationRecord     = api.CompensationRecord
	Status                 = api.Status
	Error                  = api.Error
	ErrorKind              = api.ErrorKind
	TerminalError          = api.TerminalError
	Observer               = api.Observer
	LoggingObserver        = api.LoggingObserver
	Metrics                = api.Metrics
	MetricsSnapshot        = api.MetricsSnapshot
	CompositeObserver      = api.CompositeObserver
	NoopObserver           = api.NoopObserver

	// EngineConfig tunes NewEngineWithConfig.
	EngineConfig = engine.Config

	ResultStore  = persistence.ResultStore
	ResultFilter = persistence.ResultFilter
	Queue        = taskqueue.Queue
)

const (
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCanceled  = api.StatusCanceled

	RegisterBefore = api.RegisterBefore
	RegisterAfter  = api.RegisterAfter

	KindOutOfServiceArea          = api.KindOutOfServiceArea
	KindInvalidChargeAmount       = api.KindInvalidChargeAmount
	KindCreditCardProcessingError = api.KindCreditCardProcessingError
	KindStalled                   = api.KindStalled
	KindTimeout                   = api.KindTimeout
	KindCanceled                  = api.KindCanceled
	KindUnknown                   = api.KindUnknown
)

var (
	ErrRunCanceled     = api.ErrRunCanceled
	ErrUnknownWorkflow = engine.ErrUnknownWorkflow
	ErrResultNotFound  = persistence.ErrResultNotFound
)

// Re-export helpers used inside steps and observers.

var (
	NewError             = api.NewError
	NewNonRetryableError = api.NewNonRetryableError
	Classify             = api.Classify
	KindOf               = api.KindOf
	RecordHeartbeat      = api.RecordHeartbeat
	HeartbeatDetails     = api.HeartbeatDetails
	Logger               = api.Logger
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewMetrics           = api.NewMetrics
)

// NewEngine returns an in-process saga engine.
func NewEngine() Engine {
	return engine.NewEngine()
}

// NewEngineWithObserver returns an engine reporting to obs.
func NewEngineWithObserver(obs Observer) Engine {
	return engine.NewEngineWithObserver(obs)
}

// NewEngineWithConfig returns an engine using cfg.
func NewEngineWithConfig(cfg EngineConfig) Engine {
	return engine.NewEngineWithConfig(cfg)
}

// NewInMemoryQueue returns a process-local queue holding up to capacity
// submissions.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewInMemoryStore returns a process-local result store.
func NewInMemoryStore() ResultStore {
	return persistence.NewInMemoryStore()
}

// Run runs a registered workflow synchronously with a generated run ID.
func Run(ctx context.Context, eng Engine, name string, input any) (*RunResult, error) {
	return eng.Run(ctx, name, "", input)
}

// RunWithID runs a registered workflow synchronously under runID.
func RunWithID(ctx context.Context, eng Engine, name, runID string, input any) (*RunResult, error) {
	return eng.Run(ctx, name, runID, input)
}

// TypedStep wraps a strongly-typed function into a StepFunc.
//
//	sagaflow.TypedStep(func(ctx context.Context, b Bill) (Receipt, error) { ... })
func TypedStep[I, O any](fn func(context.Context, I) (O, error)) StepFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(I)
		if !ok {
			var zero I
			return nil, api.NewNonRetryableError(api.KindUnknown, "expected %T input, got %T", zero, input)
		}
		return fn(ctx, in)
	}
}
