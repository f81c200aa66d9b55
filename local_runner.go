package sagaflow

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/petrijr/sagaflow/internal/engine"
	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/api"
	"github.com/petrijr/sagaflow/pkg/worker"
)

// Handle tracks a run submitted to a LocalRunner.
type Handle = worker.Handle

// LocalRunner bundles an engine, an in-memory task queue, a result store
// and a Worker to run sagas in the background of a single process.
//
// Typical usage:
//
//	runner := sagaflow.NewLocalRunner()
//	flow := sagaflow.New("my-flow").Step(...)
//	flow.MustRegister(runner.Engine)
//
//	_ = runner.StartWorkers(ctx, 4)
//	defer runner.Stop()
//
//	h, _ := runner.Submit(ctx, flow.Name(), input)
//	res, err := h.Await(ctx)
type LocalRunner struct {
	// Engine executes the sagas. Register workflows on it before submitting.
	Engine Engine

	// Queue holds submitted runs until a worker picks them up.
	Queue Queue

	// Store keeps the results of finished runs.
	Store ResultStore

	// Worker consumes Queue.
	Worker *worker.Worker

	// Metrics counts runs, retries and compensations of Engine.
	Metrics *Metrics
}

// LocalRunnerConfig tunes NewLocalRunnerWithConfig. Zero values get defaults.
type LocalRunnerConfig struct {
	// Observer receives engine events in addition to Metrics.
	Observer Observer

	Logger *slog.Logger
	Clock  clockwork.Clock

	// QueueCapacity bounds the number of queued runs. Defaults to 1024.
	QueueCapacity int

	// Store defaults to an in-memory store.
	Store ResultStore

	// Registry receives engine and worker metrics. Defaults to a private
	// registry.
	Registry metrics.Registry
}

// NewLocalRunner constructs a LocalRunner with default configuration.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithConfig(LocalRunnerConfig{})
}

// NewLocalRunnerWithConfig constructs a LocalRunner using cfg.
func NewLocalRunnerWithConfig(cfg LocalRunnerConfig) *LocalRunner {
	reg := cfg.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	store := cfg.Store
	if store == nil {
		store = persistence.NewInMemoryStore()
	}

	m := api.NewMetrics(reg)
	eng := engine.NewEngineWithConfig(engine.Config{
		Observer: api.NewCompositeObserver(cfg.Observer, m),
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	})
	q := taskqueue.NewInMemoryQueue(cfg.QueueCapacity)
	w := worker.NewWithConfig(eng, q, worker.Config{
		Store:    store,
		Logger:   cfg.Logger,
		Registry: reg,
	})

	return &LocalRunner{
		Engine:  eng,
		Queue:   q,
		Store:   store,
		Worker:  w,
		Metrics: m,
	}
}

// StartWorkers starts concurrency consumer goroutines; each runs one saga
// at a time. It fails if workers are already running.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	return r.Worker.Start(ctx, concurrency)
}

// Stop stops the consumers and waits for executing runs to finish. It is
// safe to call when workers were never started.
func (r *LocalRunner) Stop() {
	r.Worker.Stop()
}

// Submit enqueues a run of a registered workflow under a generated run ID.
func (r *LocalRunner) Submit(ctx context.Context, workflow string, input any) (*Handle, error) {
	return r.Worker.Submit(ctx, workflow, "", input)
}

// SubmitWithID enqueues a run under runID. At most one run per ID may be in
// flight.
func (r *LocalRunner) SubmitWithID(ctx context.Context, workflow, runID string, input any) (*Handle, error) {
	return r.Worker.Submit(ctx, workflow, runID, input)
}

// Cancel cancels an in-flight run. It reports whether the run was known.
func (r *LocalRunner) Cancel(runID string) bool {
	return r.Worker.Cancel(runID)
}

// Result returns the result of a finished run.
func (r *LocalRunner) Result(ctx context.Context, runID string) (*RunResult, error) {
	return r.Worker.Result(ctx, runID)
}

// Results lists the results of finished runs.
func (r *LocalRunner) Results(ctx context.Context, filter ResultFilter) ([]*RunResult, error) {
	return r.Worker.Results(ctx, filter)
}
