// Package sagaflow provides an embeddable saga orchestrator for Go.
//
// A saga is an ordered list of steps. Each step may register a compensation;
// when a later step fails for good, the registered compensations run in
// reverse order so the side effects of the saga are undone. Sagaflow runs
// sagas in-process, with per-step timeouts, retry policies and heartbeats,
// and stores the outcome of every run.
//
// # Core Concepts
//
//  1. Engine
//  2. FlowBuilder
//  3. StepFunc
//  4. Worker and LocalRunner
//  5. ResultStore
//
// # Engine
//
// The Engine keeps workflow definitions and executes runs. Run blocks until
// the saga completes, fails (after unwinding its compensations) or is
// canceled through its context. A canceled run does not unwind.
//
// # FlowBuilder
//
// FlowBuilder is the declarative way to define a saga:
//
//	sagaflow.New("BookTrip").
//	    Step("reserveHotel", reserveHotel).
//	    CompensateAfter("cancelHotel", cancelHotel).
//	    Step("chargeCard", chargeCard).
//	    WithRetry(sagaflow.Retry(5).WithExponentialBackoff(time.Second, 2, time.Minute).Policy()).
//	    CompensateBefore("refund", refund).
//	    MustRegister(eng)
//
// CompensateAfter pushes the compensation once the step has succeeded.
// CompensateBefore pushes it before the step is attempted, for steps whose
// side effect may land even when the call reports an error.
//
// # StepFunc
//
//	type StepFunc func(ctx context.Context, input any) (any, error)
//
// By default a step receives the previous step's output (the saga input for
// the first step). WithInput lets a step pick its input from the run State.
// TypedStep adapts functions over concrete types.
//
// # Worker and LocalRunner
//
// A Worker consumes run submissions from a task queue. Queues are available
// in memory, on SQLite and on Redis. LocalRunner bundles an engine, an
// in-memory queue, a result store and a worker for process-local use.
//
// # ResultStore
//
// Results of finished runs are kept in a ResultStore: in memory, SQLite,
// Postgres, Redis or MongoDB. OpenResultStore picks one from configuration.
//
// For a complete saga, see examples/pizza.
package sagaflow
