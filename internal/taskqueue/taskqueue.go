// Package taskqueue carries saga run submissions from producers to workers.
package taskqueue

import (
	"context"
	"time"
)

// Task asks a worker to execute one saga run.
type Task struct {
	ID string

	// RunID is the caller-visible identity of the run the task starts.
	RunID        string
	WorkflowName string

	// Payload is the run input. Concrete types crossing a persistent queue
	// must be registered with gob.Register.
	Payload any

	EnqueuedAt time.Time
}

// Queue is a FIFO of tasks shared by producers and workers.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
