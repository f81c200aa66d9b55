package api

import "context"

// Engine runs registered workflows as sagas.
type Engine interface {
	// RegisterWorkflow registers a definition by name.
	RegisterWorkflow(def WorkflowDefinition) error

	// Run executes the workflow to completion (synchronously).
	//
	// The returned result is non-nil whenever the workflow was found. err is
	// nil for completed runs, a *TerminalError for failed runs and wraps
	// ErrRunCanceled when ctx was cancelled. An empty runID is replaced by a
	// generated one.
	Run(ctx context.Context, name string, runID string, input any) (*RunResult, error)
}
