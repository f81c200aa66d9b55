package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/sagaflow/pkg/api"
)

// ErrResultNotFound is returned when no result is stored under a run ID.
var ErrResultNotFound = errors.New("result not found")

// ResultFilter is used to select results from a store.
// Empty fields mean "no filter" for that field.
type ResultFilter struct {
	Workflow string
	Status   api.Status
}

func (f ResultFilter) matches(r *api.RunResult) bool {
	if f.Workflow != "" && r.Workflow != f.Workflow {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// ResultStore keeps the finished results of saga runs for later lookup.
// Saving a result for an existing run ID replaces it.
//
// ListResults returns results ordered by start time, then ID.
type ResultStore interface {
	SaveResult(ctx context.Context, r *api.RunResult) error
	GetResult(ctx context.Context, id string) (*api.RunResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]*api.RunResult, error)
}
