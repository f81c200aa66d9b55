package worker

import (
	"context"
	"sync"

	"github.com/petrijr/sagaflow/pkg/api"
)

// Handle tracks one submitted run until it finishes.
type Handle struct {
	RunID string

	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
	once sync.Once
	res  *api.RunResult
	err  error
}

func newHandle(runID string) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		RunID:  runID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel stops the run. A saga that is executing stops at its next
// cancellation point; compensations are not run.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the run finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Await blocks until the run finished or ctx is done. It returns the run's
// result together with its error, as Engine.Run would.
func (h *Handle) Await(ctx context.Context) (*api.RunResult, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) resolve(res *api.RunResult, err error) {
	h.once.Do(func() {
		h.res, h.err = res, err
		h.cancel()
		close(h.done)
	})
}
