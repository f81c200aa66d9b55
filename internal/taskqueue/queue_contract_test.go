package taskqueue

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPayload struct {
	Customer string
	Items    []string
}

func init() {
	gob.Register(orderPayload{})
}

// exerciseQueue checks the behaviour every Queue shares. The queue must be empty.
func exerciseQueue(t *testing.T, q Queue) {
	ctx := context.Background()

	t.Run("fifo", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			task := Task{
				ID:           fmt.Sprintf("t-%d", i),
				RunID:        fmt.Sprintf("run-%d", i),
				WorkflowName: "pizza",
				Payload:      orderPayload{Customer: "c", Items: []string{"margherita"}},
				EnqueuedAt:   time.Now(),
			}
			require.NoError(t, q.Enqueue(ctx, task))
		}
		require.Equal(t, 3, q.Len())

		for i := 1; i <= 3; i++ {
			got, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("t-%d", i), got.ID)
			assert.Equal(t, fmt.Sprintf("run-%d", i), got.RunID)
			assert.Equal(t, "pizza", got.WorkflowName)
			assert.Equal(t, orderPayload{Customer: "c", Items: []string{"margherita"}}, got.Payload)
		}
		assert.Equal(t, 0, q.Len())
	})

	t.Run("dequeue honors cancellation", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := q.Dequeue(cctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("blocked dequeue wakes on enqueue", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		got := make(chan *Task, 1)
		go func() {
			task, err := q.Dequeue(cctx)
			if err == nil {
				got <- task
			}
			close(got)
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, q.Enqueue(ctx, Task{ID: "late", Payload: "x"}))

		task, ok := <-got
		require.True(t, ok, "dequeue did not return a task")
		assert.Equal(t, "late", task.ID)
		assert.Equal(t, "x", task.Payload)
	})

	t.Run("concurrent consumers see each task once", func(t *testing.T) {
		const n = 20
		for i := 0; i < n; i++ {
			require.NoError(t, q.Enqueue(ctx, Task{ID: fmt.Sprintf("c-%d", i)}))
		}

		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var mu sync.Mutex
		seen := map[string]int{}
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					mu.Lock()
					total := 0
					for _, c := range seen {
						total += c
					}
					mu.Unlock()
					if total >= n {
						return
					}

					dctx, dcancel := context.WithTimeout(cctx, 100*time.Millisecond)
					task, err := q.Dequeue(dctx)
					dcancel()
					if err != nil {
						if cctx.Err() != nil {
							return
						}
						continue
					}
					mu.Lock()
					seen[task.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seen, n)
		for id, c := range seen {
			assert.Equalf(t, 1, c, "task %s delivered %d times", id, c)
		}
	})
}
