package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunAllTasksComplete(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(3)))

	var ran atomic.Int32
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = Task{ID: "t", Name: "task", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}}
	}

	results := q.Run(context.Background(), tasks)

	require.Len(t, results, 5)
	assert.Equal(t, int32(5), ran.Load())
	for _, res := range results {
		assert.Equal(t, TaskStatusCompleted, res.Status)
		assert.NoError(t, res.Err)
	}
}

func TestRunFailureDoesNotStopOthers(t *testing.T) {
	q := New(zap.NewNop())

	boom := errors.New("boom")
	tasks := []Task{
		{ID: "1", Name: "ok", Run: func(ctx context.Context) error { return nil }},
		{ID: "2", Name: "fails", Run: func(ctx context.Context) error { return boom }},
		{ID: "3", Name: "ok", Run: func(ctx context.Context) error { return nil }},
	}

	results := q.Run(context.Background(), tasks)

	assert.Equal(t, TaskStatusCompleted, results[0].Status)
	assert.Equal(t, TaskStatusFailed, results[1].Status)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, TaskStatusCompleted, results[2].Status)
}

func TestRunResultsIndexAligned(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(4)))

	tasks := make([]Task, 8)
	for i := range tasks {
		shouldFail := i%2 == 1
		tasks[i] = Task{ID: "t", Name: "task", Run: func(ctx context.Context) error {
			if shouldFail {
				return errors.New("odd task")
			}
			return nil
		}}
	}

	results := q.Run(context.Background(), tasks)

	for i, res := range results {
		if i%2 == 1 {
			assert.Equal(t, TaskStatusFailed, res.Status, "index %d", i)
		} else {
			assert.Equal(t, TaskStatusCompleted, res.Status, "index %d", i)
		}
	}
}

func TestRunThrottleLimitsConcurrency(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(2)))

	var mu sync.Mutex
	current, peak := 0, 0
	gate := make(chan struct{})

	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = Task{ID: "t", Name: "task", Run: func(ctx context.Context) error {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			<-gate

			mu.Lock()
			current--
			mu.Unlock()
			return nil
		}}
	}

	done := make(chan []Result)
	go func() { done <- q.Run(context.Background(), tasks) }()
	close(gate)
	results := <-done

	assert.LessOrEqual(t, peak, 2)
	for _, res := range results {
		assert.Equal(t, TaskStatusCompleted, res.Status)
	}
}

func TestRunCancellationIsCooperative(t *testing.T) {
	q := New(zap.NewNop()) // serialized

	ctx, cancel := context.WithCancel(context.Background())

	tasks := []Task{
		{ID: "1", Name: "cancels", Run: func(ctx context.Context) error {
			cancel()
			return nil
		}},
		{ID: "2", Name: "after", Run: func(ctx context.Context) error { return nil }},
		{ID: "3", Name: "after", Run: func(ctx context.Context) error { return nil }},
	}

	results := q.Run(ctx, tasks)

	// The running task always finishes; later tasks either slipped in before
	// the cancellation was observed or were reported cancelled. Nothing is
	// left pending.
	assert.Equal(t, TaskStatusCompleted, results[0].Status)
	for _, res := range results[1:] {
		assert.Contains(t, []TaskStatus{TaskStatusCompleted, TaskStatusCancelled}, res.Status)
		if res.Status == TaskStatusCancelled {
			assert.ErrorIs(t, res.Err, context.Canceled)
		}
	}
}

func TestRunEmptyTaskList(t *testing.T) {
	q := New(zap.NewNop())
	assert.Empty(t, q.Run(context.Background(), nil))
}

func TestThrottledStrategyFloor(t *testing.T) {
	assert.Equal(t, 1, NewThrottledStrategy(0).MaxConcurrent())
	assert.Equal(t, 1, NewThrottledStrategy(-3).MaxConcurrent())
	assert.Equal(t, 4, NewThrottledStrategy(4).MaxConcurrent())
}
