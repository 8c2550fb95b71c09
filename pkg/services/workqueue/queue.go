// Package workqueue executes independent batch tasks with bounded
// concurrency. Results come back index-aligned with the submitted tasks so
// two runs over the same input aggregate identically regardless of
// completion order.
package workqueue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Queue manages task execution with configurable concurrency control.
type Queue struct {
	strategy ConcurrencyStrategy
	logger   *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStrategy sets the concurrency strategy.
func WithStrategy(strategy ConcurrencyStrategy) QueueOption {
	return func(q *Queue) {
		if strategy != nil {
			q.strategy = strategy
		}
	}
}

// New creates a work queue with the given options. The default strategy is
// serialized execution.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		strategy: NewSerializedStrategy(),
		logger:   logger.Named("workqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run executes tasks and blocks until every task reaches a terminal state.
// Cancellation is cooperative: workers check ctx between tasks, so a running
// task always finishes but no new task starts after cancellation. Tasks that
// never started are reported cancelled.
func (q *Queue) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	for i, task := range tasks {
		results[i] = Result{ID: task.ID, Name: task.Name, Status: TaskStatusPending}
	}
	if len(tasks) == 0 {
		return results
	}

	workers := q.strategy.MaxConcurrent()
	if workers > len(tasks) {
		workers = len(tasks)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				q.runTask(ctx, tasks[i], &results[i])
			}
		}()
	}

feed:
	for i := range tasks {
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	for i := range results {
		if results[i].Status == TaskStatusPending {
			results[i].Status = TaskStatusCancelled
			results[i].Err = ctx.Err()
		}
	}
	return results
}

func (q *Queue) runTask(ctx context.Context, task Task, result *Result) {
	result.Status = TaskStatusRunning
	q.logger.Debug("starting task",
		zap.String("task_id", task.ID),
		zap.String("task_name", task.Name))

	if err := task.Run(ctx); err != nil {
		result.Status = TaskStatusFailed
		result.Err = err
		q.logger.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("task_name", task.Name),
			zap.Error(err))
		return
	}

	result.Status = TaskStatusCompleted
	q.logger.Debug("task completed",
		zap.String("task_id", task.ID),
		zap.String("task_name", task.Name))
}
