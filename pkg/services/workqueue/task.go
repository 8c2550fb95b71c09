package workqueue

import "context"

// TaskStatus is the lifecycle of a queued task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is one unit of batch work. Execute must honor ctx but is never
// interrupted mid-run: cancellation is checked between tasks.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// Result reports one task's terminal state, index-aligned with the submitted
// task list so callers aggregate in submission order, not completion order.
type Result struct {
	ID     string
	Name   string
	Status TaskStatus
	Err    error
}
