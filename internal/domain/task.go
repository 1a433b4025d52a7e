package domain

import "fmt"

// TaskState is the lifecycle state of a delegated research task.
// Terminal states are absorbing.
type TaskState string

const (
	TaskSubmitted TaskState = "submitted"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
	TaskRejected  TaskState = "rejected"
)

// Terminal reports whether the state ends the task lifecycle.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCanceled, TaskRejected:
		return true
	}
	return false
}

// TaskFailedError reports a delegated task that reached a terminal
// non-success state.
type TaskFailedError struct {
	TaskID string
	State  TaskState
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s ended in state %q", e.TaskID, e.State)
}
