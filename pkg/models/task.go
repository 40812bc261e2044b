package models

import "time"

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	// PriorityLow indicates the task can wait behind all other work.
	PriorityLow TaskPriority = "low"
	// PriorityNormal is the default priority for submitted tasks.
	PriorityNormal TaskPriority = "normal"
	// PriorityHigh indicates the task should be preferred over normal work.
	PriorityHigh TaskPriority = "high"
	// PriorityCritical indicates the task must be handled as soon as possible.
	PriorityCritical TaskPriority = "critical"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Task represents a unit of work submitted for routing and execution.
// Tasks are immutable once submitted; the submitter owns the task until
// routing completes, after which the assigned worker logically owns it.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type is a free-form classifier string (e.g. "code-generation").
	Type string `json:"type"`
	// Description explains what the task should accomplish.
	Description string `json:"description"`
	// Priority is the urgency of the task.
	Priority TaskPriority `json:"priority"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Metadata is an opaque key-value bag supplied by the submitter.
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
}

// TaskResult is what a worker returns after executing a task.
type TaskResult struct {
	// TaskID is the ID of the executed task.
	TaskID string `json:"task_id"`
	// Success indicates whether the worker completed the task.
	Success bool `json:"success"`
	// Output holds the worker's output, if any.
	Output string `json:"output,omitempty"`
	// Error contains the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Duration is how long the worker spent on the task.
	Duration time.Duration `json:"duration"`
}
