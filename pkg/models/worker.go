package models

import "context"

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	// WorkerStatusAvailable indicates the worker can accept new tasks.
	WorkerStatusAvailable WorkerStatus = "available"
	// WorkerStatusBusy indicates the worker is at its concurrency limit.
	WorkerStatusBusy WorkerStatus = "busy"
	// WorkerStatusError indicates the worker failed and is cooling down.
	WorkerStatusError WorkerStatus = "error"
	// WorkerStatusOffline indicates the worker is not accepting tasks.
	WorkerStatusOffline WorkerStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusAvailable, WorkerStatusBusy, WorkerStatusError, WorkerStatusOffline:
		return true
	default:
		return false
	}
}

// WorkerDescriptor is the live handle the router keeps for a registered
// worker. Load and status fields are mutated only by the router so that
// load accounting stays single-writer.
type WorkerDescriptor struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Capabilities lists the capability tags this worker declares.
	Capabilities []string `json:"capabilities"`
	// Specialization is the worker's single specialization tag.
	Specialization string `json:"specialization"`
	// Status is the current state of the worker.
	Status WorkerStatus `json:"status"`
	// CurrentTaskCount is the number of tasks currently assigned.
	CurrentTaskCount int `json:"current_task_count"`
	// MaxConcurrentTasks is the worker's concurrency limit.
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
}

// HasCapability returns true if the worker declares the given capability.
func (d *WorkerDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Worker is the contract every executor must satisfy to receive tasks
// from the router. ExecuteTask must return exactly once per task.
type Worker interface {
	// Descriptor returns the worker's identity and capability declaration.
	Descriptor() *WorkerDescriptor
	// ExecuteTask runs the task and returns its result. It may block for
	// the duration of the work and must honor context cancellation.
	ExecuteTask(ctx context.Context, task *Task) (*TaskResult, error)
}
