// Package router scores and assigns incoming tasks to the best-fit
// available worker, with pluggable rules and load balancing.
package router

import (
	"fmt"
	"sync"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

// WorkerRegistry holds the set of active workers and their descriptors.
// It provides thread-safe registration and lookup. Load and status
// mutation goes through the registry so accounting stays single-writer
// (the router is the only caller of the mutating methods).
type WorkerRegistry struct {
	// workers maps worker IDs to worker instances.
	workers map[string]models.Worker
	// descriptors maps worker IDs to their live descriptors.
	descriptors map[string]*models.WorkerDescriptor
	// mu protects both maps.
	mu sync.RWMutex
}

// NewWorkerRegistry creates an empty WorkerRegistry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		workers:     make(map[string]models.Worker),
		descriptors: make(map[string]*models.WorkerDescriptor),
	}
}

// Register adds a worker to the registry. The worker's descriptor is
// copied so callers cannot mutate routing state from outside.
func (r *WorkerRegistry) Register(w models.Worker) error {
	desc := w.Descriptor()
	if desc == nil || desc.ID == "" {
		return fmt.Errorf("worker descriptor must have an ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[desc.ID]; exists {
		return fmt.Errorf("worker %q is already registered", desc.ID)
	}

	copied := *desc
	if copied.Status == "" {
		copied.Status = models.WorkerStatusAvailable
	}
	if copied.MaxConcurrentTasks <= 0 {
		copied.MaxConcurrentTasks = 1
	}

	r.workers[desc.ID] = w
	r.descriptors[desc.ID] = &copied
	return nil
}

// Unregister removes a worker from the registry.
func (r *WorkerRegistry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; !exists {
		return fmt.Errorf("worker %q is not registered", id)
	}
	delete(r.workers, id)
	delete(r.descriptors, id)
	return nil
}

// Worker returns the worker instance for the given ID, or nil.
func (r *WorkerRegistry) Worker(id string) models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[id]
}

// Descriptor returns a copy of the worker's descriptor, or nil if the
// worker is not registered.
func (r *WorkerRegistry) Descriptor(id string) *models.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[id]
	if !ok {
		return nil
	}
	copied := *d
	return &copied
}

// Available returns copies of the descriptors of all workers currently
// accepting tasks.
func (r *WorkerRegistry) Available() []*models.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.WorkerDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.Status == models.WorkerStatusAvailable {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out
}

// Count returns the number of registered workers.
func (r *WorkerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// acquire increments the worker's task count, flipping the status to
// busy when the worker reaches capacity. It fails if the worker is not
// available or already at capacity.
func (r *WorkerRegistry) acquire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[id]
	if !ok {
		return fmt.Errorf("worker %q is not registered", id)
	}
	if d.Status != models.WorkerStatusAvailable {
		return fmt.Errorf("worker %q is %s", id, d.Status)
	}
	if d.CurrentTaskCount >= d.MaxConcurrentTasks {
		return fmt.Errorf("worker %q is at capacity", id)
	}

	d.CurrentTaskCount++
	if d.CurrentTaskCount >= d.MaxConcurrentTasks {
		d.Status = models.WorkerStatusBusy
	}
	return nil
}

// release decrements the worker's task count and restores available
// status unless the worker is in an error cooldown or offline.
func (r *WorkerRegistry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[id]
	if !ok {
		return
	}
	if d.CurrentTaskCount > 0 {
		d.CurrentTaskCount--
	}
	if d.Status == models.WorkerStatusBusy && d.CurrentTaskCount < d.MaxConcurrentTasks {
		d.Status = models.WorkerStatusAvailable
	}
}

// setStatus overrides the worker's status. Used for error cooldowns.
func (r *WorkerRegistry) setStatus(id string, status models.WorkerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.descriptors[id]; ok {
		d.Status = status
	}
}

// setMaxConcurrent adjusts the worker's concurrency limit and fixes up
// the busy/available status relative to the new limit.
func (r *WorkerRegistry) setMaxConcurrent(id string, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[id]
	if !ok {
		return
	}
	d.MaxConcurrentTasks = max
	switch {
	case d.Status == models.WorkerStatusBusy && d.CurrentTaskCount < max:
		d.Status = models.WorkerStatusAvailable
	case d.Status == models.WorkerStatusAvailable && d.CurrentTaskCount >= max:
		d.Status = models.WorkerStatusBusy
	}
}

// ids returns all registered worker IDs.
func (r *WorkerRegistry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		out = append(out, id)
	}
	return out
}
