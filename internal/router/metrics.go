package router

import (
	"sync"
	"time"
)

// WorkerStats aggregates routing outcomes for one worker.
type WorkerStats struct {
	// Completed is the number of successfully completed tasks.
	Completed int
	// Failed is the number of failed tasks.
	Failed int
}

// Total returns the number of finished tasks for the worker.
func (s WorkerStats) Total() int { return s.Completed + s.Failed }

// SuccessRate returns the completed/total ratio, or 1.0 when the worker
// has no history yet (new workers are not penalized).
func (s WorkerStats) SuccessRate() float64 {
	total := s.Total()
	if total == 0 {
		return 1.0
	}
	return float64(s.Completed) / float64(total)
}

// Metrics is a point-in-time snapshot of the router's counters.
type Metrics struct {
	// TotalRoutes is the number of Route calls that found a worker.
	TotalRoutes int
	// FailedRoutes is the number of Route calls that found no worker.
	FailedRoutes int
	// TasksCompleted is the number of worker executions that succeeded.
	TasksCompleted int
	// TasksFailed is the number of worker executions that failed.
	TasksFailed int
	// AverageRoutingTime is the mean time spent selecting a worker.
	AverageRoutingTime time.Duration
	// Workers holds per-worker outcome statistics.
	Workers map[string]WorkerStats
}

// metricsStore accumulates routing statistics. It also serves as the
// default history provider for the scoring term.
type metricsStore struct {
	totalRoutes    int
	failedRoutes   int
	tasksCompleted int
	tasksFailed    int
	routingTime    time.Duration
	workers        map[string]WorkerStats
	mu             sync.RWMutex
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		workers: make(map[string]WorkerStats),
	}
}

// recordRoute records the outcome of worker selection.
func (m *metricsStore) recordRoute(elapsed time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.totalRoutes++
	} else {
		m.failedRoutes++
	}
	m.routingTime += elapsed
}

// recordOutcome records the outcome of a worker execution.
func (m *metricsStore) recordOutcome(workerID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.workers[workerID]
	if success {
		stats.Completed++
		m.tasksCompleted++
	} else {
		stats.Failed++
		m.tasksFailed++
	}
	m.workers[workerID] = stats
}

// SuccessRate implements HistoryProvider over the in-memory counters.
func (m *metricsStore) SuccessRate(workerID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workers[workerID].SuccessRate()
}

// stats returns the outcome counters for one worker.
func (m *metricsStore) stats(workerID string) WorkerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workers[workerID]
}

// snapshot returns a copy of all counters.
func (m *metricsStore) snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workers := make(map[string]WorkerStats, len(m.workers))
	for id, stats := range m.workers {
		workers[id] = stats
	}

	var avg time.Duration
	if attempts := m.totalRoutes + m.failedRoutes; attempts > 0 {
		avg = m.routingTime / time.Duration(attempts)
	}

	return Metrics{
		TotalRoutes:        m.totalRoutes,
		FailedRoutes:       m.failedRoutes,
		TasksCompleted:     m.tasksCompleted,
		TasksFailed:        m.tasksFailed,
		AverageRoutingTime: avg,
		Workers:            workers,
	}
}
