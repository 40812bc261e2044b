package state

import (
	"context"
	"sync"

	"github.com/dirigent-sh/dirigent/internal/planner"
)

// MemoryStore is an in-memory Store implementation for tests and for
// running without a database file.
type MemoryStore struct {
	outcomes []planner.Outcome
	patterns map[string][]planner.TaskPattern
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patterns: make(map[string][]planner.TaskPattern),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate() error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// SaveOutcome appends one task execution record.
func (s *MemoryStore) SaveOutcome(ctx context.Context, o planner.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

// RecentOutcomes returns up to limit outcomes, oldest first.
func (s *MemoryStore) RecentOutcomes(ctx context.Context, limit int) ([]planner.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.outcomes) > limit {
		start = len(s.outcomes) - limit
	}
	return append([]planner.Outcome(nil), s.outcomes[start:]...), nil
}

// WorkerSuccessRate returns the stored success ratio for a worker, or
// 1.0 when no outcomes are recorded.
func (s *MemoryStore) WorkerSuccessRate(ctx context.Context, workerID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, succeeded int
	for _, o := range s.outcomes {
		if o.WorkerID != workerID {
			continue
		}
		total++
		if o.Success {
			succeeded++
		}
	}
	if total == 0 {
		return 1.0, nil
	}
	return float64(succeeded) / float64(total), nil
}

// SavePattern appends one learned task pattern.
func (s *MemoryStore) SavePattern(ctx context.Context, p planner.TaskPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.Intent] = append(s.patterns[p.Intent], p)
	return nil
}

// PatternsByIntent returns the stored patterns for an intent, oldest first.
func (s *MemoryStore) PatternsByIntent(ctx context.Context, intent string) ([]planner.TaskPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]planner.TaskPattern(nil), s.patterns[intent]...), nil
}

// Compile-time verification that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
