package planner

import (
	"context"
	"sync"
	"time"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

const (
	// maxPatternsPerIntent bounds the per-intent task-pattern history.
	maxPatternsPerIntent = 50
	// maxOutcomes bounds the outcome history, oldest evicted first.
	maxOutcomes = 1000
)

// TaskPattern is one remembered analysis, grouped by intent.
type TaskPattern struct {
	// Intent is the classified intent.
	Intent string `json:"intent"`
	// Description is the analyzed task description.
	Description string `json:"description"`
	// Complexity is the computed complexity score.
	Complexity float64 `json:"complexity"`
	// CreatedAt is when the pattern was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is one completed task execution record.
type Outcome struct {
	// WorkerID is the worker that executed the task.
	WorkerID string `json:"worker_id"`
	// TaskType is the task's free-form type string.
	TaskType string `json:"task_type"`
	// Intent is the classified intent, when known.
	Intent string `json:"intent,omitempty"`
	// Success indicates whether the task completed.
	Success bool `json:"success"`
	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`
	// CreatedAt is when the outcome was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// OutcomePersister receives outcomes for durable storage. The learning
// store calls it best-effort; persistence failures never block recording.
type OutcomePersister interface {
	SaveOutcome(ctx context.Context, o Outcome) error
}

// LearningStore is the planner's bounded memory of analyses and
// outcomes. It only biases the router's historical scoring term; it
// never gates or blocks a decision on its own.
type LearningStore struct {
	patterns  map[string][]TaskPattern
	outcomes  []Outcome
	persister OutcomePersister
	mu        sync.RWMutex
}

// NewLearningStore creates an empty learning store.
func NewLearningStore() *LearningStore {
	return &LearningStore{
		patterns: make(map[string][]TaskPattern),
	}
}

// SetPersister attaches a durable store for recorded outcomes.
func (s *LearningStore) SetPersister(p OutcomePersister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// RecordPattern remembers an analysis under its intent, evicting the
// oldest pattern past the per-intent cap.
func (s *LearningStore) RecordPattern(cog models.Cognition, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.patterns[cog.Intent], TaskPattern{
		Intent:      cog.Intent,
		Description: description,
		Complexity:  cog.Complexity,
		CreatedAt:   time.Now(),
	})
	if len(list) > maxPatternsPerIntent {
		list = list[len(list)-maxPatternsPerIntent:]
	}
	s.patterns[cog.Intent] = list
}

// RecordOutcome remembers a task execution, evicting the oldest outcome
// past the cap, and persists it when a persister is attached.
func (s *LearningStore) RecordOutcome(ctx context.Context, o Outcome) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	if len(s.outcomes) > maxOutcomes {
		s.outcomes = s.outcomes[len(s.outcomes)-maxOutcomes:]
	}
	persister := s.persister
	s.mu.Unlock()

	if persister != nil {
		// Best-effort: in-memory state is already updated.
		_ = persister.SaveOutcome(ctx, o)
	}
}

// SuccessRate returns the worker's success ratio over recorded outcomes,
// or 1.0 when the worker has no history (new workers are not penalized).
// It satisfies the router's HistoryProvider interface.
func (s *LearningStore) SuccessRate(workerID string) float64 {
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
		return 1.0
	}
	return float64(succeeded) / float64(total)
}

// Patterns returns a copy of the remembered patterns for an intent.
func (s *LearningStore) Patterns(intent string) []TaskPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TaskPattern(nil), s.patterns[intent]...)
}

// Outcomes returns a copy of the outcome history, oldest first.
func (s *LearningStore) Outcomes() []Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Outcome(nil), s.outcomes...)
}
