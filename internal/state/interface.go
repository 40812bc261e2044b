// Package state provides SQLite-based persistence for Dirigent.
package state

import (
	"context"
	"io"

	"github.com/dirigent-sh/dirigent/internal/planner"
)

// OutcomeStore handles task-outcome persistence.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, o planner.Outcome) error
	RecentOutcomes(ctx context.Context, limit int) ([]planner.Outcome, error)
	WorkerSuccessRate(ctx context.Context, workerID string) (float64, error)
}

// PatternStore handles learned-pattern persistence.
type PatternStore interface {
	SavePattern(ctx context.Context, p planner.TaskPattern) error
	PatternsByIntent(ctx context.Context, intent string) ([]planner.TaskPattern, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for Dirigent persistence. The planner and
// router work with any backend without depending on the concrete SQLite
// implementation.
type Store interface {
	io.Closer
	Migrator
	OutcomeStore
	PatternStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store                    = (*DB)(nil)
	_ Migrator                 = (*DB)(nil)
	_ OutcomeStore             = (*DB)(nil)
	_ PatternStore             = (*DB)(nil)
	_ planner.OutcomePersister = (*DB)(nil)
)
