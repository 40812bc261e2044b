package state

import (
	"context"
	"fmt"
	"time"

	"github.com/dirigent-sh/dirigent/internal/planner"
)

// SaveOutcome stores one task execution record. It implements the
// planner's OutcomePersister interface.
func (db *DB) SaveOutcome(ctx context.Context, o planner.Outcome) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO outcomes (worker_id, task_type, intent, success, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.WorkerID, o.TaskType, o.Intent, boolToInt(o.Success), o.Duration.Milliseconds(), formatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, oldest first, for warming
// an in-memory learning store on startup.
func (db *DB) RecentOutcomes(ctx context.Context, limit int) ([]planner.Outcome, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT worker_id, task_type, intent, success, duration_ms, created_at
		FROM (
			SELECT * FROM outcomes ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []planner.Outcome
	for rows.Next() {
		var (
			o          planner.Outcome
			success    int
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&o.WorkerID, &o.TaskType, &o.Intent, &success, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Success = success != 0
		o.Duration = millisToDuration(durationMS)
		if t, err := parseTime(createdAt); err == nil {
			o.CreatedAt = t
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// WorkerSuccessRate returns the persisted success ratio for a worker, or
// 1.0 when no outcomes are recorded.
func (db *DB) WorkerSuccessRate(ctx context.Context, workerID string) (float64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var total, succeeded int
	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success), 0) FROM outcomes WHERE worker_id = ?
	`, workerID)
	if err := row.Scan(&total, &succeeded); err != nil {
		return 0, fmt.Errorf("query success rate: %w", err)
	}
	if total == 0 {
		return 1.0, nil
	}
	return float64(succeeded) / float64(total), nil
}

// SavePattern stores one learned task pattern.
func (db *DB) SavePattern(ctx context.Context, p planner.TaskPattern) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO patterns (intent, description, complexity, created_at)
		VALUES (?, ?, ?, ?)
	`, p.Intent, p.Description, p.Complexity, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// PatternsByIntent returns the stored patterns for an intent, oldest first.
func (db *DB) PatternsByIntent(ctx context.Context, intent string) ([]planner.TaskPattern, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT intent, description, complexity, created_at
		FROM patterns WHERE intent = ? ORDER BY id ASC
	`, intent)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []planner.TaskPattern
	for rows.Next() {
		var (
			p         planner.TaskPattern
			createdAt string
		)
		if err := rows.Scan(&p.Intent, &p.Description, &p.Complexity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if t, err := parseTime(createdAt); err == nil {
			p.CreatedAt = t
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
