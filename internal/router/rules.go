package router

import (
	"sort"
	"sync"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

// Rule is a named, priority-ordered routing policy unit. Both hooks are
// optional: Analyze may enrich the task analysis before scoring, and
// Select may pick a candidate or abstain by returning nil. Rules are
// evaluated in descending priority; the first non-nil selection wins.
type Rule struct {
	// Name identifies the rule for removal.
	Name string
	// Priority orders rule evaluation, highest first.
	Priority int
	// Analyze, if set, enriches the analysis before scoring.
	Analyze func(task *models.Task, analysis *TaskAnalysis)
	// Select, if set, inspects the scored candidates and either selects
	// one or returns nil to defer to lower-priority rules.
	Select func(task *models.Task, analysis *TaskAnalysis, candidates []Candidate) *Candidate
}

// ruleSet holds the registered rules sorted by descending priority.
// Rules are configuration: created at startup and immutable at runtime,
// with additions and removals as explicit API calls.
type ruleSet struct {
	rules []Rule
	mu    sync.RWMutex
}

// add registers a rule, keeping the set sorted by descending priority.
func (s *ruleSet) add(rule Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = append(s.rules, rule)
	sort.SliceStable(s.rules, func(i, j int) bool {
		return s.rules[i].Priority > s.rules[j].Priority
	})
}

// remove deletes a rule by name. It returns true if a rule was removed.
func (s *ruleSet) remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.Name == name {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the rules in evaluation order.
func (s *ruleSet) snapshot() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}
