// Package workflow executes ordered, conditional, retryable chains of
// tool invocations, with dynamic step injection on success or failure
// and human-approval gates.
package workflow

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStepTimeout bounds a single tool invocation when the step does
// not set its own timeout.
const DefaultStepTimeout = 30 * time.Second

// StepResult records the outcome of one executed step.
type StepResult struct {
	// Step is the name of the executed step.
	Step string `json:"step"`
	// Tool is the tool the step invoked.
	Tool string `json:"tool"`
	// Success indicates whether the tool completed.
	Success bool `json:"success"`
	// Data holds the tool's output.
	Data map[string]any `json:"data,omitempty"`
	// Error contains the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`
}

// Step is one tool invocation in a chain. Parameters may reference prior
// results or context variables with a leading '$'.
type Step struct {
	// Name identifies the step in results and logs.
	Name string
	// Tool is the registry name of the tool to invoke.
	Tool string
	// Params are the tool parameters, resolved against the execution
	// context before the call.
	Params map[string]any
	// Condition, if set, is evaluated over prior results; the step is
	// skipped when it returns false.
	Condition func(previous []StepResult) bool
	// RetryCount is how many times a failing step is re-run before its
	// error handling applies.
	RetryCount int
	// Timeout bounds the tool invocation; DefaultStepTimeout when zero.
	Timeout time.Duration
	// AutoApprove, if set, overrides the chain's approval rules.
	AutoApprove *bool
	// OnSuccess, if set, returns additional steps spliced in immediately
	// after this one when it succeeds.
	OnSuccess func(result StepResult, ectx *ExecContext) []Step
	// OnError, if set, returns recovery steps spliced in immediately
	// after this one when its retries are exhausted.
	OnError func(err error, ectx *ExecContext) []Step
}

// SafetyCheck is a predicate evaluated before every step. A non-nil
// error aborts the entire chain: safety checks are chain-fatal, not
// step-fatal.
type SafetyCheck func(step Step, ectx *ExecContext) error

// Chain is a named, reusable sequence of steps with approval rules and
// safety checks. Chains are registered once and reused; every execution
// gets a fresh ExecContext.
type Chain struct {
	// ID is the chain's registry identifier.
	ID string
	// Name is the human-readable chain name.
	Name string
	// Description explains what the chain does.
	Description string
	// Steps is the ordered step sequence.
	Steps []Step
	// ParallelGroups are caller-driven step groups run via ExecuteGroup;
	// the sequential executor never auto-parallelizes them.
	ParallelGroups map[string][]Step
	// AutoApprovalRules decide approval when a step has no explicit
	// AutoApprove flag. Absent any match, approval is required.
	AutoApprovalRules []AutoApprovalRule
	// SafetyChecks run before every step and abort the chain on failure.
	SafetyChecks []SafetyCheck
}

// ChainResult is the structured outcome of a chain execution.
type ChainResult struct {
	// Success indicates the whole chain completed.
	Success bool `json:"success"`
	// ExecutedSteps is the number of steps that completed successfully
	// (retried steps count once).
	ExecutedSteps int `json:"executed_steps"`
	// TotalSteps is the final step count after dynamic injection.
	TotalSteps int `json:"total_steps"`
	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
	// Results holds one entry per successful step.
	Results []StepResult `json:"results"`
	// Errors holds failure messages accumulated during execution.
	Errors []string `json:"errors,omitempty"`
	// Logs holds the execution log lines.
	Logs []string `json:"logs,omitempty"`
	// Error is the terminal failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// ChainStatus summarizes a registered chain and its execution history.
type ChainStatus struct {
	// ID is the chain's registry identifier.
	ID string
	// Name is the chain's name.
	Name string
	// Steps is the registered (static) step count.
	Steps int
	// Executions is how many times the chain has run.
	Executions int
	// LastSuccess reports whether the most recent execution succeeded.
	LastSuccess bool
	// LastExecutedAt is when the chain last ran.
	LastExecutedAt time.Time
}

// chainRegistry stores registered chains and their execution stats.
type chainRegistry struct {
	chains map[string]*Chain
	status map[string]*ChainStatus
	mu     sync.RWMutex
}

func newChainRegistry() *chainRegistry {
	return &chainRegistry{
		chains: make(map[string]*Chain),
		status: make(map[string]*ChainStatus),
	}
}

// register adds a chain. Chains with an empty ID or no steps are rejected.
func (r *chainRegistry) register(c *Chain) error {
	if c.ID == "" {
		return fmt.Errorf("chain must have an ID")
	}
	if len(c.Steps) == 0 && len(c.ParallelGroups) == 0 {
		return fmt.Errorf("chain %q has no steps", c.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chains[c.ID]; exists {
		return fmt.Errorf("chain %q is already registered", c.ID)
	}
	r.chains[c.ID] = c
	r.status[c.ID] = &ChainStatus{ID: c.ID, Name: c.Name, Steps: len(c.Steps)}
	return nil
}

// get returns the chain with the given ID.
func (r *chainRegistry) get(id string) (*Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("chain %q is not registered", id)
	}
	return c, nil
}

// list returns all registered chain IDs.
func (r *chainRegistry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}

// chainStatus returns a copy of the chain's status.
func (r *chainRegistry) chainStatus(id string) (ChainStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.status[id]
	if !ok {
		return ChainStatus{}, fmt.Errorf("chain %q is not registered", id)
	}
	return *s, nil
}

// recordExecution updates a chain's execution stats.
func (r *chainRegistry) recordExecution(id string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.status[id]; ok {
		s.Executions++
		s.LastSuccess = success
		s.LastExecutedAt = time.Now()
	}
}
