package models

import "time"

// Strategy represents how a plan's phases should be executed.
type Strategy string

const (
	// StrategySequential runs phases one after another.
	StrategySequential Strategy = "sequential"
	// StrategyParallel runs independent phases concurrently.
	StrategyParallel Strategy = "parallel"
	// StrategyHybrid mixes sequential and parallel phase execution.
	StrategyHybrid Strategy = "hybrid"
	// StrategyAdaptive lets the executor pick per phase at runtime.
	StrategyAdaptive Strategy = "adaptive"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyHybrid, StrategyAdaptive:
		return true
	default:
		return false
	}
}

// RiskLevel represents how dangerous a task or tool invocation is.
type RiskLevel string

const (
	// RiskLow indicates routine, easily reversible work.
	RiskLow RiskLevel = "low"
	// RiskMedium indicates work that touches shared state.
	RiskMedium RiskLevel = "medium"
	// RiskHigh indicates destructive or hard-to-reverse work.
	RiskHigh RiskLevel = "high"
)

// ResourceTier represents an estimated resource requirement level.
type ResourceTier string

const (
	// TierLow is the baseline resource requirement.
	TierLow ResourceTier = "low"
	// TierMedium indicates elevated resource usage.
	TierMedium ResourceTier = "medium"
	// TierHigh indicates heavy resource usage.
	TierHigh ResourceTier = "high"
)

// ResourceRequirements estimates the resources a task or plan needs.
type ResourceRequirements struct {
	// Memory is the estimated memory tier.
	Memory ResourceTier `json:"memory"`
	// CPU is the estimated CPU tier.
	CPU ResourceTier `json:"cpu"`
	// Network is the estimated network tier.
	Network ResourceTier `json:"network"`
	// Storage is the estimated storage tier.
	Storage ResourceTier `json:"storage"`
}

// DefaultResources returns requirements with every tier set to low.
func DefaultResources() ResourceRequirements {
	return ResourceRequirements{
		Memory:  TierLow,
		CPU:     TierLow,
		Network: TierLow,
		Storage: TierLow,
	}
}

// Cognition is the derived analysis the planner produces for a task
// description before a plan is built. It is read-only after creation.
type Cognition struct {
	// Intent is the classified intent of the task description.
	Intent string `json:"intent"`
	// Confidence is how confident the classification is (0.0-1.0).
	Confidence float64 `json:"confidence"`
	// Entities are file names and component-like tokens found in the text.
	Entities []string `json:"entities,omitempty"`
	// Complexity is the estimated complexity on a 1-10 scale.
	Complexity float64 `json:"complexity"`
	// Risk is the estimated risk level.
	Risk RiskLevel `json:"risk"`
	// RequiredCapabilities lists capabilities the task likely needs.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// SuggestedWorkers lists specializations suited to the intent.
	SuggestedWorkers []string `json:"suggested_workers,omitempty"`
	// Dependencies lists task IDs this task depends on.
	Dependencies []string `json:"dependencies,omitempty"`
}

// OrchestrationPhase is one named stage of an orchestration plan.
type OrchestrationPhase struct {
	// Name identifies the phase (preparation, analysis, execution, validation).
	Name string `json:"name"`
	// Type classifies the kind of work done in this phase.
	Type string `json:"type"`
	// Workers lists the specializations assigned to this phase.
	Workers []string `json:"workers,omitempty"`
	// Tools lists the tool names this phase is expected to use.
	Tools []string `json:"tools,omitempty"`
	// DependsOn lists names of phases that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// EstimatedDuration is the expected wall-clock time for the phase.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// SuccessCriteria describes what a successful phase looks like.
	SuccessCriteria []string `json:"success_criteria,omitempty"`
	// Fallbacks lists actions to take if the phase fails.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// OrchestrationPlan is the phased execution plan built once per task by
// the planner and consumed read-only by workers before execution.
type OrchestrationPlan struct {
	// TaskID is the task this plan was built for, if known.
	TaskID string `json:"task_id,omitempty"`
	// Strategy is how the phases should be executed.
	Strategy Strategy `json:"strategy"`
	// Phases is the ordered list of plan phases.
	Phases []OrchestrationPhase `json:"phases"`
	// Resources is the aggregate resource requirement.
	Resources ResourceRequirements `json:"resources"`
	// FallbackStrategies lists plan-level fallbacks, most preferred first.
	FallbackStrategies []string `json:"fallback_strategies,omitempty"`
	// Checkpoints names the monitoring checkpoints for the plan.
	Checkpoints []string `json:"checkpoints,omitempty"`
	// EstimatedDuration is the strategy-adjusted total duration.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// CreatedAt is when the plan was generated.
	CreatedAt time.Time `json:"created_at"`
}

// Phase returns the phase with the given name, or nil if absent.
func (p *OrchestrationPlan) Phase(name string) *OrchestrationPhase {
	for i := range p.Phases {
		if p.Phases[i].Name == name {
			return &p.Phases[i]
		}
	}
	return nil
}
