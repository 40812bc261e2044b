package planner

import (
	"strings"
	"time"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/logging"
	"github.com/dirigent-sh/dirigent/pkg/models"
)

// Canonical phase names. Every plan contains all four, in this order.
const (
	PhasePreparation = "preparation"
	PhaseAnalysis    = "analysis"
	PhaseExecution   = "execution"
	PhaseValidation  = "validation"
)

// Base durations for the fixed phases. The execution phase scales with
// complexity instead of using a fixed base.
const (
	preparationDuration = 2 * time.Minute
	analysisDuration    = 3 * time.Minute
	validationDuration  = 2 * time.Minute
	// executionPerPoint is the execution-phase duration per complexity point.
	executionPerPoint = 2 * time.Minute
	// parallelOverhead is added to the longest phase under the parallel strategy.
	parallelOverhead = 30 * time.Second
	// hybridFactor and adaptiveFactor discount the sequential phase sum.
	hybridFactor   = 0.7
	adaptiveFactor = 0.8
)

// intentBaseWeight is the complexity contribution of the intent itself.
var intentBaseWeight = map[string]float64{
	IntentCreate:   3,
	IntentRead:     1,
	IntentUpdate:   2,
	IntentDelete:   2,
	IntentAnalyze:  2,
	IntentOptimize: 4,
	IntentDeploy:   4,
	IntentTest:     2,
	IntentDebug:    3,
	IntentRefactor: 4,
}

// intentCapabilities maps intents to the capability vocabulary the
// router scores against.
var intentCapabilities = map[string][]string{
	IntentCreate:   {"file-write", "code-modify"},
	IntentRead:     {"file-read"},
	IntentUpdate:   {"code-modify", "file-write"},
	IntentDelete:   {"file-write"},
	IntentAnalyze:  {"file-read"},
	IntentOptimize: {"code-modify", "testing"},
	IntentDeploy:   {"command-execute", "system-setup"},
	IntentTest:     {"testing", "command-execute"},
	IntentDebug:    {"debugging", "file-read"},
	IntentRefactor: {"code-modify", "testing"},
}

// intentWorkers maps intents to suggested worker specializations.
var intentWorkers = map[string][]string{
	IntentCreate:   {"builder"},
	IntentRead:     {"analyst"},
	IntentUpdate:   {"builder"},
	IntentDelete:   {"builder"},
	IntentAnalyze:  {"analyst"},
	IntentOptimize: {"builder", "tester"},
	IntentDeploy:   {"operator"},
	IntentTest:     {"tester"},
	IntentDebug:    {"debugger"},
	IntentRefactor: {"builder", "tester"},
}

// intentTools maps intents to the execution-phase tool subset.
var intentTools = map[string][]string{
	IntentCreate:   {"file_write"},
	IntentRead:     {"file_read"},
	IntentUpdate:   {"file_read", "file_write"},
	IntentDelete:   {"file_write", "run_command"},
	IntentAnalyze:  {"file_read"},
	IntentOptimize: {"file_read", "file_write", "run_command"},
	IntentDeploy:   {"run_command"},
	IntentTest:     {"run_command"},
	IntentDebug:    {"file_read", "run_command"},
	IntentRefactor: {"file_read", "file_write", "run_command"},
}

// destructiveIntents escalate risk one level on their own.
var destructiveIntents = map[string]bool{
	IntentDelete:   true,
	IntentDeploy:   true,
	IntentRefactor: true,
}

// sensitiveNames are filename fragments that escalate risk when they
// appear among the extracted entities.
var sensitiveNames = []string{"package.json", "config", ".env", "env."}

// Planner analyzes task descriptions into cognition records and builds
// phased orchestration plans from them.
type Planner struct {
	classifier Classifier
	events     *bus.Bus
	logger     *logging.DebugLogger
	learning   *LearningStore

	// strategyOverride, when valid, replaces the heuristic strategy choice.
	strategyOverride models.Strategy
}

// Option configures a Planner.
type Option func(*Planner)

// WithClassifier swaps the stock keyword classifier for another
// implementation.
func WithClassifier(c Classifier) Option {
	return func(p *Planner) {
		if c != nil {
			p.classifier = c
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithLearningStore shares a learning store with the planner so analyses
// feed the pattern history.
func WithLearningStore(s *LearningStore) Option {
	return func(p *Planner) {
		if s != nil {
			p.learning = s
		}
	}
}

// WithStrategyOverride forces every plan onto the given strategy.
func WithStrategyOverride(s models.Strategy) Option {
	return func(p *Planner) { p.strategyOverride = s }
}

// New creates a Planner publishing plan lifecycle events on the bus.
func New(events *bus.Bus, opts ...Option) *Planner {
	p := &Planner{
		classifier: NewKeywordClassifier(),
		events:     events,
		logger:     logging.NopLogger(),
		learning:   NewLearningStore(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Learning returns the planner's learning store, for sharing with the
// router's historical scoring term.
func (p *Planner) Learning() *LearningStore { return p.learning }

// Analyze classifies a task description into a cognition record.
// Complexity combines the intent's base weight, 1.5 per entity, and 2
// per dependency, clipped to [1,10].
func (p *Planner) Analyze(description string, dependencies []string) models.Cognition {
	cls := p.classifier.Classify(description)

	complexity := intentBaseWeight[cls.Intent] +
		1.5*float64(len(cls.Entities)) +
		2*float64(len(dependencies))
	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}

	cog := models.Cognition{
		Intent:               cls.Intent,
		Confidence:           cls.Confidence,
		Entities:             cls.Entities,
		Complexity:           complexity,
		Risk:                 assessRisk(cls, complexity),
		RequiredCapabilities: intentCapabilities[cls.Intent],
		SuggestedWorkers:     intentWorkers[cls.Intent],
		Dependencies:         dependencies,
	}

	p.learning.RecordPattern(cog, description)
	p.logger.Log("[planner] analyzed %q: intent=%s complexity=%.1f risk=%s",
		description, cog.Intent, cog.Complexity, cog.Risk)
	return cog
}

// assessRisk starts at low and escalates one level per factor:
// destructive intent, sensitive filename among the entities, and
// complexity at 8 or above.
func assessRisk(cls Classification, complexity float64) models.RiskLevel {
	level := 0
	if destructiveIntents[cls.Intent] {
		level++
	}
	if hasSensitiveEntity(cls.Entities) {
		level++
	}
	if complexity >= 8 {
		level++
	}

	switch {
	case level >= 2:
		return models.RiskHigh
	case level == 1:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func hasSensitiveEntity(entities []string) bool {
	for _, e := range entities {
		lower := strings.ToLower(e)
		for _, name := range sensitiveNames {
			if strings.Contains(lower, name) {
				return true
			}
		}
	}
	return false
}

// Plan builds the four-phase orchestration plan for a cognition record
// and publishes plan.generated.
func (p *Planner) Plan(cog models.Cognition) models.OrchestrationPlan {
	strategy := p.selectStrategy(cog)
	phases := buildPhases(cog)

	plan := models.OrchestrationPlan{
		Strategy:           strategy,
		Phases:             phases,
		Resources:          resourcesFor(cog),
		FallbackStrategies: fallbacksFor(strategy),
		Checkpoints:        checkpointsFor(phases),
		EstimatedDuration:  totalDuration(strategy, phases),
		CreatedAt:          time.Now(),
	}

	p.events.Publish(bus.EventPlanGenerated, plan, bus.PublishOptions{Source: "planner"})
	p.logger.Log("[planner] plan generated: strategy=%s duration=%s", strategy, plan.EstimatedDuration)
	return plan
}

// Approve marks a plan as approved and publishes plan.approved.
func (p *Planner) Approve(plan models.OrchestrationPlan) {
	p.events.Publish(bus.EventPlanApproved, plan, bus.PublishOptions{Source: "planner"})
}

// MarkExecuted publishes plan.executed for observability once the
// embedding application has run the plan.
func (p *Planner) MarkExecuted(plan models.OrchestrationPlan) {
	p.events.Publish(bus.EventPlanExecuted, plan, bus.PublishOptions{Source: "planner"})
}

// selectStrategy applies the stock heuristic unless an override is set.
// The hybrid strategy is never chosen heuristically; it is reachable
// only via the override.
func (p *Planner) selectStrategy(cog models.Cognition) models.Strategy {
	if p.strategyOverride.Valid() {
		return p.strategyOverride
	}
	switch {
	case cog.Complexity <= 3 || len(cog.Dependencies) > 0 || cog.Risk == models.RiskHigh:
		return models.StrategySequential
	case len(cog.Entities) > 5:
		return models.StrategyParallel
	default:
		return models.StrategyAdaptive
	}
}

// buildPhases produces the four canonical phases. Each depends on the
// prior one; only the execution phase scales with complexity.
func buildPhases(cog models.Cognition) []models.OrchestrationPhase {
	execution := time.Duration(cog.Complexity * float64(executionPerPoint))
	return []models.OrchestrationPhase{
		{
			Name:              PhasePreparation,
			Type:              "setup",
			Workers:           []string{"coordinator"},
			Tools:             []string{"file_read"},
			EstimatedDuration: preparationDuration,
			SuccessCriteria:   []string{"working directory resolved", "required tools registered"},
			Fallbacks:         []string{"abort"},
		},
		{
			Name:              PhaseAnalysis,
			Type:              "analysis",
			Workers:           []string{"analyst"},
			Tools:             []string{"file_read"},
			DependsOn:         []string{PhasePreparation},
			EstimatedDuration: analysisDuration,
			SuccessCriteria:   []string{"affected files identified"},
			Fallbacks:         []string{"retry", "abort"},
		},
		{
			Name:              PhaseExecution,
			Type:              cog.Intent,
			Workers:           cog.SuggestedWorkers,
			Tools:             intentTools[cog.Intent],
			DependsOn:         []string{PhaseAnalysis},
			EstimatedDuration: execution,
			SuccessCriteria:   []string{"all steps completed"},
			Fallbacks:         []string{"retry", "rollback"},
		},
		{
			Name:              PhaseValidation,
			Type:              "verification",
			Workers:           []string{"tester"},
			Tools:             []string{"run_command"},
			DependsOn:         []string{PhaseExecution},
			EstimatedDuration: validationDuration,
			SuccessCriteria:   []string{"checks pass"},
			Fallbacks:         []string{"report"},
		},
	}
}

// totalDuration applies the strategy adjustment to the phase durations:
// parallel takes the longest phase plus overhead, hybrid and adaptive
// discount the sequential sum, sequential takes the full sum.
func totalDuration(strategy models.Strategy, phases []models.OrchestrationPhase) time.Duration {
	var sum, max time.Duration
	for _, ph := range phases {
		sum += ph.EstimatedDuration
		if ph.EstimatedDuration > max {
			max = ph.EstimatedDuration
		}
	}
	switch strategy {
	case models.StrategyParallel:
		return max + parallelOverhead
	case models.StrategyHybrid:
		return time.Duration(float64(sum) * hybridFactor)
	case models.StrategyAdaptive:
		return time.Duration(float64(sum) * adaptiveFactor)
	default:
		return sum
	}
}

// resourcesFor scales the aggregate resource estimate with complexity.
func resourcesFor(cog models.Cognition) models.ResourceRequirements {
	res := models.DefaultResources()
	switch {
	case cog.Complexity >= 8:
		res.Memory = models.TierHigh
		res.CPU = models.TierHigh
	case cog.Complexity >= 5:
		res.Memory = models.TierMedium
		res.CPU = models.TierMedium
	}
	return res
}

// fallbacksFor lists plan-level fallback strategies, most preferred first.
func fallbacksFor(strategy models.Strategy) []string {
	if strategy == models.StrategySequential {
		return []string{"manual-review"}
	}
	return []string{string(models.StrategySequential), "manual-review"}
}

// checkpointsFor names one monitoring checkpoint after each phase.
func checkpointsFor(phases []models.OrchestrationPhase) []string {
	cps := make([]string, len(phases))
	for i, ph := range phases {
		cps[i] = "after-" + ph.Name
	}
	return cps
}
