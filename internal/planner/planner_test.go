package planner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/pkg/models"
)

func TestAnalyzeClassifiesIntent(t *testing.T) {
	p := New(bus.New())

	cases := []struct {
		description string
		wantIntent  string
	}{
		{"create a new REST endpoint for users", IntentCreate},
		{"delete the stale cache entries", IntentDelete},
		{"deploy the release to staging", IntentDeploy},
		{"fix the crash in the login handler", IntentDebug},
		{"refactor the payment module and extract helpers", IntentRefactor},
		{"run the test suite and verify coverage", IntentTest},
	}

	for _, tc := range cases {
		t.Run(tc.wantIntent, func(t *testing.T) {
			cog := p.Analyze(tc.description, nil)
			if cog.Intent != tc.wantIntent {
				t.Errorf("Analyze(%q).Intent = %s, want %s", tc.description, cog.Intent, tc.wantIntent)
			}
			if cog.Confidence <= 0.1 {
				t.Errorf("confidence = %f, want above the no-match floor", cog.Confidence)
			}
			if len(cog.RequiredCapabilities) == 0 {
				t.Error("expected required capabilities for a recognized intent")
			}
		})
	}
}

func TestAnalyzeDefaultsWithoutKeywords(t *testing.T) {
	p := New(bus.New())
	cog := p.Analyze("qwxz zzyw", nil)
	if cog.Intent != IntentAnalyze {
		t.Errorf("intent = %s, want analyze default", cog.Intent)
	}
	if cog.Confidence != 0.1 {
		t.Errorf("confidence = %f, want 0.1 floor", cog.Confidence)
	}
}

func TestAnalyzeExtractsEntities(t *testing.T) {
	p := New(bus.New())
	cog := p.Analyze("update main.go and the UserService component, then check main.go again", nil)

	want := map[string]bool{"main.go": false, "UserService": false}
	for _, e := range cog.Entities {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for entity, found := range want {
		if !found {
			t.Errorf("entity %q not extracted (got %v)", entity, cog.Entities)
		}
	}

	count := 0
	for _, e := range cog.Entities {
		if e == "main.go" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("main.go appears %d times, want deduplicated", count)
	}
}

func TestAnalyzeComplexityClipping(t *testing.T) {
	p := New(bus.New())

	simple := p.Analyze("read the log", nil)
	if simple.Complexity < 1 || simple.Complexity > 10 {
		t.Errorf("complexity %f outside [1,10]", simple.Complexity)
	}

	// Many entities and dependencies push the raw score far past 10.
	busy := p.Analyze("refactor a.go b.go c.go d.go e.go f.go g.go", []string{"t1", "t2", "t3"})
	if busy.Complexity != 10 {
		t.Errorf("complexity = %f, want clipped to 10", busy.Complexity)
	}
}

func TestAnalyzeRiskEscalation(t *testing.T) {
	p := New(bus.New())

	cases := []struct {
		name        string
		description string
		deps        []string
		want        models.RiskLevel
	}{
		{"routine read", "read the changelog", nil, models.RiskLow},
		{"destructive intent", "delete the old logs", nil, models.RiskMedium},
		{"destructive plus sensitive file", "delete package.json", nil, models.RiskHigh},
		{"sensitive file only", "update the config.yaml defaults", nil, models.RiskMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cog := p.Analyze(tc.description, tc.deps)
			if cog.Risk != tc.want {
				t.Errorf("risk = %s, want %s", cog.Risk, tc.want)
			}
		})
	}
}

func TestPlanStrategySelection(t *testing.T) {
	p := New(bus.New())

	cases := []struct {
		name string
		cog  models.Cognition
		want models.Strategy
	}{
		{"low complexity", models.Cognition{Complexity: 2}, models.StrategySequential},
		{"has dependencies", models.Cognition{Complexity: 6, Dependencies: []string{"t1"}}, models.StrategySequential},
		{"high risk", models.Cognition{Complexity: 6, Risk: models.RiskHigh}, models.StrategySequential},
		{"many entities", models.Cognition{Complexity: 6, Entities: []string{"a", "b", "c", "d", "e", "f"}}, models.StrategyParallel},
		{"default", models.Cognition{Complexity: 6}, models.StrategyAdaptive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.selectStrategy(tc.cog); got != tc.want {
				t.Errorf("strategy = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPlanStrategyOverride(t *testing.T) {
	p := New(bus.New(), WithStrategyOverride(models.StrategyHybrid))
	plan := p.Plan(models.Cognition{Intent: IntentCreate, Complexity: 2})
	if plan.Strategy != models.StrategyHybrid {
		t.Errorf("strategy = %s, want hybrid override", plan.Strategy)
	}
}

func TestPlanHasFourCanonicalPhases(t *testing.T) {
	p := New(bus.New())
	cog := p.Analyze("create a new parser for config.toml", nil)
	plan := p.Plan(cog)

	wantOrder := []string{PhasePreparation, PhaseAnalysis, PhaseExecution, PhaseValidation}
	if len(plan.Phases) != len(wantOrder) {
		t.Fatalf("got %d phases, want %d", len(plan.Phases), len(wantOrder))
	}
	for i, name := range wantOrder {
		if plan.Phases[i].Name != name {
			t.Errorf("phase[%d] = %s, want %s", i, plan.Phases[i].Name, name)
		}
		if i > 0 && len(plan.Phases[i].DependsOn) == 0 {
			t.Errorf("phase %s has no dependency on the prior phase", name)
		}
	}

	exec := plan.Phase(PhaseExecution)
	if exec == nil {
		t.Fatal("no execution phase")
	}
	if exec.Type != cog.Intent {
		t.Errorf("execution phase type = %s, want intent %s", exec.Type, cog.Intent)
	}
	if len(exec.Tools) == 0 {
		t.Error("execution phase has no tool subset")
	}
	if len(plan.Checkpoints) != len(plan.Phases) {
		t.Errorf("got %d checkpoints, want one per phase", len(plan.Checkpoints))
	}
}

func TestPlanExecutionScalesWithComplexity(t *testing.T) {
	p := New(bus.New())
	smallPlan := p.Plan(models.Cognition{Intent: IntentCreate, Complexity: 2})
	largePlan := p.Plan(models.Cognition{Intent: IntentCreate, Complexity: 9})
	small := smallPlan.Phase(PhaseExecution)
	large := largePlan.Phase(PhaseExecution)
	if small.EstimatedDuration >= large.EstimatedDuration {
		t.Errorf("execution duration did not scale: %s vs %s",
			small.EstimatedDuration, large.EstimatedDuration)
	}
}

func TestPlanDurationByStrategy(t *testing.T) {
	cog := models.Cognition{Intent: IntentCreate, Complexity: 5}
	phases := buildPhases(cog)

	var sum, max time.Duration
	for _, ph := range phases {
		sum += ph.EstimatedDuration
		if ph.EstimatedDuration > max {
			max = ph.EstimatedDuration
		}
	}

	cases := []struct {
		strategy models.Strategy
		want     time.Duration
	}{
		{models.StrategySequential, sum},
		{models.StrategyParallel, max + parallelOverhead},
		{models.StrategyHybrid, time.Duration(float64(sum) * hybridFactor)},
		{models.StrategyAdaptive, time.Duration(float64(sum) * adaptiveFactor)},
	}

	for _, tc := range cases {
		if got := totalDuration(tc.strategy, phases); got != tc.want {
			t.Errorf("%s duration = %s, want %s", tc.strategy, got, tc.want)
		}
	}
}

func TestPlanPublishesLifecycleEvents(t *testing.T) {
	events := bus.New()
	p := New(events)

	plan := p.Plan(models.Cognition{Intent: IntentCreate, Complexity: 5})
	p.Approve(plan)
	p.MarkExecuted(plan)

	history := events.History(nil)
	got := make(map[bus.EventType]int)
	for _, ev := range history {
		got[ev.Type]++
	}
	for _, typ := range []bus.EventType{bus.EventPlanGenerated, bus.EventPlanApproved, bus.EventPlanExecuted} {
		if got[typ] != 1 {
			t.Errorf("%s published %d times, want 1", typ, got[typ])
		}
	}
}

func TestCustomClassifier(t *testing.T) {
	fixed := classifierFunc(func(text string) Classification {
		return Classification{Intent: IntentDeploy, Confidence: 0.9}
	})
	p := New(bus.New(), WithClassifier(fixed))

	cog := p.Analyze("anything at all", nil)
	if cog.Intent != IntentDeploy {
		t.Errorf("intent = %s, want classifier substitute to win", cog.Intent)
	}
}

type classifierFunc func(text string) Classification

func (f classifierFunc) Classify(text string) Classification { return f(text) }

func TestLearningStoreCaps(t *testing.T) {
	s := NewLearningStore()

	for i := 0; i < maxPatternsPerIntent+10; i++ {
		s.RecordPattern(models.Cognition{Intent: IntentCreate}, fmt.Sprintf("task %d", i))
	}
	patterns := s.Patterns(IntentCreate)
	if len(patterns) != maxPatternsPerIntent {
		t.Errorf("got %d patterns, want cap %d", len(patterns), maxPatternsPerIntent)
	}
	if patterns[0].Description != "task 10" {
		t.Errorf("oldest pattern = %q, want oldest evicted first", patterns[0].Description)
	}

	for i := 0; i < maxOutcomes+5; i++ {
		s.RecordOutcome(context.Background(), Outcome{WorkerID: "w1", Success: true})
	}
	if got := len(s.Outcomes()); got != maxOutcomes {
		t.Errorf("got %d outcomes, want cap %d", got, maxOutcomes)
	}
}

func TestLearningStoreSuccessRate(t *testing.T) {
	s := NewLearningStore()

	if rate := s.SuccessRate("unknown"); rate != 1.0 {
		t.Errorf("rate for unseen worker = %f, want 1.0", rate)
	}

	ctx := context.Background()
	s.RecordOutcome(ctx, Outcome{WorkerID: "w1", Success: true})
	s.RecordOutcome(ctx, Outcome{WorkerID: "w1", Success: true})
	s.RecordOutcome(ctx, Outcome{WorkerID: "w1", Success: false})
	s.RecordOutcome(ctx, Outcome{WorkerID: "w2", Success: false})

	if rate := s.SuccessRate("w1"); rate < 0.66 || rate > 0.67 {
		t.Errorf("w1 rate = %f, want 2/3", rate)
	}
	if rate := s.SuccessRate("w2"); rate != 0 {
		t.Errorf("w2 rate = %f, want 0", rate)
	}
}

type recordingPersister struct {
	saved []Outcome
}

func (r *recordingPersister) SaveOutcome(ctx context.Context, o Outcome) error {
	r.saved = append(r.saved, o)
	return nil
}

func TestLearningStorePersists(t *testing.T) {
	s := NewLearningStore()
	p := &recordingPersister{}
	s.SetPersister(p)

	s.RecordOutcome(context.Background(), Outcome{WorkerID: "w1", TaskType: "build", Success: true})
	if len(p.saved) != 1 {
		t.Fatalf("persisted %d outcomes, want 1", len(p.saved))
	}
	if p.saved[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped before persisting")
	}
}
