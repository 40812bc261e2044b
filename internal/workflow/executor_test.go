package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/tools"
)

func boolPtr(b bool) *bool { return &b }

func approveAll() Approver {
	return ApproverFunc(func(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
		return ApprovalResponse{Approved: true}, nil
	})
}

// okTool returns a tool that always succeeds and echoes its parameters
// into the result data.
func okTool(name string) tools.Tool {
	return &tools.FuncTool{
		ToolName: name,
		Fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			data := map[string]any{"tool": name}
			for k, v := range params {
				data[k] = v
			}
			return &tools.Result{Success: true, Data: data}, nil
		},
	}
}

// flakyTool fails the first n invocations, then succeeds.
func flakyTool(name string, n int) tools.Tool {
	var calls int32
	return &tools.FuncTool{
		ToolName: name,
		Fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			if atomic.AddInt32(&calls, 1) <= int32(n) {
				return &tools.Result{Success: false, Error: "transient failure"}, nil
			}
			return &tools.Result{Success: true}, nil
		},
	}
}

func failTool(name string) tools.Tool {
	return &tools.FuncTool{
		ToolName: name,
		Fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			return &tools.Result{Success: false, Error: "permanent failure"}, nil
		},
	}
}

func slowTool(name string, d time.Duration) tools.Tool {
	return &tools.FuncTool{
		ToolName: name,
		Fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			select {
			case <-time.After(d):
				return &tools.Result{Success: true}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func newTestOrchestrator(t *testing.T, toolset []tools.Tool, opts ...Option) *Orchestrator {
	t.Helper()
	reg := tools.NewRegistry()
	for _, tool := range toolset {
		reg.Register(tool)
	}
	return New(reg, bus.New(), opts...)
}

func TestExecuteChainSuccess(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha"), okTool("beta")})

	chain := &Chain{
		ID: "two-step",
		Steps: []Step{
			{Name: "first", Tool: "alpha", AutoApprove: boolPtr(true)},
			{Name: "second", Tool: "beta", AutoApprove: boolPtr(true)},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "two-step", nil)
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if result.ExecutedSteps != 2 || result.TotalSteps != 2 {
		t.Errorf("executed/total = %d/%d, want 2/2", result.ExecutedSteps, result.TotalSteps)
	}
	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	if result.Results[0].Step != "first" || result.Results[1].Step != "second" {
		t.Errorf("results out of order: %q, %q", result.Results[0].Step, result.Results[1].Step)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestExecuteChainUnknownChain(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	result := o.ExecuteChain(context.Background(), "missing", nil)
	if result.Success {
		t.Fatal("expected failure for unregistered chain")
	}
	if !strings.Contains(result.Error, "not registered") {
		t.Errorf("error = %q, want mention of registration", result.Error)
	}
}

func TestApprovalDeniedAbortsChain(t *testing.T) {
	// No approver configured, so the gate fails closed.
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")})

	chain := &Chain{
		ID:    "gated",
		Steps: []Step{{Name: "guarded", Tool: "alpha"}},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "gated", nil)
	if result.Success {
		t.Fatal("expected denial to fail the chain")
	}
	if result.ExecutedSteps != 0 {
		t.Errorf("executed %d steps past a denied gate, want 0", result.ExecutedSteps)
	}
	if !strings.Contains(result.Error, "approval denied") {
		t.Errorf("error = %q, want approval denial", result.Error)
	}
}

func TestApproverReceivesResolvedParams(t *testing.T) {
	var got ApprovalRequest
	approver := ApproverFunc(func(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
		got = req
		return ApprovalResponse{Approved: true}, nil
	})
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")}, WithApprover(approver))

	chain := &Chain{
		ID: "resolve-gate",
		Steps: []Step{{
			Name:   "guarded",
			Tool:   "alpha",
			Params: map[string]any{"path": "$workingDirectory"},
		}},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "resolve-gate",
		map[string]any{"workingDirectory": "/srv/project"})
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if got.Params["path"] != "/srv/project" {
		t.Errorf("approver saw path %v, want resolved working directory", got.Params["path"])
	}
}

func TestAutoApprovalRuleMatches(t *testing.T) {
	// Rule-approved steps must run without consulting the approver.
	o := newTestOrchestrator(t, []tools.Tool{okTool("file_read")})

	chain := &Chain{
		ID: "rule-approved",
		Steps: []Step{{
			Name:   "read",
			Tool:   "file_read",
			Params: map[string]any{"path": "README.md"},
		}},
		AutoApprovalRules: []AutoApprovalRule{
			{ToolPattern: "file_*", Conditions: map[string]any{"path": "README.md"}},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "rule-approved", nil)
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{flakyTool("flaky", 2)})

	chain := &Chain{
		ID: "retried",
		Steps: []Step{{
			Name:        "flaky-step",
			Tool:        "flaky",
			RetryCount:  2,
			AutoApprove: boolPtr(true),
		}},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "retried", nil)
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if len(result.Results) != 1 {
		t.Errorf("got %d results, want 1", len(result.Results))
	}
	if len(result.Errors) != 0 {
		t.Errorf("intermediate retries surfaced errors: %v", result.Errors)
	}
}

func TestRetriesExhaustedFailsChain(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{failTool("broken")})

	chain := &Chain{
		ID: "doomed",
		Steps: []Step{{
			Name:        "broken-step",
			Tool:        "broken",
			RetryCount:  1,
			AutoApprove: boolPtr(true),
		}},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "doomed", nil)
	if result.Success {
		t.Fatal("expected exhausted retries to fail the chain")
	}
	if len(result.Errors) != 1 {
		t.Errorf("got %d errors, want 1 terminal error", len(result.Errors))
	}
	if !strings.Contains(result.Error, "permanent failure") {
		t.Errorf("error = %q, want the tool's failure message", result.Error)
	}
}

func TestOnErrorInjectsRecoverySteps(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{failTool("broken"), okTool("repair")})

	chain := &Chain{
		ID: "recoverable",
		Steps: []Step{
			{
				Name:        "broken-step",
				Tool:        "broken",
				AutoApprove: boolPtr(true),
				OnError: func(err error, ectx *ExecContext) []Step {
					return []Step{{Name: "recover", Tool: "repair", AutoApprove: boolPtr(true)}}
				},
			},
			{Name: "after", Tool: "repair", AutoApprove: boolPtr(true)},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "recoverable", nil)
	if !result.Success {
		t.Fatalf("chain failed despite recovery: %s", result.Error)
	}
	if result.TotalSteps != 3 {
		t.Errorf("TotalSteps = %d, want 3 after injection", result.TotalSteps)
	}
	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want recover + after", len(result.Results))
	}
	if result.Results[0].Step != "recover" {
		t.Errorf("recovery step did not run first: got %q", result.Results[0].Step)
	}
	if len(result.Errors) != 1 {
		t.Errorf("got %d errors, want the recovered failure recorded once", len(result.Errors))
	}
}

func TestOnSuccessInjectsFollowUps(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")})

	chain := &Chain{
		ID: "expanding",
		Steps: []Step{
			{
				Name:        "seed",
				Tool:        "alpha",
				AutoApprove: boolPtr(true),
				OnSuccess: func(r StepResult, ectx *ExecContext) []Step {
					return []Step{
						{Name: "injected-1", Tool: "alpha", AutoApprove: boolPtr(true)},
						{Name: "injected-2", Tool: "alpha", AutoApprove: boolPtr(true)},
					}
				},
			},
			{Name: "tail", Tool: "alpha", AutoApprove: boolPtr(true)},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "expanding", nil)
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if result.TotalSteps != 4 {
		t.Errorf("TotalSteps = %d, want 4 after injection", result.TotalSteps)
	}
	want := []string{"seed", "injected-1", "injected-2", "tail"}
	if len(result.Results) != len(want) {
		t.Fatalf("got %d results, want %d", len(result.Results), len(want))
	}
	for i, name := range want {
		if result.Results[i].Step != name {
			t.Errorf("result[%d] = %q, want %q", i, result.Results[i].Step, name)
		}
	}
}

func TestConditionSkipsStep(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")})

	chain := &Chain{
		ID: "conditional",
		Steps: []Step{
			{Name: "always", Tool: "alpha", AutoApprove: boolPtr(true)},
			{
				Name:        "never",
				Tool:        "alpha",
				AutoApprove: boolPtr(true),
				Condition:   func(prev []StepResult) bool { return false },
			},
			{
				Name:        "dependent",
				Tool:        "alpha",
				AutoApprove: boolPtr(true),
				Condition:   func(prev []StepResult) bool { return len(prev) > 0 },
			},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "conditional", nil)
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if result.ExecutedSteps != 2 {
		t.Errorf("ExecutedSteps = %d, want 2 (skip is not a failure)", result.ExecutedSteps)
	}
	if len(result.Errors) != 0 {
		t.Errorf("skipped step produced errors: %v", result.Errors)
	}
}

func TestSafetyCheckAbortsChain(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")})

	steps := make([]Step, 5)
	for i := range steps {
		steps[i] = Step{
			Name:        fmt.Sprintf("step-%d", i+1),
			Tool:        "alpha",
			AutoApprove: boolPtr(true),
		}
	}
	chain := &Chain{
		ID:    "guarded",
		Steps: steps,
		SafetyChecks: []SafetyCheck{
			func(step Step, ectx *ExecContext) error {
				if step.Name == "step-2" {
					return errors.New("forbidden target")
				}
				return nil
			},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "guarded", nil)
	if result.Success {
		t.Fatal("expected safety violation to fail the chain")
	}
	if result.ExecutedSteps != 1 {
		t.Errorf("ExecutedSteps = %d, want 1", result.ExecutedSteps)
	}
	if len(result.Errors) != 1 {
		t.Errorf("got %d errors, want 1", len(result.Errors))
	}
	if !strings.Contains(result.Error, "safety check failed") {
		t.Errorf("error = %q, want safety check failure", result.Error)
	}
}

func TestStepTimeout(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{slowTool("slow", 500*time.Millisecond)})

	chain := &Chain{
		ID: "timed",
		Steps: []Step{{
			Name:        "slow-step",
			Tool:        "slow",
			Timeout:     20 * time.Millisecond,
			AutoApprove: boolPtr(true),
		}},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	start := time.Now()
	result := o.ExecuteChain(context.Background(), "timed", nil)
	if result.Success {
		t.Fatal("expected timeout to fail the chain")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error = %q, want timeout", result.Error)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("timeout took %s, should not wait for the tool", elapsed)
	}
}

func TestResultReferenceChaining(t *testing.T) {
	var secondSaw map[string]any
	capture := &tools.FuncTool{
		ToolName: "capture",
		Fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			secondSaw = params
			return &tools.Result{Success: true}, nil
		},
	}
	producer := &tools.FuncTool{
		ToolName: "producer",
		Fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			return &tools.Result{Success: true, Data: map[string]any{"artifact": "out.tar.gz"}}, nil
		},
	}
	o := newTestOrchestrator(t, []tools.Tool{producer, capture})

	chain := &Chain{
		ID: "plumbed",
		Steps: []Step{
			{Name: "produce", Tool: "producer", AutoApprove: boolPtr(true)},
			{
				Name:        "consume",
				Tool:        "capture",
				AutoApprove: boolPtr(true),
				Params: map[string]any{
					"input":   "$result[0].artifact",
					"dir":     "$workingDirectory",
					"version": "$release",
					"literal": "plain",
				},
			},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "plumbed", map[string]any{
		"workingDirectory": "/srv/build",
		"release":          "v2.1.0",
	})
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if secondSaw["input"] != "out.tar.gz" {
		t.Errorf("input = %v, want prior step data", secondSaw["input"])
	}
	if secondSaw["dir"] != "/srv/build" {
		t.Errorf("dir = %v, want working directory", secondSaw["dir"])
	}
	if secondSaw["version"] != "v2.1.0" {
		t.Errorf("version = %v, want variable value", secondSaw["version"])
	}
	if secondSaw["literal"] != "plain" {
		t.Errorf("literal = %v, want untouched string", secondSaw["literal"])
	}
}

func TestCurrentStepNeverExceedsTotal(t *testing.T) {
	violations := 0
	check := func(step Step, ectx *ExecContext) error {
		if ectx.CurrentStep > ectx.TotalSteps {
			violations++
		}
		return nil
	}

	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")})
	chain := &Chain{
		ID: "monotonic",
		Steps: []Step{
			{
				Name:        "seed",
				Tool:        "alpha",
				AutoApprove: boolPtr(true),
				OnSuccess: func(r StepResult, ectx *ExecContext) []Step {
					return []Step{{Name: "extra", Tool: "alpha", AutoApprove: boolPtr(true)}}
				},
			},
			{Name: "tail", Tool: "alpha", AutoApprove: boolPtr(true)},
		},
		SafetyChecks: []SafetyCheck{check},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	result := o.ExecuteChain(context.Background(), "monotonic", nil)
	if !result.Success {
		t.Fatalf("chain failed: %s", result.Error)
	}
	if violations != 0 {
		t.Errorf("CurrentStep exceeded TotalSteps %d times", violations)
	}
}

func TestExecuteGroupRunsAllSteps(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha"), failTool("broken")})

	chain := &Chain{
		ID: "grouped",
		ParallelGroups: map[string][]Step{
			"checks": {
				{Name: "a", Tool: "alpha"},
				{Name: "b", Tool: "broken"},
				{Name: "c", Tool: "alpha"},
				{Name: "d", Tool: "alpha"},
			},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	results, err := o.ExecuteGroup(context.Background(), "grouped", "checks", nil)
	if err != nil {
		t.Fatalf("ExecuteGroup: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, name := range []string{"a", "b", "c", "d"} {
		if results[i].Step != name {
			t.Errorf("results[%d] = %q, want %q (input order)", i, results[i].Step, name)
		}
	}
	if results[1].Success {
		t.Error("failing step reported success")
	}
	if !results[0].Success || !results[2].Success || !results[3].Success {
		t.Error("sibling steps should not be aborted by one failure")
	}

	if _, err := o.ExecuteGroup(context.Background(), "grouped", "missing", nil); err == nil {
		t.Error("expected error for unknown group")
	}
}

func TestChainStatusTracksExecutions(t *testing.T) {
	o := newTestOrchestrator(t, []tools.Tool{okTool("alpha")})

	chain := &Chain{
		ID:    "tracked",
		Name:  "Tracked",
		Steps: []Step{{Name: "only", Tool: "alpha", AutoApprove: boolPtr(true)}},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}
	if err := o.RegisterChain(chain); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	o.ExecuteChain(context.Background(), "tracked", nil)
	o.ExecuteChain(context.Background(), "tracked", nil)

	status, err := o.Status("tracked")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Executions != 2 {
		t.Errorf("Executions = %d, want 2", status.Executions)
	}
	if !status.LastSuccess {
		t.Error("LastSuccess = false, want true")
	}
	if status.LastExecutedAt.IsZero() {
		t.Error("LastExecutedAt not set")
	}
}

func TestChainEventsPublished(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(okTool("alpha"))
	reg.Register(failTool("broken"))
	events := bus.New()
	o := New(reg, events)

	chain := &Chain{
		ID: "observed",
		Steps: []Step{
			{Name: "good", Tool: "alpha", AutoApprove: boolPtr(true)},
			{Name: "bad", Tool: "broken", AutoApprove: boolPtr(true)},
		},
	}
	if err := o.RegisterChain(chain); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}

	o.ExecuteChain(context.Background(), "observed", nil)

	history := events.History(nil)
	counts := make(map[bus.EventType]int)
	for _, ev := range history {
		counts[ev.Type]++
		if ev.CorrelationID != "observed" {
			t.Errorf("event %s has correlation %q, want chain ID", ev.Type, ev.CorrelationID)
		}
	}
	if counts[bus.EventTaskStarted] != 2 {
		t.Errorf("task.started count = %d, want 2", counts[bus.EventTaskStarted])
	}
	if counts[bus.EventTaskCompleted] != 1 {
		t.Errorf("task.completed count = %d, want 1", counts[bus.EventTaskCompleted])
	}
	if counts[bus.EventTaskFailed] != 1 {
		t.Errorf("task.failed count = %d, want 1", counts[bus.EventTaskFailed])
	}
	if counts[bus.EventToolExecuted] != 1 || counts[bus.EventToolFailed] != 1 {
		t.Errorf("tool events = %d executed / %d failed, want 1/1",
			counts[bus.EventToolExecuted], counts[bus.EventToolFailed])
	}
}
