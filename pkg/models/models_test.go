package models

import "testing"

func TestTaskPriorityValid(t *testing.T) {
	valid := []TaskPriority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
	for _, p := range valid {
		if !p.Valid() {
			t.Errorf("expected %q to be valid", p)
		}
	}

	if TaskPriority("urgent").Valid() {
		t.Error("expected unknown priority to be invalid")
	}
	if TaskPriority("").Valid() {
		t.Error("expected empty priority to be invalid")
	}
}

func TestWorkerStatusValid(t *testing.T) {
	valid := []WorkerStatus{WorkerStatusAvailable, WorkerStatusBusy, WorkerStatusError, WorkerStatusOffline}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if WorkerStatus("idle").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestStrategyValid(t *testing.T) {
	valid := []Strategy{StrategySequential, StrategyParallel, StrategyHybrid, StrategyAdaptive}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if Strategy("eventual").Valid() {
		t.Error("expected unknown strategy to be invalid")
	}
}

func TestWorkerDescriptorHasCapability(t *testing.T) {
	d := &WorkerDescriptor{
		ID:           "worker-1",
		Capabilities: []string{"file-read", "file-write", "testing"},
	}

	if !d.HasCapability("file-write") {
		t.Error("expected worker to have file-write capability")
	}
	if d.HasCapability("debugging") {
		t.Error("expected worker to lack debugging capability")
	}
}

func TestPlanPhaseLookup(t *testing.T) {
	plan := &OrchestrationPlan{
		Strategy: StrategySequential,
		Phases: []OrchestrationPhase{
			{Name: "preparation"},
			{Name: "execution"},
		},
	}

	if phase := plan.Phase("execution"); phase == nil {
		t.Fatal("expected execution phase to be found")
	}
	if phase := plan.Phase("teardown"); phase != nil {
		t.Errorf("expected nil for unknown phase, got %+v", phase)
	}
}

func TestDefaultResources(t *testing.T) {
	r := DefaultResources()
	for name, tier := range map[string]ResourceTier{
		"memory": r.Memory, "cpu": r.CPU, "network": r.Network, "storage": r.Storage,
	} {
		if tier != TierLow {
			t.Errorf("expected %s tier low, got %q", name, tier)
		}
	}
}
