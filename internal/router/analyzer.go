package router

import (
	"strings"
	"time"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

// Complexity is the router's coarse complexity classification of a task.
type Complexity string

const (
	// ComplexityLow indicates a short, single-clause task.
	ComplexityLow Complexity = "low"
	// ComplexityMedium indicates a moderately sized task.
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh indicates a long or multi-clause task.
	ComplexityHigh Complexity = "high"
)

// TaskAnalysis is the derived, read-only snapshot the router computes per
// routing attempt. It is never mutated after Route returns.
type TaskAnalysis struct {
	// Complexity is the coarse complexity classification.
	Complexity Complexity `json:"complexity"`
	// RequiredCapabilities lists capabilities the task needs.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// EstimatedDuration is the complexity-derived duration estimate.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// Resources is the estimated resource requirement per tier.
	Resources models.ResourceRequirements `json:"resources"`
	// Dependencies mirrors the task's dependency list.
	Dependencies []string `json:"dependencies,omitempty"`
}

// capabilityKeywords maps capability tags to the keywords whose presence
// in a task description implies the capability is required. This is the
// single source of truth used by the analyzer.
var capabilityKeywords = map[string][]string{
	"file-read":       {"read", "load", "open file", "inspect file"},
	"file-write":      {"write", "save", "create file", "generate file"},
	"code-modify":     {"modify", "edit", "change", "update code", "refactor"},
	"testing":         {"test", "verify", "validate", "assert"},
	"debugging":       {"debug", "fix", "diagnose", "troubleshoot"},
	"command-execute": {"run", "execute", "command", "script", "install"},
	"system-setup":    {"setup", "set up", "configure", "initialize", "scaffold"},
}

// conjunctions are the connective words counted by the complexity
// heuristic. Each occurrence suggests an additional clause of work.
var conjunctions = []string{" and ", " then ", " also ", " plus ", " as well as ", " after "}

// durationByComplexity is the complexity-to-duration lookup table.
var durationByComplexity = map[Complexity]time.Duration{
	ComplexityLow:    2 * time.Minute,
	ComplexityMedium: 10 * time.Minute,
	ComplexityHigh:   30 * time.Minute,
}

// Analyzer computes a TaskAnalysis from a task. Routing rules may enrich
// the analysis afterwards through their Analyze hook.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze derives complexity, required capabilities, estimated duration,
// and resource tiers for the given task.
func (a *Analyzer) Analyze(task *models.Task) *TaskAnalysis {
	lower := strings.ToLower(task.Description)

	analysis := &TaskAnalysis{
		Complexity:           a.complexity(lower),
		RequiredCapabilities: a.capabilities(lower),
		Resources:            a.resources(lower),
		Dependencies:         append([]string(nil), task.Dependencies...),
	}
	analysis.EstimatedDuration = durationByComplexity[analysis.Complexity]

	return analysis
}

// complexity classifies by description length and conjunction count.
func (a *Analyzer) complexity(lower string) Complexity {
	clauses := 0
	for _, c := range conjunctions {
		clauses += strings.Count(lower, c)
	}

	switch {
	case len(lower) > 300 || clauses >= 3:
		return ComplexityHigh
	case len(lower) > 100 || clauses >= 1:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// capabilities returns the capability tags whose keywords appear in the
// description, in a stable order.
func (a *Analyzer) capabilities(lower string) []string {
	// Stable iteration order so routing stays deterministic.
	order := []string{
		"file-read", "file-write", "code-modify",
		"testing", "debugging", "command-execute", "system-setup",
	}

	var required []string
	for _, capability := range order {
		for _, kw := range capabilityKeywords[capability] {
			if strings.Contains(lower, kw) {
				required = append(required, capability)
				break
			}
		}
	}
	return required
}

// resources estimates the per-tier resource requirement. Network and
// storage escalate on download/large hints; CPU and memory follow the
// description size.
func (a *Analyzer) resources(lower string) models.ResourceRequirements {
	r := models.DefaultResources()

	if strings.Contains(lower, "download") {
		r.Network = models.TierHigh
	}
	if strings.Contains(lower, "large") {
		r.Storage = models.TierHigh
		r.Memory = models.TierMedium
	}
	if len(lower) > 300 {
		r.CPU = models.TierMedium
	}

	return r
}
