package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExecContext is the per-execution state of a chain. A fresh context is
// created for every ExecuteChain call and discarded on completion.
// TotalSteps only grows (via dynamic step injection) and CurrentStep
// never exceeds it.
type ExecContext struct {
	// ChainID is the executing chain.
	ChainID string
	// WorkingDir is the working directory steps resolve against.
	WorkingDir string
	// PreviousResults accumulates successful step results in order.
	PreviousResults []StepResult
	// CurrentStep is the 1-based index of the step being executed.
	CurrentStep int
	// TotalSteps is the current step count, grown by injection.
	TotalSteps int
	// StartTime is when the execution began.
	StartTime time.Time
	// Variables is the execution's variable bag, seeded from the
	// caller's initial parameters.
	Variables map[string]any
}

// resultRefPattern matches "$result[N].property" references.
var resultRefPattern = regexp.MustCompile(`^\$result\[(\d+)\]\.(.+)$`)

// resolveParams resolves '$'-prefixed references in the given parameter
// map against the execution context. Nested maps and slices are resolved
// recursively. Unresolvable references fall back to the literal string.
func (c *ExecContext) resolveParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		resolved[k] = c.resolveValue(v)
	}
	return resolved
}

// resolveValue resolves one parameter value.
func (c *ExecContext) resolveValue(v any) any {
	switch val := v.(type) {
	case string:
		return c.resolveString(val)
	case map[string]any:
		return c.resolveParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = c.resolveValue(item)
		}
		return out
	default:
		return v
	}
}

// resolveString resolves a single string reference. A leading '$' marks
// a reference: $workingDirectory resolves to the context working
// directory, $result[N].property indexes a prior step result, and any
// other $name resolves against the variable bag, falling back to the
// literal string when unresolved.
func (c *ExecContext) resolveString(s string) any {
	if !strings.HasPrefix(s, "$") {
		return s
	}

	if s == "$workingDirectory" {
		return c.WorkingDir
	}

	if m := resultRefPattern.FindStringSubmatch(s); m != nil {
		index, err := strconv.Atoi(m[1])
		if err != nil || index < 0 || index >= len(c.PreviousResults) {
			return s
		}
		if value, ok := c.PreviousResults[index].Data[m[2]]; ok {
			return value
		}
		return s
	}

	if value, ok := c.Variables[strings.TrimPrefix(s, "$")]; ok {
		return value
	}
	return s
}

// recordResult appends a successful step result.
func (c *ExecContext) recordResult(r StepResult) {
	c.PreviousResults = append(c.PreviousResults, r)
}

// grow increases TotalSteps by n injected steps.
func (c *ExecContext) grow(n int) {
	if n > 0 {
		c.TotalSteps += n
	}
}

// elapsed returns the time since the execution started.
func (c *ExecContext) elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// String describes the context's progress for logs.
func (c *ExecContext) String() string {
	return fmt.Sprintf("chain %s step %d/%d", c.ChainID, c.CurrentStep, c.TotalSteps)
}
