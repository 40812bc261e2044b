package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/logging"
	"github.com/dirigent-sh/dirigent/internal/tools"
)

const (
	// DefaultGroupBatchSize is the concurrency bound for parallel step
	// groups executed through ExecuteGroup.
	DefaultGroupBatchSize = 3
	// DefaultGroupDelay is the pause inserted between group batches.
	DefaultGroupDelay = 100 * time.Millisecond
)

// Orchestrator registers workflow chains and executes them against a
// tool registry, publishing step lifecycle events on the bus.
type Orchestrator struct {
	chains   *chainRegistry
	tools    *tools.Registry
	events   *bus.Bus
	approver Approver
	logger   *logging.DebugLogger

	defaultTimeout time.Duration
	groupBatch     int
	groupDelay     time.Duration
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*Orchestrator)

// WithApprover sets the approver consulted for steps requiring approval.
// Without one, approval gates fail closed.
func WithApprover(a Approver) Option {
	return func(o *Orchestrator) { o.approver = a }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDefaultStepTimeout overrides the default per-step timeout.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithGroupBatchSize overrides the parallel-group concurrency bound.
func WithGroupBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.groupBatch = n
		}
	}
}

// New creates an Orchestrator executing tools from the given registry
// and publishing events on the given bus.
func New(registry *tools.Registry, events *bus.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chains:         newChainRegistry(),
		tools:          registry,
		events:         events,
		approver:       DenyAll(),
		logger:         logging.NopLogger(),
		defaultTimeout: DefaultStepTimeout,
		groupBatch:     DefaultGroupBatchSize,
		groupDelay:     DefaultGroupDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterChain adds a chain to the orchestrator.
func (o *Orchestrator) RegisterChain(c *Chain) error {
	if err := o.chains.register(c); err != nil {
		return err
	}
	o.logger.Log("[workflow] registered chain %s (%d steps)", c.ID, len(c.Steps))
	return nil
}

// Chains returns the registered chain IDs.
func (o *Orchestrator) Chains() []string { return o.chains.list() }

// Status returns the registration and execution status of a chain.
func (o *Orchestrator) Status(id string) (ChainStatus, error) {
	return o.chains.chainStatus(id)
}

// ExecuteChain runs the chain with a fresh execution context seeded from
// initialParams. Safety violations, approval denials, and un-recovered
// step failures are fatal to the whole chain; the failure is reported
// through the result rather than raised.
func (o *Orchestrator) ExecuteChain(ctx context.Context, id string, initialParams map[string]any) ChainResult {
	chain, err := o.chains.get(id)
	if err != nil {
		return ChainResult{Success: false, Error: err.Error()}
	}

	ectx := &ExecContext{
		ChainID:    id,
		TotalSteps: len(chain.Steps),
		StartTime:  time.Now(),
		Variables:  make(map[string]any, len(initialParams)),
	}
	for k, v := range initialParams {
		ectx.Variables[k] = v
	}
	if wd, ok := initialParams["workingDirectory"].(string); ok {
		ectx.WorkingDir = wd
	}

	result := o.run(ctx, chain, ectx)
	o.chains.recordExecution(id, result.Success)
	return result
}

// run executes the chain's steps through an explicit pending work-list,
// so dynamically injected steps are a queue operation rather than
// mutation of a slice under iteration.
func (o *Orchestrator) run(ctx context.Context, chain *Chain, ectx *ExecContext) ChainResult {
	result := ChainResult{}

	// Pending steps, front first. Injection splices at the front.
	pending := make([]Step, len(chain.Steps))
	copy(pending, chain.Steps)

	fail := func(msg string) ChainResult {
		result.Success = false
		result.Error = msg
		result.Errors = append(result.Errors, msg)
		result.ExecutedSteps = len(ectx.PreviousResults)
		result.TotalSteps = ectx.TotalSteps
		result.Results = ectx.PreviousResults
		result.Duration = ectx.elapsed()
		return result
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return fail(fmt.Sprintf("chain cancelled: %v", ctx.Err()))
		default:
		}

		step := pending[0]
		pending = pending[1:]
		ectx.CurrentStep++

		// 1. Precondition over prior results.
		if step.Condition != nil && !step.Condition(ectx.PreviousResults) {
			o.logf(&result, "[workflow] %s: skipping step %s (condition not met)", ectx, step.Name)
			continue
		}

		// 2. Safety checks are chain-fatal.
		for _, check := range chain.SafetyChecks {
			if err := check(step, ectx); err != nil {
				o.logf(&result, "[workflow] %s: safety check failed at step %s: %v", ectx, step.Name, err)
				o.publishStepFailed(ectx, step, err.Error())
				return fail(fmt.Sprintf("safety check failed at step %s: %v", step.Name, err))
			}
		}

		// 3. Approval gate.
		params := ectx.resolveParams(step.Params)
		if needsApproval(step, chain.AutoApprovalRules, params) {
			resp, err := o.approver.Approve(ctx, ApprovalRequest{
				ChainID: ectx.ChainID,
				Step:    step.Name,
				Tool:    step.Tool,
				Params:  params,
			})
			if err != nil {
				return fail(fmt.Sprintf("approval for step %s failed: %v", step.Name, err))
			}
			if !resp.Approved {
				o.logf(&result, "[workflow] %s: approval denied for step %s: %s", ectx, step.Name, resp.Reason)
				o.publishStepFailed(ectx, step, "approval denied")
				return fail(fmt.Sprintf("approval denied for step %s: %s", step.Name, resp.Reason))
			}
		}

		// 4. Execute with retries. Retries re-run the same step without
		// advancing; only the terminal attempt surfaces an error.
		o.events.Publish(bus.EventTaskStarted, step.Name,
			bus.PublishOptions{Source: "workflow", CorrelationID: ectx.ChainID})

		stepResult, execErr := o.runWithRetries(ctx, &result, step, ectx, params)

		if execErr == nil {
			// 5. Success: record, hooks, splice.
			ectx.recordResult(stepResult)
			o.events.Publish(bus.EventToolExecuted, stepResult,
				bus.PublishOptions{Source: "workflow", CorrelationID: ectx.ChainID})
			o.events.Publish(bus.EventTaskCompleted, step.Name,
				bus.PublishOptions{Source: "workflow", CorrelationID: ectx.ChainID})

			if step.OnSuccess != nil {
				injected := step.OnSuccess(stepResult, ectx)
				if len(injected) > 0 {
					o.logf(&result, "[workflow] %s: step %s injected %d follow-up steps", ectx, step.Name, len(injected))
					pending = append(append([]Step(nil), injected...), pending...)
					ectx.grow(len(injected))
				}
			}
			continue
		}

		// 6. Failure after retries.
		o.publishStepFailed(ectx, step, execErr.Error())
		result.Errors = append(result.Errors, execErr.Error())

		if step.OnError != nil {
			recovery := step.OnError(execErr, ectx)
			if len(recovery) > 0 {
				o.logf(&result, "[workflow] %s: step %s failed, injecting %d recovery steps", ectx, step.Name, len(recovery))
				pending = append(append([]Step(nil), recovery...), pending...)
				ectx.grow(len(recovery))
				continue
			}
		}

		result.Success = false
		result.Error = execErr.Error()
		result.ExecutedSteps = len(ectx.PreviousResults)
		result.TotalSteps = ectx.TotalSteps
		result.Results = ectx.PreviousResults
		result.Duration = ectx.elapsed()
		return result
	}

	result.Success = true
	result.ExecutedSteps = len(ectx.PreviousResults)
	result.TotalSteps = ectx.TotalSteps
	result.Results = ectx.PreviousResults
	result.Duration = ectx.elapsed()
	o.logf(&result, "[workflow] chain %s completed: %d/%d steps in %s",
		ectx.ChainID, result.ExecutedSteps, result.TotalSteps, result.Duration)
	return result
}

// runWithRetries executes one step, re-running it while retries remain.
// Intermediate failures are logged but not surfaced.
func (o *Orchestrator) runWithRetries(ctx context.Context, result *ChainResult, step Step, ectx *ExecContext, params map[string]any) (StepResult, error) {
	attempts := step.RetryCount
	for {
		stepResult, err := o.invokeTool(ctx, step, params)
		if err == nil {
			return stepResult, nil
		}
		if attempts <= 0 {
			return stepResult, err
		}
		attempts--
		o.logf(result, "[workflow] %s: step %s failed (%v), retrying (%d left)", ectx, step.Name, err, attempts+1)
	}
}

// invokeTool resolves the tool and executes it raced against the step
// timeout. A timeout is reported as a step failure subject to the same
// retry and recovery rules as any other failure.
func (o *Orchestrator) invokeTool(ctx context.Context, step Step, params map[string]any) (StepResult, error) {
	started := time.Now()
	sr := StepResult{Step: step.Name, Tool: step.Tool}

	tool, err := o.tools.Get(step.Tool)
	if err != nil {
		sr.Error = err.Error()
		return sr, err
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *tools.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tool.Execute(stepCtx, params)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		sr.Duration = time.Since(started)
		if out.err != nil {
			// Tools that honor cancellation surface the deadline here;
			// report it the same way as the racing timeout branch.
			if errors.Is(out.err, context.DeadlineExceeded) {
				sr.Error = fmt.Sprintf("timed out after %s", timeout)
				return sr, fmt.Errorf("step %s: timed out after %s", step.Name, timeout)
			}
			sr.Error = out.err.Error()
			return sr, fmt.Errorf("step %s: %w", step.Name, out.err)
		}
		if out.res == nil || !out.res.Success {
			msg := "tool reported failure"
			if out.res != nil && out.res.Error != "" {
				msg = out.res.Error
			}
			sr.Error = msg
			if out.res != nil {
				sr.Data = out.res.Data
			}
			return sr, fmt.Errorf("step %s: %s", step.Name, msg)
		}
		sr.Success = true
		sr.Data = out.res.Data
		return sr, nil
	case <-stepCtx.Done():
		sr.Duration = time.Since(started)
		if errors.Is(stepCtx.Err(), context.Canceled) {
			sr.Error = stepCtx.Err().Error()
			return sr, fmt.Errorf("step %s: %w", step.Name, stepCtx.Err())
		}
		sr.Error = fmt.Sprintf("timed out after %s", timeout)
		return sr, fmt.Errorf("step %s: timed out after %s", step.Name, timeout)
	}
}

// ExecuteGroup runs a chain's named parallel step group in bounded
// concurrent batches. An individual step failure never aborts sibling
// steps; the returned slice has one result per step, in input order.
func (o *Orchestrator) ExecuteGroup(ctx context.Context, chainID, group string, initialParams map[string]any) ([]StepResult, error) {
	chain, err := o.chains.get(chainID)
	if err != nil {
		return nil, err
	}
	steps, ok := chain.ParallelGroups[group]
	if !ok {
		return nil, fmt.Errorf("chain %q has no parallel group %q", chainID, group)
	}

	ectx := &ExecContext{
		ChainID:    chainID,
		TotalSteps: len(steps),
		StartTime:  time.Now(),
		Variables:  initialParams,
	}
	if wd, ok := initialParams["workingDirectory"].(string); ok {
		ectx.WorkingDir = wd
	}

	results := make([]StepResult, len(steps))
	for start := 0; start < len(steps); start += o.groupBatch {
		end := start + o.groupBatch
		if end > len(steps) {
			end = len(steps)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				params := ectx.resolveParams(steps[i].Params)
				sr, execErr := o.invokeTool(ctx, steps[i], params)
				if execErr != nil {
					sr.Success = false
				}
				results[i] = sr
			}(i)
		}
		wg.Wait()

		if end < len(steps) {
			select {
			case <-time.After(o.groupDelay):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
	}

	return results, nil
}

// publishStepFailed publishes the failure events for a step.
func (o *Orchestrator) publishStepFailed(ectx *ExecContext, step Step, msg string) {
	opts := bus.PublishOptions{Source: "workflow", CorrelationID: ectx.ChainID}
	o.events.Publish(bus.EventToolFailed, map[string]any{
		"step": step.Name,
		"tool": step.Tool,
		"error": msg,
	}, opts)
	o.events.Publish(bus.EventTaskFailed, step.Name, opts)
}

// logf writes to both the debug logger and the result's log lines.
func (o *Orchestrator) logf(result *ChainResult, format string, args ...interface{}) {
	o.logger.Log(format, args...)
	result.Logs = append(result.Logs, fmt.Sprintf(format, args...))
}
