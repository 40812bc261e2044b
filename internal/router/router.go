package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/logging"
	"github.com/dirigent-sh/dirigent/pkg/models"
)

// Default tuning for the router's background maintenance.
const (
	// DefaultErrorCooldown is how long a worker stays in error status
	// after an agent.error event before automatic reinstatement.
	DefaultErrorCooldown = 30 * time.Second
	// DefaultMaintenanceInterval is how often worker capacity is tuned.
	DefaultMaintenanceInterval = 30 * time.Second
	// DefaultCleanupInterval is how often stale route records are evicted.
	DefaultCleanupInterval = 5 * time.Minute
	// DefaultRouteMaxAge is the age past which active routes are evicted.
	DefaultRouteMaxAge = 30 * time.Minute
	// DefaultRecentRouteCap bounds the retained finished-route records.
	DefaultRecentRouteCap = 50
	// DefaultBatchSize is the group size used by RouteAll.
	DefaultBatchSize = 5
	// DefaultBatchDelay is the pause inserted between RouteAll groups.
	DefaultBatchDelay = 100 * time.Millisecond
	// maxTunedCapacity caps capacity growth during maintenance.
	maxTunedCapacity = 5
)

// ErrNoWorker is returned when no registered worker can take a task.
var ErrNoWorker = errors.New("router: no suitable worker")

// HistoryProvider supplies historical success rates for the scoring
// term. The planner's learning store implements it; the router falls
// back to its own in-memory metrics when none is injected.
type HistoryProvider interface {
	// SuccessRate returns the worker's success rate in [0,1].
	SuccessRate(workerID string) float64
}

// AgentError is the payload of agent.error events the router reacts to.
type AgentError struct {
	// WorkerID is the failing worker.
	WorkerID string
	// Reason describes the failure.
	Reason string
}

// RoutingResult is the structured outcome of a Route call. Routing and
// execution failures are reported here rather than as panics.
type RoutingResult struct {
	// Success indicates the task was assigned and executed successfully.
	Success bool `json:"success"`
	// WorkerID is the assigned worker, when routing succeeded.
	WorkerID string `json:"worker_id,omitempty"`
	// Analysis is the task analysis used for scoring.
	Analysis *TaskAnalysis `json:"analysis,omitempty"`
	// RoutingTime is the time spent selecting a worker.
	RoutingTime time.Duration `json:"routing_time"`
	// Result is the worker's task result, when execution happened.
	Result *models.TaskResult `json:"result,omitempty"`
	// Error is the human-readable failure message.
	Error string `json:"error,omitempty"`
}

// RouteRecord tracks one in-flight or recently finished assignment.
type RouteRecord struct {
	// TaskID is the routed task.
	TaskID string
	// WorkerID is the assigned worker.
	WorkerID string
	// AssignedAt is when the assignment happened.
	AssignedAt time.Time
}

// Router assigns tasks to the best-fit available worker. It owns the
// worker registry and is the single writer of worker load and status.
type Router struct {
	registry *WorkerRegistry
	analyzer *Analyzer
	rules    *ruleSet
	weights  ScoreWeights
	events   *bus.Bus
	metrics  *metricsStore
	history  HistoryProvider
	logger   *logging.DebugLogger

	// active maps task IDs to in-flight route records.
	active map[string]RouteRecord
	// recent retains finished route records, newest last, bounded.
	recent []RouteRecord
	// cooldowns tracks workers in error cooldown.
	cooldowns map[string]time.Time
	mu        sync.Mutex

	errorCooldown       time.Duration
	maintenanceInterval time.Duration
	cleanupInterval     time.Duration
	routeMaxAge         time.Duration
	recentCap           int
	batchSize           int
	batchDelay          time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	errorSub *bus.Subscription
}

// Option configures a Router. Use With* functions to create Options.
type Option func(*Router)

// WithScoreWeights overrides the default 40/30/20/10 scoring weights.
func WithScoreWeights(w ScoreWeights) Option {
	return func(r *Router) { r.weights = w }
}

// WithHistoryProvider injects an external historical-success source.
func WithHistoryProvider(h HistoryProvider) Option {
	return func(r *Router) { r.history = h }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(r *Router) { r.logger = l }
}

// WithErrorCooldown overrides the worker error cooldown window.
func WithErrorCooldown(d time.Duration) Option {
	return func(r *Router) { r.errorCooldown = d }
}

// WithMaintenanceInterval overrides the capacity-tuning interval.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(r *Router) { r.maintenanceInterval = d }
}

// WithCleanupInterval overrides the stale-route cleanup interval.
func WithCleanupInterval(d time.Duration) Option {
	return func(r *Router) { r.cleanupInterval = d }
}

// WithBatchSize overrides the RouteAll group size.
func WithBatchSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// New creates a Router publishing lifecycle events on the given bus.
func New(events *bus.Bus, opts ...Option) *Router {
	r := &Router{
		registry:            NewWorkerRegistry(),
		analyzer:            NewAnalyzer(),
		rules:               &ruleSet{},
		weights:             DefaultScoreWeights(),
		events:              events,
		metrics:             newMetricsStore(),
		logger:              logging.NopLogger(),
		active:              make(map[string]RouteRecord),
		cooldowns:           make(map[string]time.Time),
		errorCooldown:       DefaultErrorCooldown,
		maintenanceInterval: DefaultMaintenanceInterval,
		cleanupInterval:     DefaultCleanupInterval,
		routeMaxAge:         DefaultRouteMaxAge,
		recentCap:           DefaultRecentRouteCap,
		batchSize:           DefaultBatchSize,
		batchDelay:          DefaultBatchDelay,
		stop:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.history == nil {
		r.history = r.metrics
	}
	return r
}

// RegisterWorker adds a worker to the registry.
func (r *Router) RegisterWorker(w models.Worker) error {
	if err := r.registry.Register(w); err != nil {
		return err
	}
	desc := w.Descriptor()
	r.logger.Log("[router] registered worker %s (specialization=%s capabilities=%v)",
		desc.ID, desc.Specialization, desc.Capabilities)
	r.events.Publish(bus.EventAgentStarted, desc.ID, bus.PublishOptions{Source: "router"})
	return nil
}

// UnregisterWorker removes a worker from the registry.
func (r *Router) UnregisterWorker(id string) error {
	if err := r.registry.Unregister(id); err != nil {
		return err
	}
	r.logger.Log("[router] unregistered worker %s", id)
	r.events.Publish(bus.EventAgentStopped, id, bus.PublishOptions{Source: "router"})
	return nil
}

// Workers exposes the registry for read-only inspection.
func (r *Router) Workers() *WorkerRegistry { return r.registry }

// AddRule registers a routing rule.
func (r *Router) AddRule(rule Rule) { r.rules.add(rule) }

// RemoveRule deletes a routing rule by name.
func (r *Router) RemoveRule(name string) bool { return r.rules.remove(name) }

// Metrics returns a snapshot of the router's counters.
func (r *Router) Metrics() Metrics { return r.metrics.snapshot() }

// ActiveRoutes returns the in-flight route records.
func (r *Router) ActiveRoutes() []RouteRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RouteRecord, 0, len(r.active))
	for _, rec := range r.active {
		out = append(out, rec)
	}
	return out
}

// Route analyzes the task, selects a worker, and executes the task on
// it. Routing failures and worker execution failures are both reported
// through the result; Route never panics across the API boundary.
func (r *Router) Route(ctx context.Context, task *models.Task) RoutingResult {
	started := time.Now()

	analysis := r.analyzer.Analyze(task)

	// Let rule analyzers enrich the analysis before scoring.
	rules := r.rules.snapshot()
	for _, rule := range rules {
		if rule.Analyze != nil {
			rule.Analyze(task, analysis)
		}
	}

	selected := r.selectWorker(task, analysis, rules)
	elapsed := time.Since(started)
	r.metrics.recordRoute(elapsed, selected != nil)

	if selected == nil {
		r.logger.Log("[router] task %s: no suitable worker (required=%v)", task.ID, analysis.RequiredCapabilities)
		return RoutingResult{
			Success:     false,
			Analysis:    analysis,
			RoutingTime: elapsed,
			Error:       ErrNoWorker.Error(),
		}
	}

	if err := r.registry.acquire(selected.WorkerID); err != nil {
		// The worker state changed between scoring and assignment.
		return RoutingResult{
			Success:     false,
			Analysis:    analysis,
			RoutingTime: elapsed,
			Error:       err.Error(),
		}
	}

	r.mu.Lock()
	r.active[task.ID] = RouteRecord{TaskID: task.ID, WorkerID: selected.WorkerID, AssignedAt: time.Now()}
	r.mu.Unlock()

	r.logger.Log("[router] task %s assigned to %s (score=%.2f)", task.ID, selected.WorkerID, selected.Score)
	r.events.Publish(bus.EventTaskAssigned, map[string]any{
		"task_id":   task.ID,
		"worker_id": selected.WorkerID,
		"score":     selected.Score,
	}, bus.PublishOptions{Source: "router", CorrelationID: task.ID})

	result := r.execute(ctx, task, selected.WorkerID)
	result.Analysis = analysis
	result.RoutingTime = elapsed

	return result
}

// execute runs the task on the assigned worker and settles load,
// status, metrics, events, and route records.
func (r *Router) execute(ctx context.Context, task *models.Task, workerID string) RoutingResult {
	defer func() {
		r.registry.release(workerID)
		r.finishRoute(task.ID)
	}()

	worker := r.registry.Worker(workerID)
	if worker == nil {
		r.metrics.recordOutcome(workerID, false)
		return RoutingResult{
			Success:  false,
			WorkerID: workerID,
			Error:    fmt.Sprintf("worker %q disappeared during assignment", workerID),
		}
	}

	r.events.Publish(bus.EventTaskStarted, task.ID, bus.PublishOptions{Source: workerID, CorrelationID: task.ID})

	taskResult, err := worker.ExecuteTask(ctx, task)
	success := err == nil && taskResult != nil && taskResult.Success
	r.metrics.recordOutcome(workerID, success)

	if !success {
		msg := "task failed"
		if err != nil {
			msg = err.Error()
		} else if taskResult != nil && taskResult.Error != "" {
			msg = taskResult.Error
		}
		r.logger.Log("[router] task %s failed on %s: %s", task.ID, workerID, msg)
		r.events.Publish(bus.EventTaskFailed, map[string]any{
			"task_id":   task.ID,
			"worker_id": workerID,
			"error":     msg,
		}, bus.PublishOptions{Source: workerID, CorrelationID: task.ID})
		return RoutingResult{
			Success:  false,
			WorkerID: workerID,
			Result:   taskResult,
			Error:    msg,
		}
	}

	r.events.Publish(bus.EventTaskCompleted, map[string]any{
		"task_id":   task.ID,
		"worker_id": workerID,
	}, bus.PublishOptions{Source: workerID, CorrelationID: task.ID})

	return RoutingResult{
		Success:  true,
		WorkerID: workerID,
		Result:   taskResult,
	}
}

// selectWorker scores available workers and applies the routing rules.
func (r *Router) selectWorker(task *models.Task, analysis *TaskAnalysis, rules []Rule) *Candidate {
	available := r.registry.Available()
	if len(available) == 0 {
		return nil
	}

	candidates := make([]Candidate, 0, len(available))
	for _, d := range available {
		rate := r.history.SuccessRate(d.ID)
		candidates = append(candidates, scoreWorker(r.weights, d, task, analysis, rate))
	}

	// Highest score first; worker ID breaks ties so routing stays
	// deterministic for an unchanged registry and rule set.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].WorkerID < candidates[j].WorkerID
	})

	// First non-abstaining rule wins.
	for _, rule := range rules {
		if rule.Select == nil {
			continue
		}
		if picked := rule.Select(task, analysis, candidates); picked != nil {
			r.logger.Log("[router] rule %s selected worker %s for task %s", rule.Name, picked.WorkerID, task.ID)
			return picked
		}
	}

	return &candidates[0]
}

// finishRoute moves a route record from active to the bounded recent list.
func (r *Router) finishRoute(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.active[taskID]
	if !ok {
		return
	}
	delete(r.active, taskID)

	r.recent = append(r.recent, rec)
	if len(r.recent) > r.recentCap {
		r.recent = r.recent[len(r.recent)-r.recentCap:]
	}
}

// RouteAll routes tasks in bounded concurrent groups with a small delay
// between groups. An individual failure never aborts sibling tasks; the
// returned slice has one result per task, in input order.
func (r *Router) RouteAll(ctx context.Context, tasks []*models.Task) []RoutingResult {
	results := make([]RoutingResult, len(tasks))

	for start := 0; start < len(tasks); start += r.batchSize {
		end := start + r.batchSize
		if end > len(tasks) {
			end = len(tasks)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = r.Route(ctx, tasks[i])
			}(i)
		}
		wg.Wait()

		if end < len(tasks) {
			select {
			case <-time.After(r.batchDelay):
			case <-ctx.Done():
				for i := end; i < len(tasks); i++ {
					results[i] = RoutingResult{Success: false, Error: ctx.Err().Error()}
				}
				return results
			}
		}
	}

	return results
}

// Start launches the background maintenance loops and subscribes to
// agent.error events for worker cooldown handling.
func (r *Router) Start() {
	r.errorSub = r.events.Subscribe(bus.EventAgentError, r.onAgentError)

	r.wg.Add(1)
	go r.maintenanceLoop()
}

// Stop halts the maintenance loops and releases the error subscription.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	if r.errorSub != nil {
		r.errorSub.Unsubscribe()
	}
	r.wg.Wait()
}

// onAgentError marks the failing worker as errored for the cooldown
// window, then reinstates it automatically.
func (r *Router) onAgentError(e bus.Event) {
	var workerID string
	switch data := e.Data.(type) {
	case AgentError:
		workerID = data.WorkerID
	case string:
		workerID = data
	default:
		return
	}

	if r.registry.Descriptor(workerID) == nil {
		return
	}

	r.logger.Log("[router] worker %s errored, cooling down for %s", workerID, r.errorCooldown)
	r.registry.setStatus(workerID, models.WorkerStatusError)

	r.mu.Lock()
	r.cooldowns[workerID] = time.Now().Add(r.errorCooldown)
	r.mu.Unlock()

	time.AfterFunc(r.errorCooldown, func() { r.reinstate(workerID) })
}

// reinstate restores an errored worker to available once its cooldown
// has elapsed.
func (r *Router) reinstate(workerID string) {
	// A newer agent.error may have extended the cooldown; only the
	// timer matching the latest deadline reinstates.
	r.mu.Lock()
	deadline, ok := r.cooldowns[workerID]
	if ok && !time.Now().Before(deadline.Truncate(time.Millisecond)) {
		delete(r.cooldowns, workerID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	d := r.registry.Descriptor(workerID)
	if d == nil || d.Status != models.WorkerStatusError {
		return
	}
	r.logger.Log("[router] worker %s cooldown elapsed, reinstating", workerID)
	r.registry.setStatus(workerID, models.WorkerStatusAvailable)
}

// maintenanceLoop periodically tunes worker capacity and evicts stale
// route records.
func (r *Router) maintenanceLoop() {
	defer r.wg.Done()

	tune := time.NewTicker(r.maintenanceInterval)
	cleanup := time.NewTicker(r.cleanupInterval)
	defer tune.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-tune.C:
			r.tuneCapacity()
		case <-cleanup.C:
			r.cleanupRoutes()
		case <-r.stop:
			return
		}
	}
}

// tuneCapacity raises the concurrency limit of consistently successful
// workers and lowers it for struggling ones.
func (r *Router) tuneCapacity() {
	for _, id := range r.registry.ids() {
		stats := r.metrics.stats(id)
		d := r.registry.Descriptor(id)
		if d == nil {
			continue
		}

		switch {
		case stats.Completed > 5 && stats.SuccessRate() > 0.90 && d.MaxConcurrentTasks < maxTunedCapacity:
			r.registry.setMaxConcurrent(id, d.MaxConcurrentTasks+1)
			r.logger.Log("[router] raised capacity of %s to %d", id, d.MaxConcurrentTasks+1)
		case stats.Total() > 0 && stats.SuccessRate() < 0.70 && d.MaxConcurrentTasks > 1:
			r.registry.setMaxConcurrent(id, d.MaxConcurrentTasks-1)
			r.logger.Log("[router] lowered capacity of %s to %d", id, d.MaxConcurrentTasks-1)
		}
	}
}

// cleanupRoutes evicts active route records older than the max age.
func (r *Router) cleanupRoutes() {
	cutoff := time.Now().Add(-r.routeMaxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	for taskID, rec := range r.active {
		if rec.AssignedAt.Before(cutoff) {
			r.logger.Log("[router] evicting stale route for task %s (assigned %s)", taskID, rec.AssignedAt.Format(time.RFC3339))
			delete(r.active, taskID)
		}
	}
}
