package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/config"
	"github.com/dirigent-sh/dirigent/internal/llm"
	"github.com/dirigent-sh/dirigent/internal/logging"
	"github.com/dirigent-sh/dirigent/internal/planner"
	"github.com/dirigent-sh/dirigent/internal/router"
	"github.com/dirigent-sh/dirigent/internal/state"
	"github.com/dirigent-sh/dirigent/internal/watch"
	"github.com/dirigent-sh/dirigent/pkg/models"
)

var (
	runPriority string
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Plan and route a task",
	Long: `Analyze a task description, build an orchestration plan, and route
the task to the best-fit worker.

The task is classified by intent, scored against registered workers
(capability match, specialization, load, history), and executed by the
winning worker. With --dry-run, the plan is printed without routing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runPriority, "priority", "normal", "Task priority (low, normal, high, critical)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the plan without executing")
}

func runTask(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	priority := models.TaskPriority(runPriority)
	if !priority.Valid() {
		return fmt.Errorf("invalid priority %q", runPriority)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.DebugLog != "" {
		logger, err = logging.NewDebugLogger(cfg.Logging.DebugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := bus.New(bus.WithHistoryCap(cfg.Events.HistoryCap))

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	learning := planner.NewLearningStore()
	learning.SetPersister(store)
	warmLearningStore(ctx, learning, store)

	plannerOpts := []planner.Option{
		planner.WithLogger(logger),
		planner.WithLearningStore(learning),
	}
	if cfg.Planner.StrategyOverride != "" {
		plannerOpts = append(plannerOpts,
			planner.WithStrategyOverride(models.Strategy(cfg.Planner.StrategyOverride)))
	}
	pl := planner.New(events, plannerOpts...)

	cog := pl.Analyze(description, nil)
	plan := pl.Plan(cog)

	fmt.Println(renderCognition(cog))
	fmt.Println(renderPlan(plan))
	fmt.Println()

	if runDryRun {
		return nil
	}

	rt := router.New(events,
		router.WithScoreWeights(cfg.Router.Weights),
		router.WithHistoryProvider(learning),
		router.WithLogger(logger),
		router.WithErrorCooldown(cfg.Router.ErrorCooldown),
		router.WithMaintenanceInterval(cfg.Router.MaintenanceInterval),
		router.WithCleanupInterval(cfg.Router.CleanupInterval),
		router.WithBatchSize(cfg.Router.BatchSize),
	)

	if err := registerWorkers(cfg, rt, cog); err != nil {
		return err
	}

	var watcher *watch.Watcher
	if cfg.Watch.Enabled {
		watcher, err = watch.New(events, logger)
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()
		for _, p := range cfg.Watch.Paths {
			if err := watcher.Add(p); err != nil {
				printStatus("⚠", fmt.Sprintf("cannot watch %s: %v", p, err), color.FgYellow)
			}
		}
		watcher.Start(ctx)
	}

	rt.Start()
	defer rt.Stop()
	events.Publish(bus.EventSystemReady, nil, bus.PublishOptions{Source: "cli"})
	defer events.Publish(bus.EventSystemShutdown, nil, bus.PublishOptions{Source: "cli"})

	task := &models.Task{
		ID:          uuid.NewString(),
		Type:        cog.Intent,
		Description: description,
		Priority:    priority,
		CreatedAt:   time.Now(),
	}
	pl.Approve(plan)

	result := rt.Route(ctx, task)
	recordOutcome(ctx, learning, cog, task, result)

	if !result.Success {
		printStatus("✗", result.Error, color.FgRed)
		return fmt.Errorf("task failed")
	}

	pl.MarkExecuted(plan)
	printStatus("✓", fmt.Sprintf("completed by %s in %s", result.WorkerID, result.Result.Duration), color.FgGreen)
	if result.Result.Output != "" {
		fmt.Println()
		fmt.Println(result.Result.Output)
	}
	return nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (state.Store, error) {
	if cfg.State.InMemory {
		return state.NewMemoryStore(), nil
	}

	path := cfg.State.Path
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		path = state.ProjectDBPath(cwd)
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// warmLearningStore seeds the in-memory learning store from persisted
// outcomes so historical scoring survives restarts.
func warmLearningStore(ctx context.Context, learning *planner.LearningStore, store state.Store) {
	outcomes, err := store.RecentOutcomes(ctx, 1000)
	if err != nil {
		return
	}
	// Detach the persister while replaying to avoid re-writing rows.
	learning.SetPersister(nil)
	for _, o := range outcomes {
		learning.RecordOutcome(ctx, o)
	}
	learning.SetPersister(store)
}

// registerWorkers wires the model-backed worker when an API key is
// configured. Without one, routing has no workers and fails cleanly.
func registerWorkers(cfg *config.Config, rt *router.Router, cog models.Cognition) error {
	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		printStatus("⚠", "no Anthropic API key configured; no workers registered", color.FgYellow)
		return nil
	}

	worker, err := llm.NewWorker(llm.Config{
		ID:                 "claude",
		APIKey:             apiKey,
		Model:              anthropic.Model(cfg.Anthropic.Model),
		Capabilities:       cog.RequiredCapabilities,
		Specialization:     cog.Intent,
		MaxConcurrentTasks: 3,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	return rt.RegisterWorker(worker)
}

// recordOutcome feeds the routing result back into the learning store.
func recordOutcome(ctx context.Context, learning *planner.LearningStore, cog models.Cognition, task *models.Task, result router.RoutingResult) {
	if result.WorkerID == "" {
		return
	}
	outcome := planner.Outcome{
		WorkerID: result.WorkerID,
		TaskType: task.Type,
		Intent:   cog.Intent,
		Success:  result.Success,
	}
	if result.Result != nil {
		outcome.Duration = result.Result.Duration
	}
	learning.RecordOutcome(ctx, outcome)
}
