package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/config"
	"github.com/dirigent-sh/dirigent/internal/logging"
	"github.com/dirigent-sh/dirigent/internal/planner"
	"github.com/dirigent-sh/dirigent/pkg/models"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan <task description>",
	Short: "Analyze a task and print the orchestration plan",
	Long: `Classify a task description and print the resulting cognition and
orchestration plan without routing anything. Useful for previewing how a
task would be decomposed before running it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: planTask,
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
}

func planTask(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	events := bus.New(bus.WithHistoryCap(cfg.Events.HistoryCap))
	opts := []planner.Option{planner.WithLogger(logging.NopLogger())}
	if cfg.Planner.StrategyOverride != "" {
		opts = append(opts,
			planner.WithStrategyOverride(models.Strategy(cfg.Planner.StrategyOverride)))
	}
	pl := planner.New(events, opts...)

	cog := pl.Analyze(description, nil)
	plan := pl.Plan(cog)

	if planJSON {
		out := struct {
			Cognition models.Cognition         `json:"cognition"`
			Plan      models.OrchestrationPlan `json:"plan"`
		}{cog, plan}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(renderCognition(cog))
	fmt.Println(renderPlan(plan))
	return nil
}
