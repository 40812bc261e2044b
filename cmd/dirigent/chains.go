package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/config"
	"github.com/dirigent-sh/dirigent/internal/logging"
	"github.com/dirigent-sh/dirigent/internal/tools"
	"github.com/dirigent-sh/dirigent/internal/workflow"
)

var (
	chainRunYes    bool
	chainRunParams []string
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List and run workflow chains",
	Long: `Manage workflow chains loaded from the configured chains directory.

Chains are YAML files describing ordered tool steps with retries,
timeouts, approval gates, and parallel groups.`,
	RunE: listChains,
}

var chainsRunCmd = &cobra.Command{
	Use:   "run <chain-id>",
	Short: "Execute a workflow chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runChain,
}

func init() {
	chainsRunCmd.Flags().BoolVarP(&chainRunYes, "yes", "y", false, "Approve all approval gates without prompting")
	chainsRunCmd.Flags().StringArrayVar(&chainRunParams, "param", nil, "Initial parameter as key=value (repeatable)")
	chainsCmd.AddCommand(chainsRunCmd)
}

func listChains(cmd *cobra.Command, args []string) error {
	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}

	ids := orch.Chains()
	if len(ids) == 0 {
		fmt.Println("no chains found")
		return nil
	}

	for _, id := range ids {
		status, err := orch.Status(id)
		if err != nil {
			continue
		}
		fmt.Printf("%s  %s\n", planTitleStyle.Render(id), dimStyle.Render(fmt.Sprintf("%d steps", status.Steps)))
	}
	return nil
}

func runChain(cmd *cobra.Command, args []string) error {
	chainID := args[0]

	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}

	params, err := parseParams(chainRunParams)
	if err != nil {
		return err
	}
	if _, ok := params["workingDirectory"]; !ok {
		if cwd, err := os.Getwd(); err == nil {
			params["workingDirectory"] = cwd
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result := orch.ExecuteChain(ctx, chainID, params)

	for _, r := range result.Results {
		symbol, attr := "✓", color.FgGreen
		if !r.Success {
			symbol, attr = "✗", color.FgRed
		}
		printStatus(symbol, fmt.Sprintf("%s (%s)", r.Step, r.Duration.Round(time.Millisecond)), attr)
	}

	if !result.Success {
		printStatus("✗", fmt.Sprintf("chain failed: %s", result.Error), color.FgRed)
		return fmt.Errorf("chain %s failed", chainID)
	}
	printStatus("✓", fmt.Sprintf("%d/%d steps completed in %s", result.ExecutedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond)), color.FgGreen)
	return nil
}

// buildOrchestrator loads configuration and chains from disk and wires a
// ready-to-use orchestrator with the builtin tool registry.
func buildOrchestrator() (*workflow.Orchestrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.DebugLog != "" {
		logger, err = logging.NewDebugLogger(cfg.Logging.DebugLog)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	events := bus.New(bus.WithHistoryCap(cfg.Events.HistoryCap))

	orch := workflow.New(registry, events,
		workflow.WithLogger(logger),
		workflow.WithDefaultStepTimeout(cfg.Workflow.DefaultStepTimeout),
		workflow.WithGroupBatchSize(cfg.Workflow.GroupBatchSize),
		workflow.WithApprover(terminalApprover()),
	)

	dir := cfg.Workflow.ChainsDir
	if dir == "" {
		dir = ".dirigent/chains"
	}
	chains, err := workflow.LoadChainDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return orch, nil
		}
		return nil, fmt.Errorf("load chains from %s: %w", dir, err)
	}
	for _, c := range chains {
		if err := orch.RegisterChain(c); err != nil {
			return nil, fmt.Errorf("register chain %s: %w", c.ID, err)
		}
	}
	return orch, nil
}

// terminalApprover prompts on stdin for each approval gate. With --yes,
// every gate is approved without prompting.
func terminalApprover() workflow.Approver {
	return workflow.ApproverFunc(func(ctx context.Context, req workflow.ApprovalRequest) (workflow.ApprovalResponse, error) {
		if chainRunYes {
			return workflow.ApprovalResponse{Approved: true}, nil
		}
		fmt.Printf("step %q wants to run tool %q. approve? [y/N] ", req.Step, req.Tool)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return workflow.ApprovalResponse{Approved: false, Reason: "no response"}, nil
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			return workflow.ApprovalResponse{Approved: true}, nil
		}
		return workflow.ApprovalResponse{Approved: false, Reason: "denied at prompt"}, nil
	})
}

// parseParams converts repeated key=value flags into a parameter map.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
