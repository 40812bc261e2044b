package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dirigent-sh/dirigent/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Dirigent configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/dirigent/config.yaml
Project-specific overrides can be placed in .dirigent.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s (%s)\n", config.MaskAPIKey(cfg.Anthropic.APIKey), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("router.weights.capability: %g\n", cfg.Router.Weights.Capability)
	fmt.Printf("router.weights.specialization: %g\n", cfg.Router.Weights.Specialization)
	fmt.Printf("router.weights.load: %g\n", cfg.Router.Weights.Load)
	fmt.Printf("router.weights.history: %g\n", cfg.Router.Weights.History)
	fmt.Printf("router.batch_size: %d\n", cfg.Router.BatchSize)
	fmt.Printf("router.error_cooldown: %s\n", cfg.Router.ErrorCooldown)
	fmt.Printf("router.maintenance_interval: %s\n", cfg.Router.MaintenanceInterval)
	fmt.Printf("router.cleanup_interval: %s\n", cfg.Router.CleanupInterval)
	fmt.Printf("events.history_cap: %d\n", cfg.Events.HistoryCap)
	fmt.Printf("workflow.default_step_timeout: %s\n", cfg.Workflow.DefaultStepTimeout)
	fmt.Printf("workflow.group_batch_size: %d\n", cfg.Workflow.GroupBatchSize)
	fmt.Printf("workflow.chains_dir: %s\n", cfg.Workflow.ChainsDir)
	fmt.Printf("planner.strategy_override: %s\n", cfg.Planner.StrategyOverride)
	fmt.Printf("state.path: %s\n", cfg.State.Path)
	fmt.Printf("state.in_memory: %t\n", cfg.State.InMemory)
	fmt.Printf("watch.enabled: %t\n", cfg.Watch.Enabled)
	fmt.Printf("logging.debug_log: %s\n", cfg.Logging.DebugLog)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "router.weights.capability":
		return strconv.FormatFloat(cfg.Router.Weights.Capability, 'g', -1, 64), nil
	case "router.weights.specialization":
		return strconv.FormatFloat(cfg.Router.Weights.Specialization, 'g', -1, 64), nil
	case "router.weights.load":
		return strconv.FormatFloat(cfg.Router.Weights.Load, 'g', -1, 64), nil
	case "router.weights.history":
		return strconv.FormatFloat(cfg.Router.Weights.History, 'g', -1, 64), nil
	case "router.batch_size":
		return strconv.Itoa(cfg.Router.BatchSize), nil
	case "router.error_cooldown":
		return cfg.Router.ErrorCooldown.String(), nil
	case "router.maintenance_interval":
		return cfg.Router.MaintenanceInterval.String(), nil
	case "router.cleanup_interval":
		return cfg.Router.CleanupInterval.String(), nil
	case "events.history_cap":
		return strconv.Itoa(cfg.Events.HistoryCap), nil
	case "workflow.default_step_timeout":
		return cfg.Workflow.DefaultStepTimeout.String(), nil
	case "workflow.group_batch_size":
		return strconv.Itoa(cfg.Workflow.GroupBatchSize), nil
	case "workflow.chains_dir":
		return cfg.Workflow.ChainsDir, nil
	case "planner.strategy_override":
		return cfg.Planner.StrategyOverride, nil
	case "state.path":
		return cfg.State.Path, nil
	case "state.in_memory":
		return strconv.FormatBool(cfg.State.InMemory), nil
	case "watch.enabled":
		return strconv.FormatBool(cfg.Watch.Enabled), nil
	case "logging.debug_log":
		return cfg.Logging.DebugLog, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "router.weights.capability":
		return setFloat(&cfg.Router.Weights.Capability, key, value)
	case "router.weights.specialization":
		return setFloat(&cfg.Router.Weights.Specialization, key, value)
	case "router.weights.load":
		return setFloat(&cfg.Router.Weights.Load, key, value)
	case "router.weights.history":
		return setFloat(&cfg.Router.Weights.History, key, value)
	case "router.batch_size":
		return setInt(&cfg.Router.BatchSize, key, value)
	case "router.error_cooldown":
		return setDuration(&cfg.Router.ErrorCooldown, key, value)
	case "router.maintenance_interval":
		return setDuration(&cfg.Router.MaintenanceInterval, key, value)
	case "router.cleanup_interval":
		return setDuration(&cfg.Router.CleanupInterval, key, value)
	case "events.history_cap":
		return setInt(&cfg.Events.HistoryCap, key, value)
	case "workflow.default_step_timeout":
		return setDuration(&cfg.Workflow.DefaultStepTimeout, key, value)
	case "workflow.group_batch_size":
		return setInt(&cfg.Workflow.GroupBatchSize, key, value)
	case "workflow.chains_dir":
		cfg.Workflow.ChainsDir = value
	case "planner.strategy_override":
		cfg.Planner.StrategyOverride = value
	case "state.path":
		cfg.State.Path = value
	case "state.in_memory":
		return setBool(&cfg.State.InMemory, key, value)
	case "watch.enabled":
		return setBool(&cfg.Watch.Enabled, key, value)
	case "logging.debug_log":
		cfg.Logging.DebugLog = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number for %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}
