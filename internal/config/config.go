// Package config handles configuration loading and management for Dirigent.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/dirigent-sh/dirigent/internal/router"
)

// Config holds all configuration for Dirigent.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Router    RouterConfig    `mapstructure:"router"`
	Events    EventsConfig    `mapstructure:"events"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	State     StateConfig     `mapstructure:"state"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// RouterConfig holds task-routing settings.
type RouterConfig struct {
	// Weights are the scoring term weights; they should sum to 1.0.
	Weights router.ScoreWeights `mapstructure:"weights"`
	// BatchSize bounds concurrent routes in RouteAll.
	BatchSize int `mapstructure:"batch_size"`
	// ErrorCooldown is how long a worker stays in error status.
	ErrorCooldown time.Duration `mapstructure:"error_cooldown"`
	// MaintenanceInterval is how often capacities are re-tuned.
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	// CleanupInterval is how often stale route records are pruned.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// EventsConfig holds event-bus settings.
type EventsConfig struct {
	// HistoryCap bounds the event history ring buffer.
	HistoryCap int `mapstructure:"history_cap"`
}

// WorkflowConfig holds workflow-orchestrator settings.
type WorkflowConfig struct {
	// DefaultStepTimeout bounds tool invocations without a step timeout.
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout"`
	// GroupBatchSize bounds parallel-group concurrency.
	GroupBatchSize int `mapstructure:"group_batch_size"`
	// ChainsDir is where YAML chain definitions are loaded from.
	ChainsDir string `mapstructure:"chains_dir"`
}

// PlannerConfig holds orchestration-planner settings.
type PlannerConfig struct {
	// StrategyOverride, when set, forces every plan onto one strategy.
	StrategyOverride string `mapstructure:"strategy_override"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite database file; empty selects the project path.
	Path string `mapstructure:"path"`
	// InMemory disables durable persistence.
	InMemory bool `mapstructure:"in_memory"`
}

// WatchConfig holds file-watcher settings.
type WatchConfig struct {
	// Enabled turns the watcher on.
	Enabled bool `mapstructure:"enabled"`
	// Paths are the directories to watch.
	Paths []string `mapstructure:"paths"`
}

// LoggingConfig holds debug-logging settings.
type LoggingConfig struct {
	// DebugLog is the debug log file path; empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.dirigent.yaml in current directory or parent)
// 3. User config (~/.config/dirigent/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("router.weights.capability", cfg.Router.Weights.Capability)
	v.Set("router.weights.specialization", cfg.Router.Weights.Specialization)
	v.Set("router.weights.load", cfg.Router.Weights.Load)
	v.Set("router.weights.history", cfg.Router.Weights.History)
	v.Set("router.batch_size", cfg.Router.BatchSize)
	v.Set("router.error_cooldown", cfg.Router.ErrorCooldown.String())
	v.Set("router.maintenance_interval", cfg.Router.MaintenanceInterval.String())
	v.Set("router.cleanup_interval", cfg.Router.CleanupInterval.String())
	v.Set("events.history_cap", cfg.Events.HistoryCap)
	v.Set("workflow.default_step_timeout", cfg.Workflow.DefaultStepTimeout.String())
	v.Set("workflow.group_batch_size", cfg.Workflow.GroupBatchSize)
	v.Set("workflow.chains_dir", cfg.Workflow.ChainsDir)
	v.Set("planner.strategy_override", cfg.Planner.StrategyOverride)
	v.Set("state.path", cfg.State.Path)
	v.Set("state.in_memory", cfg.State.InMemory)
	v.Set("watch.enabled", cfg.Watch.Enabled)
	v.Set("watch.paths", cfg.Watch.Paths)
	v.Set("logging.debug_log", cfg.Logging.DebugLog)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")

	// Router defaults match the stock scoring weights and intervals.
	v.SetDefault("router.weights.capability", 0.40)
	v.SetDefault("router.weights.specialization", 0.30)
	v.SetDefault("router.weights.load", 0.20)
	v.SetDefault("router.weights.history", 0.10)
	v.SetDefault("router.batch_size", 5)
	v.SetDefault("router.error_cooldown", "30s")
	v.SetDefault("router.maintenance_interval", "30s")
	v.SetDefault("router.cleanup_interval", "5m")

	v.SetDefault("events.history_cap", 1000)

	v.SetDefault("workflow.default_step_timeout", "30s")
	v.SetDefault("workflow.group_batch_size", 3)
	v.SetDefault("workflow.chains_dir", "")

	v.SetDefault("planner.strategy_override", "")

	v.SetDefault("state.path", "")
	v.SetDefault("state.in_memory", false)

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.paths", []string{})

	v.SetDefault("logging.debug_log", "")
}

// getUserConfigDir returns the XDG config directory for Dirigent.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dirigent")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "dirigent")
	}
	return filepath.Join(home, ".config", "dirigent")
}

// findProjectConfig searches for .dirigent.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".dirigent.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Router: RouterConfig{
			Weights:             router.DefaultScoreWeights(),
			BatchSize:           5,
			ErrorCooldown:       30 * time.Second,
			MaintenanceInterval: 30 * time.Second,
			CleanupInterval:     5 * time.Minute,
		},
		Events: EventsConfig{
			HistoryCap: 1000,
		},
		Workflow: WorkflowConfig{
			DefaultStepTimeout: 30 * time.Second,
			GroupBatchSize:     3,
		},
	}
}
