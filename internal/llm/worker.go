// Package llm adapts the Anthropic Messages API to the Worker contract
// so tasks can be routed to a model-backed executor. The core never
// imports this package; the embedding application wires it in.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

const defaultSystemPrompt = "You are a task execution agent. Complete the " +
	"task described by the user and reply with the outcome. Be concise."

// messageService is the slice of the Anthropic SDK the worker uses,
// narrowed so tests can substitute a double.
type messageService interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config describes a model-backed worker.
type Config struct {
	// ID is the worker's registry identifier.
	ID string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// Model is the Claude model to use.
	Model anthropic.Model
	// Capabilities advertises what the worker can do.
	Capabilities []string
	// Specialization is the worker's specialization tag.
	Specialization string
	// MaxConcurrentTasks bounds simultaneous executions.
	MaxConcurrentTasks int
	// SystemPrompt overrides the default execution prompt.
	SystemPrompt string
}

// Worker executes tasks by prompting a Claude model. It implements
// models.Worker.
type Worker struct {
	messages     messageService
	model        anthropic.Model
	systemPrompt string
	descriptor   *models.WorkerDescriptor
}

// NewWorker creates a model-backed worker.
func NewWorker(cfg Config) (*Worker, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	id := cfg.ID
	if id == "" {
		id = "llm-worker"
	}
	maxTasks := cfg.MaxConcurrentTasks
	if maxTasks < 1 {
		maxTasks = 1
	}

	return &Worker{
		messages:     &client.Messages,
		model:        model,
		systemPrompt: systemPrompt,
		descriptor: &models.WorkerDescriptor{
			ID:                 id,
			Capabilities:       cfg.Capabilities,
			Specialization:     cfg.Specialization,
			Status:             models.WorkerStatusAvailable,
			MaxConcurrentTasks: maxTasks,
		},
	}, nil
}

// Descriptor returns the worker's live descriptor.
func (w *Worker) Descriptor() *models.WorkerDescriptor {
	return w.descriptor
}

// ExecuteTask prompts the model with the task and returns its text
// output as the task result.
func (w *Worker) ExecuteTask(ctx context.Context, task *models.Task) (*models.TaskResult, error) {
	started := time.Now()

	resp, err := w.messages.New(ctx, anthropic.MessageNewParams{
		Model:     w.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: w.systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(task))),
		},
	})
	if err != nil {
		return &models.TaskResult{
			TaskID:   task.ID,
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(started),
		}, fmt.Errorf("API call failed: %w", err)
	}

	var output strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			output.WriteString(text.Text)
		}
	}

	return &models.TaskResult{
		TaskID:   task.ID,
		Success:  true,
		Output:   output.String(),
		Duration: time.Since(started),
	}, nil
}

// buildPrompt renders a task as a model prompt.
func buildPrompt(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task type: %s\n", task.Type)
	fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(task.Dependencies, ", "))
	}
	for k, v := range task.Metadata {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	fmt.Fprintf(&b, "\n%s\n", task.Description)
	return b.String()
}

// Compile-time verification that Worker implements models.Worker.
var _ models.Worker = (*Worker)(nil)
