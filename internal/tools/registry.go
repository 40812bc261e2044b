// Package tools provides the registry of named, side-effecting operations
// that workflow chains execute. The registry stores risk and reversibility
// metadata for approval and safety decisions; enforcement of that metadata
// is the consumer's responsibility.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

// Result is the outcome of a single tool execution.
type Result struct {
	// Success indicates whether the tool completed its operation.
	Success bool `json:"success"`
	// Data holds the tool's output, keyed by output name.
	Data map[string]any `json:"data,omitempty"`
	// Error contains the failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// Metadata describes a tool's risk profile for approval and safety logic.
type Metadata struct {
	// RiskLevel is how dangerous the tool is to run.
	RiskLevel models.RiskLevel `json:"risk_level"`
	// Reversible indicates whether the tool's side effects can be undone.
	Reversible bool `json:"reversible"`
	// RequiredPermissions lists permissions the tool needs.
	RequiredPermissions []string `json:"required_permissions,omitempty"`
	// SupportedFileTypes lists file extensions the tool operates on.
	SupportedFileTypes []string `json:"supported_file_types,omitempty"`
}

// Tool is a registered, named capability with a single execute operation.
type Tool interface {
	// Name returns the tool's registry name.
	Name() string
	// Metadata returns the tool's risk profile.
	Metadata() Metadata
	// Execute runs the tool with the given parameters. Execution errors
	// are reported through the Result; the error return is reserved for
	// context cancellation and infrastructure failures.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Registry maps tool names to executable capabilities.
type Registry struct {
	// tools maps tool names to implementations.
	tools map[string]Tool
	// mu protects the tools map.
	mu sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Registering a name twice
// replaces the earlier tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q is not registered", name)
	}
	return t, nil
}

// List returns the names of all registered tools.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// FuncTool adapts a function into a Tool. It is the simplest way for the
// embedding application to register custom capabilities.
type FuncTool struct {
	// ToolName is the registry name.
	ToolName string
	// Meta is the tool's risk profile.
	Meta Metadata
	// Fn is the execution function.
	Fn func(ctx context.Context, params map[string]any) (*Result, error)
}

// Name returns the tool's registry name.
func (t *FuncTool) Name() string { return t.ToolName }

// Metadata returns the tool's risk profile.
func (t *FuncTool) Metadata() Metadata { return t.Meta }

// Execute invokes the wrapped function.
func (t *FuncTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return t.Fn(ctx, params)
}
