package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

// RegisterBuiltins adds the built-in file and command tools to the
// registry. The embedding application decides whether to call this;
// the orchestrator itself works with whatever tools are registered.
func RegisterBuiltins(r *Registry) {
	r.Register(NewFileReadTool())
	r.Register(NewFileWriteTool())
	r.Register(NewRunCommandTool())
}

// NewFileReadTool returns a tool that reads a file into the result data.
// Parameters: path (string, required).
func NewFileReadTool() Tool {
	return &FuncTool{
		ToolName: "file_read",
		Meta: Metadata{
			RiskLevel:           models.RiskLow,
			Reversible:          true,
			RequiredPermissions: []string{"fs:read"},
		},
		Fn: func(ctx context.Context, params map[string]any) (*Result, error) {
			path, err := stringParam(params, "path")
			if err != nil {
				return &Result{Success: false, Error: err.Error()}, nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return &Result{Success: false, Error: fmt.Sprintf("read %s: %v", path, err)}, nil
			}
			return &Result{
				Success: true,
				Data:    map[string]any{"path": path, "content": string(data)},
			}, nil
		},
	}
}

// NewFileWriteTool returns a tool that writes content to a file, creating
// parent directories as needed.
// Parameters: path (string, required), content (string, required).
func NewFileWriteTool() Tool {
	return &FuncTool{
		ToolName: "file_write",
		Meta: Metadata{
			RiskLevel:           models.RiskMedium,
			Reversible:          false,
			RequiredPermissions: []string{"fs:write"},
		},
		Fn: func(ctx context.Context, params map[string]any) (*Result, error) {
			path, err := stringParam(params, "path")
			if err != nil {
				return &Result{Success: false, Error: err.Error()}, nil
			}
			content, err := stringParam(params, "content")
			if err != nil {
				return &Result{Success: false, Error: err.Error()}, nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return &Result{Success: false, Error: fmt.Sprintf("create directory: %v", err)}, nil
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return &Result{Success: false, Error: fmt.Sprintf("write %s: %v", path, err)}, nil
			}
			return &Result{
				Success: true,
				Data:    map[string]any{"path": path, "bytes": len(content)},
			}, nil
		},
	}
}

// NewRunCommandTool returns a tool that runs a shell command through
// "sh -c" and captures combined output.
// Parameters: command (string, required), workDir (string, optional).
func NewRunCommandTool() Tool {
	return &FuncTool{
		ToolName: "run_command",
		Meta: Metadata{
			RiskLevel:           models.RiskHigh,
			Reversible:          false,
			RequiredPermissions: []string{"exec"},
		},
		Fn: func(ctx context.Context, params map[string]any) (*Result, error) {
			command, err := stringParam(params, "command")
			if err != nil {
				return &Result{Success: false, Error: err.Error()}, nil
			}
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			if workDir, ok := params["workDir"].(string); ok && workDir != "" {
				cmd.Dir = workDir
			}
			output, err := cmd.CombinedOutput()
			if err != nil {
				return &Result{
					Success: false,
					Data:    map[string]any{"output": string(output)},
					Error:   fmt.Sprintf("command failed: %v", err),
				}, nil
			}
			return &Result{
				Success: true,
				Data:    map[string]any{"output": string(output)},
			}, nil
		},
	}
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}
