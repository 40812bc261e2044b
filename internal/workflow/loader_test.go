package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const chainYAML = `
id: release
name: Release
description: Build and publish a release.
steps:
  - name: build
    tool: run_command
    params:
      command: make build
      workDir: $workingDirectory
    retryCount: 2
    timeout: 45s
  - name: publish
    tool: run_command
    params:
      command: make publish
    autoApprove: false
parallelGroups:
  checks:
    - name: lint
      tool: run_command
      params:
        command: make lint
    - name: test
      tool: run_command
      params:
        command: make test
autoApproval:
  - toolPattern: "file_*"
    conditions:
      path: CHANGELOG.md
`

func TestLoadChain(t *testing.T) {
	chain, err := LoadChain([]byte(chainYAML))
	if err != nil {
		t.Fatalf("LoadChain: %v", err)
	}

	if chain.ID != "release" || chain.Name != "Release" {
		t.Errorf("id/name = %q/%q", chain.ID, chain.Name)
	}
	if len(chain.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(chain.Steps))
	}

	build := chain.Steps[0]
	if build.Tool != "run_command" || build.RetryCount != 2 {
		t.Errorf("build step = %+v", build)
	}
	if build.Timeout != 45*time.Second {
		t.Errorf("build timeout = %s, want 45s", build.Timeout)
	}
	if build.Params["workDir"] != "$workingDirectory" {
		t.Errorf("references must survive loading unresolved, got %v", build.Params["workDir"])
	}

	publish := chain.Steps[1]
	if publish.AutoApprove == nil || *publish.AutoApprove {
		t.Error("publish step should carry an explicit autoApprove: false")
	}

	if got := len(chain.ParallelGroups["checks"]); got != 2 {
		t.Errorf("checks group has %d steps, want 2", got)
	}
	if len(chain.AutoApprovalRules) != 1 {
		t.Fatalf("got %d approval rules, want 1", len(chain.AutoApprovalRules))
	}
	rule := chain.AutoApprovalRules[0]
	if rule.ToolPattern != "file_*" || rule.Conditions["path"] != "CHANGELOG.md" {
		t.Errorf("rule = %+v", rule)
	}
}

func TestLoadChainRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown field", "id: x\nsteps:\n  - name: a\n    tool: t\n    bogus: 1\n"},
		{"missing id", "name: x\nsteps:\n  - name: a\n    tool: t\n"},
		{"missing tool", "id: x\nsteps:\n  - name: a\n"},
		{"missing step name", "id: x\nsteps:\n  - tool: t\n"},
		{"bad timeout", "id: x\nsteps:\n  - name: a\n    tool: t\n    timeout: soon\n"},
		{"not yaml", "{{{"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadChain([]byte(tc.yaml)); err == nil {
				t.Errorf("LoadChain accepted %s", tc.name)
			}
		})
	}
}

func TestLoadChainDir(t *testing.T) {
	dir := t.TempDir()

	writeFile := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	writeFile("a.yaml", "id: a\nsteps:\n  - name: one\n    tool: t\n")
	writeFile("b.yml", "id: b\nsteps:\n  - name: one\n    tool: t\n")
	writeFile("notes.txt", "not a chain")

	chains, err := LoadChainDir(dir)
	if err != nil {
		t.Fatalf("LoadChainDir: %v", err)
	}
	if len(chains) != 2 {
		t.Fatalf("got %d chains, want 2 (non-YAML ignored)", len(chains))
	}

	writeFile("c.yaml", "id: c\nsteps:\n  - tool: missing-name\n")
	if _, err := LoadChainDir(dir); err == nil {
		t.Error("expected malformed file to abort directory load")
	}
}
