package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// chainFile is the YAML schema for a chain definition. Hooks and
// conditions are code-level constructs and have no file representation.
type chainFile struct {
	ID             string                `yaml:"id"`
	Name           string                `yaml:"name"`
	Description    string                `yaml:"description"`
	Steps          []stepFile            `yaml:"steps"`
	ParallelGroups map[string][]stepFile `yaml:"parallelGroups"`
	AutoApproval   []approvalRuleFile    `yaml:"autoApproval"`
}

type stepFile struct {
	Name        string         `yaml:"name"`
	Tool        string         `yaml:"tool"`
	Params      map[string]any `yaml:"params"`
	RetryCount  int            `yaml:"retryCount"`
	Timeout     string         `yaml:"timeout"`
	AutoApprove *bool          `yaml:"autoApprove"`
}

type approvalRuleFile struct {
	ToolPattern string         `yaml:"toolPattern"`
	Conditions  map[string]any `yaml:"conditions"`
}

// LoadChain parses a single chain definition from YAML. Unknown fields
// are rejected so schema typos surface at load time.
func LoadChain(data []byte) (*Chain, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cf chainFile
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("parsing chain definition: %w", err)
	}
	return cf.toChain()
}

// LoadChainFile parses the chain definition in the named YAML file.
func LoadChainFile(path string) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chain file: %w", err)
	}
	chain, err := LoadChain(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return chain, nil
}

// LoadChainDir parses every .yaml/.yml file in dir as a chain
// definition. The first malformed file aborts the load.
func LoadChainDir(dir string) ([]*Chain, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading chain directory: %w", err)
	}

	var chains []*Chain
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		chain, err := LoadChainFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

func (cf *chainFile) toChain() (*Chain, error) {
	if cf.ID == "" {
		return nil, fmt.Errorf("chain definition missing id")
	}

	chain := &Chain{
		ID:          cf.ID,
		Name:        cf.Name,
		Description: cf.Description,
	}

	for i, sf := range cf.Steps {
		step, err := sf.toStep()
		if err != nil {
			return nil, fmt.Errorf("chain %s step %d: %w", cf.ID, i, err)
		}
		chain.Steps = append(chain.Steps, step)
	}

	if len(cf.ParallelGroups) > 0 {
		chain.ParallelGroups = make(map[string][]Step, len(cf.ParallelGroups))
		for group, sfs := range cf.ParallelGroups {
			for i, sf := range sfs {
				step, err := sf.toStep()
				if err != nil {
					return nil, fmt.Errorf("chain %s group %s step %d: %w", cf.ID, group, i, err)
				}
				chain.ParallelGroups[group] = append(chain.ParallelGroups[group], step)
			}
		}
	}

	for _, rf := range cf.AutoApproval {
		chain.AutoApprovalRules = append(chain.AutoApprovalRules, AutoApprovalRule{
			ToolPattern: rf.ToolPattern,
			Conditions:  rf.Conditions,
		})
	}

	return chain, nil
}

func (sf *stepFile) toStep() (Step, error) {
	if sf.Name == "" {
		return Step{}, fmt.Errorf("step missing name")
	}
	if sf.Tool == "" {
		return Step{}, fmt.Errorf("step %s missing tool", sf.Name)
	}

	step := Step{
		Name:        sf.Name,
		Tool:        sf.Tool,
		Params:      sf.Params,
		RetryCount:  sf.RetryCount,
		AutoApprove: sf.AutoApprove,
	}
	if sf.Timeout != "" {
		d, err := time.ParseDuration(sf.Timeout)
		if err != nil {
			return Step{}, fmt.Errorf("step %s: invalid timeout %q: %w", sf.Name, sf.Timeout, err)
		}
		step.Timeout = d
	}
	return step, nil
}
