// Package agentconfig loads an individual agent's on-disk configuration
// file: its display name, default engine/model overrides, and the
// sequence of chained prompts it queues after its first response.
//
// This replaces the teacher's dynamic require/unrequire plugin-loading
// pattern (agents here are declarative YAML, not Go packages resolved at
// runtime) with a structured, validated, file-backed loader in the style
// of internal/persona's loader.
package agentconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cortexforge/agentflow/internal/workflow"
)

// Config is one agent's configuration file contents.
type Config struct {
	ID             string                   `yaml:"id"`
	Name           string                   `yaml:"name"`
	Engine         string                   `yaml:"engine,omitempty"`
	Model          string                   `yaml:"model,omitempty"`
	ChainedPrompts []workflow.ChainedPrompt `yaml:"chainedPrompts,omitempty"`
}

// Validate checks structural invariants of a loaded config.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("agent config missing id")
	}
	for i, cp := range c.ChainedPrompts {
		if cp.Content == "" {
			return fmt.Errorf("agent %s: chained prompt %d missing content", c.ID, i)
		}
	}
	return nil
}

// Load reads and validates an agent configuration file at path. A
// missing file is not an error: it returns a minimal default config
// named after the agent id the caller expects there, since most agents
// need no file at all (prompts alone are enough).
func Load(path, fallbackID string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{ID: fallbackID}, nil
		}
		return nil, fmt.Errorf("read agent config %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse agent config %s: %w", path, err)
	}
	if c.ID == "" {
		c.ID = fallbackID
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config %s: %w", path, err)
	}
	return &c, nil
}

// PathForAgent resolves an agent id's configuration file under the
// orchestrator's per-agent config directory.
func PathForAgent(agentsDir, agentID string) string {
	return filepath.Join(agentsDir, agentID+".yaml")
}
