package agentconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "agent-x")
	require.NoError(t, err)
	assert.Equal(t, "agent-x", c.ID)
}

func TestLoadParsesChainedPrompts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-x.yaml")
	content := `
id: agent-x
name: Agent X
chainedPrompts:
  - label: followup
    content: "please continue"
    conditions: ["has-tests"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path, "agent-x")
	require.NoError(t, err)
	require.Len(t, c.ChainedPrompts, 1)
	assert.Equal(t, "please continue", c.ChainedPrompts[0].Content)
}

func TestLoadRejectsChainedPromptMissingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-x.yaml")
	content := `
id: agent-x
chainedPrompts:
  - label: broken
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path, "agent-x")
	assert.Error(t, err, "expected validation error for empty chained prompt content")
}

func TestPathForAgent(t *testing.T) {
	got := PathForAgent("/tmp/agents", "agent-x")
	assert.Equal(t, "/tmp/agents/agent-x.yaml", got)
}
