package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Workflow.Iterations)
	assert.Equal(t, 2, cfg.Workflow.MinIterations)
	assert.NotEmpty(t, cfg.Output.Dir)
	assert.NotEmpty(t, cfg.History.DBPath)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "llama3:latest", cfg.LLM.Model)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.yaml")
	content := `
llm:
  model: codellama:13b
  base_url: http://10.0.0.5:11434
  temperature: 0.5
output:
  dir: /tmp/projects
workflow:
  iterations: 7
  min_iterations: 1
  max_team_size: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "codellama:13b", cfg.LLM.Model)
	assert.Equal(t, "http://10.0.0.5:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "/tmp/projects", cfg.Output.Dir)
	assert.Equal(t, 7, cfg.Workflow.Iterations)
	assert.Equal(t, 1, cfg.Workflow.MinIterations)
	assert.Equal(t, 4, cfg.Workflow.MaxTeamSize)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestOutputDirEnvOverride(t *testing.T) {
	t.Setenv("FORGE_OUTPUT", "/srv/forge-out")
	assert.Equal(t, "/srv/forge-out", defaultOutputDir())
}
