package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/agent"
	"forge/config"
)

func TestBuildTeamFromAgentFlags(t *testing.T) {
	flagAgents = []string{"backend:Ada", "qa", "lead"}
	defer func() { flagAgents = nil }()

	team, err := buildTeam(&cobra.Command{}, config.Default(), "task", nil)
	require.NoError(t, err)
	require.Len(t, team, 3)
	assert.Equal(t, agent.RoleBackendDev, team[0].Role)
	assert.Equal(t, "Ada", team[0].Name)
	assert.Equal(t, agent.RoleQATester, team[1].Role)
	assert.Equal(t, agent.RoleLeadDeveloper, team[2].Role)
}

func TestBuildTeamRejectsUnknownRole(t *testing.T) {
	flagAgents = []string{"wizard"}
	defer func() { flagAgents = nil }()

	_, err := buildTeam(&cobra.Command{}, config.Default(), "task", nil)
	assert.Error(t, err)
}

func TestBuildTeamNoAutoTeam(t *testing.T) {
	flagNoAutoTeam = true
	defer func() { flagNoAutoTeam = false }()

	team, err := buildTeam(&cobra.Command{}, config.Default(), "task", nil)
	require.NoError(t, err)
	require.Len(t, team, 3)
	assert.Equal(t, agent.RoleLeadDeveloper, team[0].Role)
	assert.Equal(t, agent.RoleBackendDev, team[1].Role)
	assert.Equal(t, agent.RoleQATester, team[2].Role)
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	flagIterations = 9
	flagMinIterations = 0
	flagOutput = "/tmp/out"
	flagMaxTeamSize = 5
	defer func() {
		flagIterations = 0
		flagMinIterations = -1
		flagOutput = ""
		flagMaxTeamSize = 0
	}()

	cfg := config.Default()
	applyFlags(cfg)
	assert.Equal(t, 9, cfg.Workflow.Iterations)
	assert.Equal(t, 0, cfg.Workflow.MinIterations)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, 5, cfg.Workflow.MaxTeamSize)
}
