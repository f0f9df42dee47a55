package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"forge/agent"
	"forge/config"
	"forge/llm"
	"forge/orchestrate"
	"forge/security"
	"forge/store"
	"forge/testrun"
)

// Server exposes the engine's operations as MCP tools so external agent
// frontends can drive project generation over stdio. The engine still
// runs locally; this is a control surface, not remote execution.
type Server struct {
	cfg *config.Config
	mcp *server.MCPServer
}

// New builds the MCP server and registers the tool set.
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg: cfg,
		mcp: server.NewMCPServer("forge", "1.0.0"),
	}

	s.mcp.AddTool(
		mcp.NewTool("generate_project",
			mcp.WithDescription("Run the multi-agent workflow: build a runnable project from a task description."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Natural-language task description")),
			mcp.WithString("name", mcp.Description("Project directory name (derived from the task when omitted)")),
			mcp.WithNumber("iterations", mcp.Description("Maximum iterations (default 3)")),
		),
		s.handleGenerate,
	)
	s.mcp.AddTool(
		mcp.NewTool("run_tests",
			mcp.WithDescription("Detect the test framework of a generated project and run its suite."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Path to the project directory")),
			mcp.WithString("command", mcp.Description("Override the detected test command")),
		),
		s.handleRunTests,
	)
	s.mcp.AddTool(
		mcp.NewTool("security_scan",
			mcp.WithDescription("Scan a generated project for common vulnerability patterns."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Path to the project directory")),
		),
		s.handleSecurityScan,
	)

	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	task, _ := args["task"].(string)
	if task == "" {
		return mcp.NewToolResultError("task is required"), nil
	}
	name, _ := args["name"].(string)
	if name == "" {
		name = orchestrate.DeriveProjectName(task)
	}
	iterations := s.cfg.Workflow.Iterations
	if n, ok := args["iterations"].(float64); ok && n >= 1 {
		iterations = int(n)
	}

	client := llm.NewOllamaClient(s.cfg.LLM)
	projectStore, err := store.New(filepath.Join(s.cfg.Output.Dir, name))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clarified := agent.NewClarifier(client).Clarify(ctx, task)
	team := agent.NewTeamBuilder(client).Build(ctx, clarified.Clarified, client, s.cfg.Workflow.MaxTeamSize)

	opts := orchestrate.DefaultOptions(clarified.Clarified, team, projectStore)
	opts.MaxIterations = iterations
	opts.MinIterations = s.cfg.Workflow.MinIterations
	opts.TestCommand = s.cfg.Workflow.TestCommand

	controller, err := orchestrate.NewController(opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := controller.Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow interrupted: %v", err)), nil
	}

	summary := map[string]any{
		"project_path": result.ProjectPath,
		"files":        result.Files,
		"iterations":   len(result.Iterations),
	}
	if result.FinalTest != nil {
		summary["tests_passed"] = result.FinalTest.Success
	}
	if result.Security != nil {
		summary["security_findings"] = result.Security.Total
	}
	return jsonResult(summary)
}

func (s *Server) handleRunTests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	project, _ := args["project"].(string)
	if project == "" {
		return mcp.NewToolResultError("project is required"), nil
	}
	command, _ := args["command"].(string)

	projectStore, err := store.New(project)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := testrun.NewRunner(projectStore).Run(ctx, command)
	return jsonResult(result)
}

func (s *Server) handleSecurityScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	project, _ := args["project"].(string)
	if project == "" {
		return mcp.NewToolResultError("project is required"), nil
	}

	projectStore, err := store.New(project)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report := security.NewScanner(projectStore).Scan()
	return jsonResult(report)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
