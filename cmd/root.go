package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"forge/agent"
	"forge/audit"
	"forge/config"
	"forge/history"
	"forge/llm"
	"forge/orchestrate"
	"forge/store"
)

var (
	flagConfig        string
	flagName          string
	flagOutput        string
	flagIterations    int
	flagMinIterations int
	flagNoAutoStop    bool
	flagAgents        []string
	flagNoAutoTeam    bool
	flagMaxTeamSize   int
	flagTestCommand   string
	flagNoTesting     bool
	flagNoReview      bool
	flagNoSecurity    bool
	flagTdd           bool
)

var rootCmd = &cobra.Command{
	Use:   "forge \"task description\"",
	Short: "Build a runnable software project with a team of LLM agents",
	Long: `Forge orchestrates a team of role-specialized language-model agents
that collaborate on a task: clarification, team composition, iterative
file authoring with peer review, test execution with repair, and a
security scan over the result.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runWorkflow,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&flagName, "name", "", "project directory name (derived from task when empty)")
	rootCmd.Flags().StringVar(&flagOutput, "output", "", "parent directory for generated projects")
	rootCmd.Flags().IntVar(&flagIterations, "iterations", 0, "maximum iterations (default 3)")
	rootCmd.Flags().IntVar(&flagMinIterations, "min-iterations", -1, "iterations before early stop is considered (default 2)")
	rootCmd.Flags().BoolVar(&flagNoAutoStop, "no-auto-stop", false, "disable completion-based early stop")
	rootCmd.Flags().StringArrayVar(&flagAgents, "agents", nil, "override team composition: ROLE[:NAME], repeatable")
	rootCmd.Flags().BoolVar(&flagNoAutoTeam, "no-auto-team", false, "skip task analysis; use the default 3-agent team")
	rootCmd.Flags().IntVar(&flagMaxTeamSize, "max-team-size", 0, "cap the team size")
	rootCmd.Flags().StringVar(&flagTestCommand, "test-command", "", "override test framework detection")
	rootCmd.Flags().BoolVar(&flagNoTesting, "no-testing", false, "disable test execution")
	rootCmd.Flags().BoolVar(&flagNoReview, "no-collaborative-review", false, "disable peer code review")
	rootCmd.Flags().BoolVar(&flagNoSecurity, "no-security-scan", false, "disable the final security scan")
	rootCmd.Flags().BoolVar(&flagTdd, "tdd", false, "use the RED/GREEN/REFACTOR loop")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mcpCmd)
}

// Execute runs the CLI. Agent failures never produce a non-zero exit;
// only unrecoverable I/O and configuration errors do.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(args[0])
	if task == "" {
		return fmt.Errorf("task must not be empty")
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	name := flagName
	if name == "" {
		name = orchestrate.DeriveProjectName(task)
	}
	projectStore, err := store.New(filepath.Join(cfg.Output.Dir, name))
	if err != nil {
		return err
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		if auditLog, err = audit.NewLogger(cfg.Audit.Path); err != nil {
			log.Printf("[forge] audit disabled: %v", err)
			auditLog = nil
		}
	}

	client := llm.NewOllamaClient(cfg.LLM)

	clarified := agent.NewClarifier(client).Clarify(cmd.Context(), task)
	team, err := buildTeam(cmd, cfg, clarified.Clarified, client)
	if err != nil {
		return err
	}
	fmt.Printf("Team: %s\n", teamNames(team))

	opts := orchestrate.DefaultOptions(clarified.Clarified, team, projectStore)
	opts.MaxIterations = cfg.Workflow.Iterations
	opts.MinIterations = cfg.Workflow.MinIterations
	opts.StopOnCompletion = !flagNoAutoStop && (cfg.Workflow.AutoStop == nil || *cfg.Workflow.AutoStop)
	opts.Testing = !flagNoTesting && (cfg.Workflow.Testing == nil || *cfg.Workflow.Testing)
	opts.Review = !flagNoReview && (cfg.Workflow.Review == nil || *cfg.Workflow.Review)
	opts.SecurityScan = !flagNoSecurity && (cfg.Workflow.SecurityScan == nil || *cfg.Workflow.SecurityScan)
	opts.TestCommand = cfg.Workflow.TestCommand
	opts.Audit = auditLog

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *orchestrate.Result
	if flagTdd {
		controller, err := orchestrate.NewTddController(opts)
		if err != nil {
			return err
		}
		result, err = controller.Run(ctx)
		if err != nil {
			log.Printf("[forge] workflow interrupted: %v", err)
		}
	} else {
		controller, err := orchestrate.NewController(opts)
		if err != nil {
			return err
		}
		result, err = controller.Run(ctx)
		if err != nil {
			log.Printf("[forge] workflow interrupted: %v", err)
		}
	}

	printSummary(result)
	recordHistory(cfg, result)
	return nil
}

// applyFlags lets explicit CLI flags override the loaded configuration.
func applyFlags(cfg *config.Config) {
	if flagOutput != "" {
		cfg.Output.Dir = flagOutput
	}
	if flagIterations >= 1 {
		cfg.Workflow.Iterations = flagIterations
	}
	if flagMinIterations >= 0 {
		cfg.Workflow.MinIterations = flagMinIterations
	}
	if flagMaxTeamSize > 0 {
		cfg.Workflow.MaxTeamSize = flagMaxTeamSize
	}
	if flagTestCommand != "" {
		cfg.Workflow.TestCommand = flagTestCommand
	}
}

// buildTeam resolves the three composition modes: explicit --agents,
// --no-auto-team's fixed trio, or the task-analyzing TeamBuilder.
func buildTeam(cmd *cobra.Command, cfg *config.Config, task string, client llm.Client) ([]*agent.Agent, error) {
	if len(flagAgents) > 0 {
		var team []*agent.Agent
		for _, spec := range flagAgents {
			rolePart, namePart, _ := strings.Cut(spec, ":")
			role, ok := agent.ParseRole(rolePart)
			if !ok {
				return nil, fmt.Errorf("unknown agent role %q", rolePart)
			}
			team = append(team, agent.New(role, strings.TrimSpace(namePart), client))
		}
		return team, nil
	}

	if flagNoAutoTeam {
		return []*agent.Agent{
			agent.New(agent.RoleLeadDeveloper, "", client),
			agent.New(agent.RoleBackendDev, "", client),
			agent.New(agent.RoleQATester, "", client),
		}, nil
	}

	return agent.NewTeamBuilder(client).Build(cmd.Context(), task, client, cfg.Workflow.MaxTeamSize), nil
}

func teamNames(team []*agent.Agent) string {
	names := make([]string, len(team))
	for i, member := range team {
		names[i] = member.Name
	}
	return strings.Join(names, ", ")
}

func printSummary(result *orchestrate.Result) {
	if result == nil {
		return
	}
	fmt.Printf("\nProject: %s\n", result.ProjectPath)
	fmt.Printf("Iterations: %d\n", len(result.Iterations))
	fmt.Printf("Files: %d\n", len(result.Files))
	for _, f := range result.Files {
		fmt.Printf("  %s\n", f)
	}
	if result.FinalTest != nil {
		status := "FAILING"
		if result.FinalTest.Success {
			status = "PASSING"
		}
		fmt.Printf("Tests: %s (%d passed, %d failed)\n", status, result.FinalTest.Passed, result.FinalTest.Failed)
	}
	if result.Security != nil {
		fmt.Printf("Security findings: %d\n", result.Security.Total)
		for _, finding := range result.Security.Findings {
			fmt.Printf("  [%s] %s %s:%d\n", finding.Severity, finding.Kind, finding.File, finding.Line)
		}
	}
}

func recordHistory(cfg *config.Config, result *orchestrate.Result) {
	if result == nil || !cfg.History.Enabled {
		return
	}
	db, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		log.Printf("[forge] history disabled: %v", err)
		return
	}
	defer db.Close()
	if err := db.Record(result); err != nil {
		log.Printf("[forge] recording history failed: %v", err)
	}
}
