package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"forge/llm"
)

// Complexity buckets a task by how much coordination it needs.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// TaskAnalysis is the structured classification of a task description,
// produced by the LLM classifier or the keyword fallback.
type TaskAnalysis struct {
	ProjectType         string     `json:"project_type"`
	Complexity          Complexity `json:"complexity"`
	Domains             []string   `json:"domains"`
	RequiresSecurity    bool       `json:"requires_security"`
	RequiresUI          bool       `json:"requires_ui"`
	RequiresTesting     bool       `json:"requires_testing"`
	RequiresDataScience bool       `json:"requires_data_science"`
	EstimatedTeamSize   int        `json:"estimated_team_size"`
}

func (a *TaskAnalysis) hasDomain(names ...string) bool {
	for _, d := range a.Domains {
		for _, n := range names {
			if d == n {
				return true
			}
		}
	}
	return false
}

// TeamBuilder sizes and orders an agent team for a task.
type TeamBuilder struct {
	client llm.Client
}

// NewTeamBuilder creates a team builder using the given completion client
// for classification. A nil client skips straight to the keyword fallback.
func NewTeamBuilder(client llm.Client) *TeamBuilder {
	return &TeamBuilder{client: client}
}

const classifierPrompt = `Analyze the software task below and respond with ONLY a JSON object:
{
  "project_type": "<short label>",
  "complexity": "simple" | "medium" | "complex",
  "domains": ["frontend", "backend", "database", "security", "data_science", "mobile", "devops", "testing"],
  "requires_security": bool,
  "requires_ui": bool,
  "requires_testing": bool,
  "requires_data_science": bool,
  "estimated_team_size": 1-8
}

Task:
`

// Analyze classifies the task, preferring the LLM and falling back to
// deterministic keyword matching on any failure.
func (b *TeamBuilder) Analyze(ctx context.Context, task string) TaskAnalysis {
	if b.client != nil {
		if analysis, err := b.analyzeLLM(ctx, task); err == nil {
			return analysis
		} else {
			log.Printf("[team] classifier call failed, using keyword fallback: %v", err)
		}
	}
	return keywordAnalysis(task)
}

func (b *TeamBuilder) analyzeLLM(ctx context.Context, task string) (TaskAnalysis, error) {
	resp, err := b.client.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You classify software tasks. Respond with JSON only."},
			{Role: "user", Content: classifierPrompt + task},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return TaskAnalysis{}, err
	}

	raw := resp.Content
	// Models wrap JSON in prose and fences; take the outermost braces.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return TaskAnalysis{}, fmt.Errorf("no JSON object in classifier reply")
	}

	var analysis TaskAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return TaskAnalysis{}, fmt.Errorf("invalid classifier JSON: %w", err)
	}
	switch analysis.Complexity {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
	default:
		return TaskAnalysis{}, fmt.Errorf("invalid complexity %q", analysis.Complexity)
	}
	if analysis.EstimatedTeamSize < 0 || analysis.EstimatedTeamSize > 8 {
		return TaskAnalysis{}, fmt.Errorf("team size %d out of range", analysis.EstimatedTeamSize)
	}
	if analysis.EstimatedTeamSize == 0 {
		analysis.EstimatedTeamSize = 1
	}
	return analysis, nil
}

// keywordAnalysis is the deterministic classifier used when the endpoint
// is unavailable or returns garbage.
func keywordAnalysis(task string) TaskAnalysis {
	lower := strings.ToLower(task)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	analysis := TaskAnalysis{
		ProjectType:     "general",
		Complexity:      ComplexitySimple,
		RequiresTesting: !contains("prototype", "no tests"),
	}

	if contains("api", "server", "backend", "database", "db", "sql", "rest", "endpoint", "function", "library", "script", "cli") {
		analysis.Domains = append(analysis.Domains, "backend")
	}
	if contains("ui", "frontend", "web page", "website", "html", "css", "react", "interface", "dashboard") {
		analysis.Domains = append(analysis.Domains, "frontend")
		analysis.RequiresUI = true
	}
	if contains("database", "sql", "postgres", "sqlite", "mongo") {
		analysis.Domains = append(analysis.Domains, "database")
	}
	if contains("auth", "login", "password", "secure", "security", "encrypt", "payment") {
		analysis.Domains = append(analysis.Domains, "security")
		analysis.RequiresSecurity = true
	}
	if contains("machine learning", "ml model", "data analysis", "analytics", "prediction", "statistics") {
		analysis.Domains = append(analysis.Domains, "data_science")
		analysis.RequiresDataScience = true
	}
	if contains("mobile", "android", "ios") {
		analysis.Domains = append(analysis.Domains, "mobile")
	}
	if contains("deploy", "docker", "kubernetes", "ci/cd", "pipeline") {
		analysis.Domains = append(analysis.Domains, "devops")
	}
	if len(analysis.Domains) == 0 {
		analysis.Domains = []string{"backend"}
	}

	wordCount := len(strings.Fields(task))
	domainCount := len(analysis.Domains)
	switch {
	case domainCount >= 3 || wordCount > 80:
		analysis.Complexity = ComplexityComplex
	case domainCount == 2 || wordCount > 25:
		analysis.Complexity = ComplexityMedium
	}

	size := 2
	switch analysis.Complexity {
	case ComplexityMedium:
		size = 4
	case ComplexityComplex:
		size = 6
	}
	if analysis.RequiresSecurity {
		size++
	}
	if analysis.RequiresDataScience {
		size++
	}
	if size > 8 {
		size = 8
	}
	analysis.EstimatedTeamSize = size

	return analysis
}

// Build analyzes the task and composes an ordered team. maxSize <= 0
// means uncapped.
func (b *TeamBuilder) Build(ctx context.Context, task string, client llm.Client, maxSize int) []*Agent {
	analysis := b.Analyze(ctx, task)
	roles := composeRoles(task, analysis)
	roles = capRoles(roles, maxSize)
	sortExecutionOrder(roles)

	team := make([]*Agent, 0, len(roles))
	for _, r := range roles {
		team = append(team, New(r, "", client))
	}
	return team
}

func composeRoles(task string, analysis TaskAnalysis) []Role {
	lower := strings.ToLower(task)
	set := map[Role]bool{}
	add := func(r Role) { set[r] = true }

	optOutTests := strings.Contains(lower, "prototype") || strings.Contains(lower, "no tests")

	primaryDev := RoleBackendDev
	if !analysis.hasDomain("backend", "database") && analysis.hasDomain("frontend", "ui", "mobile") {
		primaryDev = RoleFrontendDev
	}

	// Minimal team for genuinely small tasks.
	if analysis.Complexity == ComplexitySimple && analysis.EstimatedTeamSize <= 2 {
		add(primaryDev)
		if analysis.RequiresTesting && !optOutTests {
			add(RoleQATester)
		}
		return keys(set)
	}

	if analysis.EstimatedTeamSize >= 3 {
		add(RoleLeadDeveloper)
	}
	if analysis.EstimatedTeamSize >= 5 {
		add(RoleProductManager)
	}
	if analysis.hasDomain("backend", "database", "api") {
		add(RoleBackendDev)
	}
	if analysis.hasDomain("frontend", "ui") {
		add(RoleFrontendDev)
	}
	if analysis.hasDomain("mobile") {
		add(RoleFrontendDev)
	}
	if analysis.RequiresSecurity {
		add(RoleSecurity)
	}
	if analysis.RequiresDataScience {
		add(RoleDataScientist)
	}
	if analysis.RequiresUI && analysis.Complexity != ComplexitySimple {
		add(RoleDesigner)
	}
	if strings.Contains(lower, "deploy") || strings.Contains(lower, "docker") ||
		strings.Contains(lower, "kubernetes") || analysis.hasDomain("devops") {
		add(RoleDevOps)
	}
	if !optOutTests {
		add(RoleQATester)
	}

	// A team with no developer cannot author code.
	if !set[RoleBackendDev] && !set[RoleFrontendDev] {
		add(primaryDev)
	}

	return keys(set)
}

// capDropOrder lists roles in the order they are sacrificed when the
// team exceeds maxSize: support roles first, then specialists, then
// management. Lead, QA and the primary domain developer survive while
// any of these remain.
var capDropOrder = []Role{
	RoleDevOps,
	RoleDesigner,
	RoleTechWriter,
	RoleDataScientist,
	RoleSecurity,
	RoleCEO,
	RoleProductManager,
}

func capRoles(roles []Role, maxSize int) []Role {
	if maxSize <= 0 || len(roles) <= maxSize {
		return roles
	}

	set := map[Role]bool{}
	for _, r := range roles {
		set[r] = true
	}

	for _, victim := range capDropOrder {
		if len(set) <= maxSize {
			break
		}
		delete(set, victim)
	}

	// Still too big: shed the secondary domain developer.
	if len(set) > maxSize && set[RoleBackendDev] && set[RoleFrontendDev] {
		delete(set, RoleFrontendDev)
	}

	return keys(set)
}

func keys(set map[Role]bool) []Role {
	out := make([]Role, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	return out
}

func sortExecutionOrder(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		return ProfileFor(roles[i]).order < ProfileFor(roles[j]).order
	})
}
