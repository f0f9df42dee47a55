package agent

import "strings"

// Role identifies a team member's specialization. The set is closed:
// new roles are added by extending the profile table, not by subclassing.
type Role string

const (
	RoleCEO            Role = "CEO"
	RoleProductManager Role = "ProductManager"
	RoleLeadDeveloper  Role = "LeadDeveloper"
	RoleBackendDev     Role = "BackendDeveloper"
	RoleFrontendDev    Role = "FrontendDeveloper"
	RoleQATester       Role = "QATester"
	RoleDevOps         Role = "DevOps"
	RoleDesigner       Role = "Designer"
	RoleSecurity       Role = "Security"
	RoleTechWriter     Role = "TechWriter"
	RoleDataScientist  Role = "DataScientist"
)

// Profile is the behavioral table entry for a role: prompt, sampling
// temperature, response contract and the critique rubric it applies when
// reviewing another agent's file.
type Profile struct {
	DisplayName  string
	SystemPrompt string
	Temperature  float64
	ReviewRubric string
	// order positions the role in the team's execution sequence.
	order int
}

const directiveContract = `
When you create or modify files, use exactly these forms:

To create a file, emit a fenced block whose first line names the file:
` + "```" + `filename: path/to/file.py
<complete file content>
` + "```" + `

To modify an existing file, emit the complete new content:
` + "```" + `update: path/to/file.py
<complete file content>
` + "```" + `

To request a file you have not seen:
` + "```" + `read: path/to/file.py` + "```" + `

Always provide whole files, never partial diffs. Code outside these
fences is ignored.`

var profiles = map[Role]Profile{
	RoleCEO: {
		DisplayName: "CEO",
		SystemPrompt: "You are the CEO of a software company. You set direction, weigh " +
			"trade-offs, and keep the team focused on shipping something that satisfies " +
			"the stated requirements. You do not write code yourself; you summarize " +
			"status and unblock decisions." + directiveContract,
		Temperature: 0.7,
		order:       0,
	},
	RoleProductManager: {
		DisplayName: "Product Manager",
		SystemPrompt: "You are a product manager. You translate the task into concrete, " +
			"testable requirements, call out gaps, and keep scope tight. When useful, " +
			"author README or requirements files." + directiveContract,
		Temperature: 0.6,
		order:       1,
	},
	RoleLeadDeveloper: {
		DisplayName: "Lead Developer",
		SystemPrompt: "You are the lead developer. You own the architecture: module layout, " +
			"interfaces between components, naming, and error handling strategy. You write " +
			"the foundational code other developers build on. Always emit complete runnable " +
			"files." + directiveContract,
		Temperature:  0.3,
		ReviewRubric: "Critique the architecture: module boundaries, coupling, naming, error handling, and whether the code fits the rest of the project.",
		order:        2,
	},
	RoleBackendDev: {
		DisplayName: "Backend Developer",
		SystemPrompt: "You are a backend developer. You implement server-side logic, data " +
			"models, persistence, and APIs. You write production-quality code with input " +
			"validation and explicit error handling. Always emit complete runnable files." +
			directiveContract,
		Temperature:  0.2,
		ReviewRubric: "Critique API design, data access, validation, performance, and failure handling.",
		order:        3,
	},
	RoleFrontendDev: {
		DisplayName: "Frontend Developer",
		SystemPrompt: "You are a frontend developer. You build user interfaces: markup, " +
			"styling, and client-side behavior. You care about usability, state management " +
			"and accessibility. Always emit complete runnable files." + directiveContract,
		Temperature:  0.3,
		ReviewRubric: "Critique UX flow, state management, accessibility, and client-side error states.",
		order:        4,
	},
	RoleSecurity: {
		DisplayName: "Security Expert",
		SystemPrompt: "You are a security engineer. You review and harden code: input " +
			"validation, authentication, secrets handling, injection, unsafe APIs. When you " +
			"fix an issue, emit the corrected file." + directiveContract,
		Temperature:  0.2,
		ReviewRubric: "Critique for OWASP-style vulnerabilities: injection, secrets in code, unsafe deserialization, weak crypto, missing validation.",
		order:        5,
	},
	RoleDataScientist: {
		DisplayName: "Data Scientist",
		SystemPrompt: "You are a data scientist. You design data processing, analysis and " +
			"model code, with attention to correctness of the math and reproducibility." +
			directiveContract,
		Temperature: 0.4,
		order:       6,
	},
	RoleDesigner: {
		DisplayName: "Designer",
		SystemPrompt: "You are a product designer. You specify layout, visual hierarchy and " +
			"interaction details, and contribute stylesheets or design documents." +
			directiveContract,
		Temperature: 0.8,
		order:       7,
	},
	RoleDevOps: {
		DisplayName: "DevOps Engineer",
		SystemPrompt: "You are a DevOps engineer. You write build scripts, dependency " +
			"manifests, container and CI configuration so the project runs outside the " +
			"authors' machines." + directiveContract,
		Temperature: 0.3,
		order:       8,
	},
	RoleQATester: {
		DisplayName: "QA Tester",
		SystemPrompt: "You are a QA engineer. You MUST respond with at least one test file " +
			"exercising the project's behavior, including edge cases. Use the project's " +
			"natural test framework (pytest for Python, go test for Go, jest for JS)." +
			directiveContract,
		Temperature:  0.2,
		ReviewRubric: "Critique testability: missing edge cases, untested failure paths, brittle assumptions.",
		order:        9,
	},
	RoleTechWriter: {
		DisplayName: "Tech Writer",
		SystemPrompt: "You are a technical writer. You produce the README and usage " +
			"documentation that make the project approachable." + directiveContract,
		Temperature: 0.6,
		order:       10,
	},
}

// ProfileFor returns the behavioral profile for a role. Unknown roles get
// a generic developer profile rather than failing; the controller treats
// the role set as closed but input parsing is forgiving.
func ProfileFor(role Role) Profile {
	if p, ok := profiles[role]; ok {
		return p
	}
	p := profiles[RoleBackendDev]
	p.DisplayName = string(role)
	return p
}

// ParseRole maps loose user input ("backend", "qa", "lead") onto the
// closed role set. Returns false for unrecognized names.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ceo":
		return RoleCEO, true
	case "productmanager", "product_manager", "product-manager", "pm":
		return RoleProductManager, true
	case "leaddeveloper", "lead_developer", "lead-developer", "lead":
		return RoleLeadDeveloper, true
	case "backenddeveloper", "backend_developer", "backend-developer", "backend":
		return RoleBackendDev, true
	case "frontenddeveloper", "frontend_developer", "frontend-developer", "frontend":
		return RoleFrontendDev, true
	case "qatester", "qa_tester", "qa-tester", "qa", "tester":
		return RoleQATester, true
	case "devops":
		return RoleDevOps, true
	case "designer":
		return RoleDesigner, true
	case "security", "securityexpert", "security_expert":
		return RoleSecurity, true
	case "techwriter", "tech_writer", "tech-writer":
		return RoleTechWriter, true
	case "datascientist", "data_scientist", "data-scientist":
		return RoleDataScientist, true
	}
	return "", false
}

// IsDeveloper reports whether a role authors code that goes through the
// review protocol and repair turns.
func (r Role) IsDeveloper() bool {
	return strings.HasSuffix(string(r), "Developer") || r == RoleSecurity || r == RoleQATester
}

// IsReviewer reports whether the role carries a critique rubric.
func (r Role) IsReviewer() bool {
	return ProfileFor(r).ReviewRubric != ""
}
