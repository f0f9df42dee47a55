package security

import "regexp"

// Severity classifies a finding.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Rule is one declarative scan rule. Kinds limits the rule to file
// extensions (without dot); an empty Kinds list applies everywhere.
type Rule struct {
	Name      string
	Severity  Severity
	Pattern   *regexp.Regexp
	Rationale string
	Kinds     []string
}

var scriptKinds = []string{"py", "js", "ts", "rb", "php", "go", "java"}

// defaultRules is the built-in battery. Extending the scanner means
// appending a row here or passing extra rules to NewScanner.
var defaultRules = []Rule{
	{
		Name:      "hardcoded_password",
		Severity:  SeverityCritical,
		Pattern:   regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*["'][^"']+["']`),
		Rationale: "Hard-coded passwords ship secrets with the source and cannot be rotated.",
	},
	{
		Name:      "hardcoded_api_key",
		Severity:  SeverityCritical,
		Pattern:   regexp.MustCompile(`(?i)\bapi_?key\s*[:=]\s*["'][^"']+["']`),
		Rationale: "API keys in source leak through version control and logs.",
	},
	{
		Name:      "hardcoded_secret",
		Severity:  SeverityHigh,
		Pattern:   regexp.MustCompile(`(?i)\bsecret(_key)?\s*[:=]\s*["'][^"']+["']`),
		Rationale: "Secrets belong in the environment or a vault, not in code.",
	},
	{
		Name:      "dynamic_code_execution",
		Severity:  SeverityHigh,
		Pattern:   regexp.MustCompile(`\b(eval|exec)\s*\(`),
		Rationale: "eval/exec on any input that can be influenced leads to code injection.",
		Kinds:     []string{"py", "js", "ts", "rb", "php"},
	},
	{
		Name:      "shell_injection",
		Severity:  SeverityHigh,
		Pattern:   regexp.MustCompile(`(os\.system|subprocess\.(call|run|Popen))\s*\([^)]*(\+|%|\bformat\b|f["'])`),
		Rationale: "Shell commands built from interpolated strings allow command injection.",
		Kinds:     []string{"py"},
	},
	{
		Name:      "shell_true",
		Severity:  SeverityMedium,
		Pattern:   regexp.MustCompile(`shell\s*=\s*True`),
		Rationale: "shell=True hands the argument string to a shell, widening the injection surface.",
		Kinds:     []string{"py"},
	},
	{
		Name:      "weak_random",
		Severity:  SeverityMedium,
		Pattern:   regexp.MustCompile(`\b(random\.(random|randint|choice)|Math\.random)\s*\(`),
		Rationale: "Non-cryptographic RNGs are predictable; use a CSPRNG for tokens and secrets.",
		Kinds:     scriptKinds,
	},
	{
		Name:      "path_traversal",
		Severity:  SeverityHigh,
		Pattern:   regexp.MustCompile(`(open|os\.path\.join|readFile(Sync)?)\s*\([^)]*(request\.|req\.|input\(|argv)`),
		Rationale: "File paths derived from user input can escape the intended directory.",
		Kinds:     []string{"py", "js", "ts"},
	},
	{
		Name:      "sql_concatenation",
		Severity:  SeverityHigh,
		Pattern:   regexp.MustCompile(`(?i)(execute|query)\s*\(\s*["'][^"']*(SELECT|INSERT|UPDATE|DELETE)[^"']*["']\s*(\+|%|\.format)`),
		Rationale: "SQL assembled by string concatenation invites injection; use parameters.",
	},
	{
		Name:      "unsafe_html_sink",
		Severity:  SeverityMedium,
		Pattern:   regexp.MustCompile(`(innerHTML\s*=|document\.write\s*\()`),
		Rationale: "Writing unsanitized strings into the DOM enables cross-site scripting.",
		Kinds:     []string{"js", "ts", "html"},
	},
}
