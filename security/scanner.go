package security

import (
	"log"
	"path"
	"strings"

	"forge/store"
)

// Finding is one matched vulnerability pattern.
type Finding struct {
	Kind      string   `json:"kind"`
	Severity  Severity `json:"severity"`
	File      string   `json:"file"`
	Line      int      `json:"line"`
	Snippet   string   `json:"snippet"`
	Rationale string   `json:"rationale"`
}

// Report aggregates a scan.
type Report struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	Findings   []Finding        `json:"findings"`
}

// scannableKinds are the file extensions the scanner reads at all.
var scannableKinds = map[string]bool{
	"py": true, "js": true, "ts": true, "go": true, "rb": true,
	"php": true, "java": true, "html": true, "sql": true, "sh": true,
	"yaml": true, "yml": true, "json": true, "env": true, "cfg": true,
	"ini": true, "toml": true,
}

// Scanner applies the rule table to every scannable project file.
type Scanner struct {
	store *store.Store
	rules []Rule
}

// NewScanner builds a scanner over the project store. Extra rules extend
// the default battery.
func NewScanner(s *store.Store, extra ...Rule) *Scanner {
	rules := make([]Rule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &Scanner{store: s, rules: rules}
}

// Scan walks all non-ignored files and applies every applicable rule.
// A rule that panics is skipped; a file that cannot be read is skipped.
// Scanning never fails the workflow.
func (sc *Scanner) Scan() Report {
	report := Report{
		BySeverity: map[Severity]int{},
		Findings:   []Finding{},
	}

	files, err := sc.store.List()
	if err != nil {
		log.Printf("[security] listing project failed: %v", err)
		return report
	}

	for _, file := range files {
		kind := strings.TrimPrefix(path.Ext(file), ".")
		if !scannableKinds[kind] {
			continue
		}
		content, err := sc.store.Read(file)
		if err != nil {
			continue
		}

		for _, rule := range sc.rules {
			findings := applyRule(rule, file, kind, content)
			report.Findings = append(report.Findings, findings...)
		}
		if kind == "html" {
			report.Findings = append(report.Findings, scanHTML(file, content)...)
		}
	}

	report.Total = len(report.Findings)
	for _, f := range report.Findings {
		report.BySeverity[f.Severity]++
	}
	return report
}

// applyRule matches one rule against one file. Recovery keeps a broken
// rule from taking the scan down; the rule is skipped for that file.
func applyRule(rule Rule, file, kind, content string) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[security] rule %s skipped: %v", rule.Name, r)
			findings = nil
		}
	}()

	if len(rule.Kinds) > 0 && !contains(rule.Kinds, kind) {
		return nil
	}

	for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
		line := 1 + strings.Count(content[:loc[0]], "\n")
		findings = append(findings, Finding{
			Kind:      rule.Name,
			Severity:  rule.Severity,
			File:      file,
			Line:      line,
			Snippet:   snippetAt(content, loc[0], loc[1]),
			Rationale: rule.Rationale,
		})
	}
	return findings
}

func snippetAt(content string, start, end int) string {
	lineStart := strings.LastIndex(content[:start], "\n") + 1
	lineEnd := strings.Index(content[end:], "\n")
	if lineEnd < 0 {
		lineEnd = len(content)
	} else {
		lineEnd += end
	}
	snippet := strings.TrimSpace(content[lineStart:lineEnd])
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return snippet
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
