package security

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scanHTML parses an authored HTML file and flags script-injection
// vectors that line-oriented regexes miss: inline event handlers,
// javascript: URLs, and inline scripts calling eval. Parse failures are
// logged and skipped; generated HTML is frequently malformed.
func scanHTML(file, content string) []Finding {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		log.Printf("[security] html parse failed for %s: %v", file, err)
		return nil
	}

	var findings []Finding
	add := func(kind string, severity Severity, snippet, rationale string) {
		findings = append(findings, Finding{
			Kind:      kind,
			Severity:  severity,
			File:      file,
			Line:      lineOf(content, snippet),
			Snippet:   trimSnippet(snippet),
			Rationale: rationale,
		})
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range sel.Nodes[0].Attr {
			if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
				add("inline_event_handler", SeverityMedium,
					attr.Key+`="`+attr.Val+`"`,
					"Inline event handlers execute string-sourced script and defeat CSP.")
			}
		}
	})

	doc.Find("a[href], iframe[src], form[action]").Each(func(_ int, sel *goquery.Selection) {
		for _, key := range []string{"href", "src", "action"} {
			if v, ok := sel.Attr(key); ok && strings.HasPrefix(strings.TrimSpace(strings.ToLower(v)), "javascript:") {
				add("javascript_url", SeverityMedium, key+`="`+v+`"`,
					"javascript: URLs execute arbitrary script on navigation.")
			}
		}
	})

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, external := sel.Attr("src"); external {
			return
		}
		body := sel.Text()
		if strings.Contains(body, "eval(") {
			add("inline_script_eval", SeverityHigh, firstLineWith(body, "eval("),
				"eval in inline scripts executes attacker-influenced strings.")
		}
	})

	return findings
}

func lineOf(content, needle string) int {
	if idx := strings.Index(content, needle); idx >= 0 {
		return 1 + strings.Count(content[:idx], "\n")
	}
	return 1
}

func firstLineWith(body, needle string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(line, needle) {
			return strings.TrimSpace(line)
		}
	}
	return needle
}

func trimSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
