package ops

import (
	"fmt"
	"regexp"
	"strings"

	"forge/store"
)

// OpKind discriminates the file operation variants.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpRead   OpKind = "read"
)

// FileOp is a structured file operation extracted from an agent reply.
// Paths are project-relative and already sanitized.
type FileOp struct {
	Kind    OpKind
	Path    string
	Content string
}

// ParsedReply is the result of parsing one agent reply.
type ParsedReply struct {
	Ops      []FileOp
	Complete bool
	Warnings []string
}

// completionPhrases is the closed set of signals an agent can use to
// declare the project finished. Matched as lowercase substrings.
var completionPhrases = []string{
	"project is complete",
	"all requirements met",
	"all requirements have been met",
	"ready for deployment",
	"no further improvements needed",
	"implementation is complete",
	"all tests pass and the project is finished",
}

var directiveRe = regexp.MustCompile(`^(filename|update|read)\s*:\s*(.+)$`)

// fence is one triple-backtick block: the info string from the opening
// line plus the body up to the closing line.
type fence struct {
	info string
	body string
}

// splitFences performs greedy, non-nesting fence matching: an opening
// ``` line consumes everything until the next ``` line. An unterminated
// final fence keeps its body; model output is routinely imbalanced.
func splitFences(reply string) []fence {
	var fences []fence
	lines := strings.Split(reply, "\n")
	inFence := false
	var current fence
	var body []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			// Self-contained fence on one line, e.g. ```read: main.py```
			if !inFence {
				inner := strings.TrimPrefix(trimmed, "```")
				if idx := strings.Index(inner, "```"); idx >= 0 {
					if info := strings.TrimSpace(inner[:idx]); info != "" {
						fences = append(fences, fence{info: info})
					}
					continue
				}
			}
			if inFence {
				current.body = strings.Join(body, "\n")
				fences = append(fences, current)
				inFence = false
				// A closing line carrying its own info string opens the
				// next fence, otherwise runs of blocks would desync.
				if info := strings.TrimSpace(strings.TrimPrefix(trimmed, "```")); info != "" && looksLikeDirective(info) {
					inFence = true
					current = fence{info: info}
					body = nil
				}
				continue
			}
			inFence = true
			current = fence{info: strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))}
			body = nil
			continue
		}
		if inFence {
			body = append(body, line)
		}
	}
	if inFence {
		current.body = strings.Join(body, "\n")
		fences = append(fences, current)
	}
	return fences
}

func looksLikeDirective(info string) bool {
	return directiveRe.MatchString(info)
}

// ParseReply extracts file operations and the completion signal from a
// free-form agent reply. Malformed directives are dropped with a warning;
// parsing never fails.
func ParseReply(reply string) ParsedReply {
	parsed := ParsedReply{Complete: detectCompletion(reply)}
	fences := splitFences(reply)

	for i := 0; i < len(fences); i++ {
		f := fences[i]
		m := directiveRe.FindStringSubmatch(f.info)
		if m == nil {
			// Plain content fence with no preceding directive: recorded
			// but has no side effect.
			continue
		}

		keyword, rawPath := m[1], m[2]
		path, err := store.SanitizePath(rawPath)
		if err != nil {
			parsed.Warnings = append(parsed.Warnings, fmt.Sprintf("dropped %s op: %v", keyword, err))
			continue
		}

		if keyword == "read" {
			parsed.Ops = append(parsed.Ops, FileOp{Kind: OpRead, Path: path})
			continue
		}

		kind := OpCreate
		if keyword == "update" {
			kind = OpUpdate
		}

		content := f.body
		if strings.TrimSpace(content) == "" {
			// Directive-only fence: the content is the next fence,
			// unless that fence is itself a directive.
			if i+1 < len(fences) && !looksLikeDirective(fences[i+1].info) {
				content = fences[i+1].body
				i++
			} else {
				parsed.Warnings = append(parsed.Warnings, fmt.Sprintf("dropped %s op for %s: no content block", keyword, path))
				continue
			}
		}
		if strings.TrimSpace(content) == "" {
			parsed.Warnings = append(parsed.Warnings, fmt.Sprintf("dropped %s op for %s: empty content", keyword, path))
			continue
		}

		parsed.Ops = append(parsed.Ops, FileOp{Kind: kind, Path: path, Content: content})
	}

	return parsed
}

func detectCompletion(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// FormatOp renders an operation back into its canonical fence form.
// ParseReply(FormatOp(op)) yields op for create and update operations.
func FormatOp(op FileOp) string {
	switch op.Kind {
	case OpRead:
		return fmt.Sprintf("```read: %s```\n", op.Path)
	case OpUpdate:
		return fmt.Sprintf("```update: %s\n%s\n```\n", op.Path, op.Content)
	default:
		return fmt.Sprintf("```filename: %s\n%s\n```\n", op.Path, op.Content)
	}
}
