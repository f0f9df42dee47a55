package testrun

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pytestStatusRe = regexp.MustCompile(`^(\S+)\s+(PASSED|FAILED|ERROR)\b`)
	summaryPassRe  = regexp.MustCompile(`(\d+) passed`)
	summaryFailRe  = regexp.MustCompile(`(\d+) failed`)
	unittestOKRe   = regexp.MustCompile(`^OK\b`)
	unittestFailRe = regexp.MustCompile(`FAILED \((?:failures|errors)=(\d+)`)
	unittestRanRe  = regexp.MustCompile(`^Ran (\d+) tests?`)
)

// parseOutput converts raw test output into a Result. Success is left
// for the caller, which also knows the process exit status.
func parseOutput(framework, stdout, stderr string) Result {
	result := newResult(framework)
	result.Stdout = stdout
	result.Stderr = stderr

	switch framework {
	case FrameworkPytest:
		parsePytest(&result, stdout)
	default:
		parseGeneric(&result, stdout+"\n"+stderr)
	}

	result.TotalTests = result.Passed + result.Failed
	return result
}

// parsePytest counts PASSED/FAILED status lines. Each FAILED line yields
// a failure whose error text is the contiguous indented block that
// follows, up to the next top-level line. The final summary line wins
// when it reports more than the status lines did (quiet runs).
func parsePytest(result *Result, out string) {
	lines := strings.Split(out, "\n")
	for i := 0; i < len(lines); i++ {
		m := pytestStatusRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		switch m[2] {
		case "PASSED":
			result.Passed++
		case "FAILED", "ERROR":
			result.Failed++
			var block []string
			for j := i + 1; j < len(lines); j++ {
				if !failureDetailLine(lines[j]) {
					break
				}
				block = append(block, lines[j])
			}
			result.Failures = append(result.Failures, Failure{
				Test:  m[1],
				Error: strings.TrimRight(strings.Join(block, "\n"), "\n"),
			})
		}
	}

	if m := summaryPassRe.FindStringSubmatch(out); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > result.Passed {
			result.Passed = n
		}
	}
	if m := summaryFailRe.FindStringSubmatch(out); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > result.Failed {
			result.Failed = n
		}
	}
}

// failureDetailLine reports whether a line belongs to the indented
// detail block under a FAILED status line. pytest prefixes source and
// exception lines with ">" and "E" at the margin, so those count too.
func failureDetailLine(line string) bool {
	if line == "" {
		return true
	}
	switch line[0] {
	case ' ', '\t', '>':
		return true
	case 'E':
		return len(line) > 1 && (line[1] == ' ' || line[1] == '\t')
	}
	return false
}

// parseGeneric recognizes the summary phrases that most runners print.
// When nothing matches, counts stay zero and the caller derives success
// from the exit code alone.
func parseGeneric(result *Result, out string) {
	if m := summaryPassRe.FindStringSubmatch(out); m != nil {
		result.Passed, _ = strconv.Atoi(m[1])
	}
	if m := summaryFailRe.FindStringSubmatch(out); m != nil {
		result.Failed, _ = strconv.Atoi(m[1])
	}
	if m := unittestFailRe.FindStringSubmatch(out); m != nil {
		result.Failed, _ = strconv.Atoi(m[1])
	}

	for _, line := range strings.Split(out, "\n") {
		if m := unittestRanRe.FindStringSubmatch(line); m != nil {
			total, _ := strconv.Atoi(m[1])
			if unittestOKRe.MatchString(out) || strings.Contains(out, "\nOK") {
				result.Passed = total - result.Failed
			} else if total > result.Passed+result.Failed {
				result.Passed = total - result.Failed
			}
		}
		// go test style failure markers.
		if strings.HasPrefix(line, "--- FAIL: ") {
			name := strings.Fields(strings.TrimPrefix(line, "--- FAIL: "))
			if len(name) > 0 {
				result.Failures = append(result.Failures, Failure{Test: name[0]})
			}
		}
	}
	if len(result.Failures) > result.Failed {
		result.Failed = len(result.Failures)
	}
}
