package orchestrate

import "strings"

// DeriveProjectName turns a task description into a filesystem-friendly
// project directory name: lowercased, runs of non-alphanumerics become
// single underscores, truncated to 50 characters.
func DeriveProjectName(task string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(task)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if len(name) > 50 {
		name = strings.Trim(name[:50], "_")
	}
	if name == "" {
		name = "project"
	}
	return name
}
