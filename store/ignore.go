package store

import (
	"path/filepath"
	"strings"
)

// System noise that agents must never observe. Paths matching any of
// these are invisible to listings and rejected as write targets.
var (
	ignoredNames = map[string]bool{
		".DS_Store":       true,
		".DS_Store?":      true,
		"Thumbs.db":       true,
		"ehthumbs.db":     true,
		".Spotlight-V100": true,
		".Trashes":        true,
		"desktop.ini":     true,
	}

	ignoredDirs = map[string]bool{
		".git":          true,
		"__pycache__":   true,
		"node_modules":  true,
		".pytest_cache": true,
		".mypy_cache":   true,
		".tox":          true,
		"venv":          true,
		".venv":         true,
		"env":           true,
	}
)

// IgnoredPath reports whether a project-relative path is filtered from
// every agent-visible listing. Any matching segment poisons the whole path.
func IgnoredPath(path string) bool {
	path = filepath.ToSlash(strings.TrimSpace(path))
	if path == "" {
		return false
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if ignoredNames[seg] || ignoredDirs[seg] {
			return true
		}
		if strings.HasPrefix(seg, "._") {
			return true
		}
		if strings.HasSuffix(seg, ".backup") {
			return true
		}
	}

	return false
}
