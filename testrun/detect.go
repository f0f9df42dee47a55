package testrun

import (
	"path"
	"strings"

	"forge/store"
)

// Framework names, also used verbatim in Result.Framework.
const (
	FrameworkPytest = "pytest"
	FrameworkGo     = "go"
	FrameworkCargo  = "cargo"
	FrameworkMaven  = "maven"
	FrameworkGradle = "gradle"
	FrameworkNpm    = "npm"
)

var frameworkCommands = map[string][]string{
	FrameworkPytest: {"python", "-m", "pytest", "-v"},
	FrameworkGo:     {"go", "test", "./..."},
	FrameworkCargo:  {"cargo", "test"},
	FrameworkMaven:  {"mvn", "test"},
	FrameworkGradle: {"gradle", "test"},
	FrameworkNpm:    {"npm", "test"},
}

// Detect inspects the project and picks a test framework. Root
// configuration files win over test-file naming patterns; first match
// in priority order is used. All file visibility goes through the
// store, so ignored paths never influence detection.
func Detect(s *store.Store) (framework string, command []string, ok bool) {
	files, err := s.List()
	if err != nil {
		return "", nil, false
	}

	rootFiles := map[string]bool{}
	for _, f := range files {
		if !strings.Contains(f, "/") {
			rootFiles[f] = true
		}
	}

	switch {
	case rootFiles["pytest.ini"], rootFiles["conftest.py"], rootFiles["tox.ini"]:
		return FrameworkPytest, frameworkCommands[FrameworkPytest], true
	case rootFiles["pyproject.toml"] && hasPythonTests(files):
		return FrameworkPytest, frameworkCommands[FrameworkPytest], true
	case rootFiles["Cargo.toml"]:
		return FrameworkCargo, frameworkCommands[FrameworkCargo], true
	case rootFiles["go.mod"]:
		return FrameworkGo, frameworkCommands[FrameworkGo], true
	case rootFiles["pom.xml"]:
		return FrameworkMaven, frameworkCommands[FrameworkMaven], true
	case rootFiles["build.gradle"], rootFiles["build.gradle.kts"]:
		return FrameworkGradle, frameworkCommands[FrameworkGradle], true
	case rootFiles["package.json"] && packageJSONHasTestScript(s):
		return FrameworkNpm, frameworkCommands[FrameworkNpm], true
	}

	// No framework config: fall back to test-file naming conventions.
	for _, f := range files {
		base := path.Base(f)
		switch {
		case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
			return FrameworkPytest, frameworkCommands[FrameworkPytest], true
		case strings.HasSuffix(base, "_test.go"):
			return FrameworkGo, frameworkCommands[FrameworkGo], true
		case strings.HasSuffix(base, ".test.js"), strings.HasSuffix(base, ".spec.js"):
			return FrameworkNpm, frameworkCommands[FrameworkNpm], true
		case strings.HasSuffix(base, "_test.rs"):
			return FrameworkCargo, frameworkCommands[FrameworkCargo], true
		}
	}

	return "", nil, false
}

func hasPythonTests(files []string) bool {
	for _, f := range files {
		base := path.Base(f)
		if strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py") {
			return true
		}
	}
	return false
}

func packageJSONHasTestScript(s *store.Store) bool {
	content, err := s.Read("package.json")
	if err != nil {
		return false
	}
	return strings.Contains(content, `"test"`)
}
