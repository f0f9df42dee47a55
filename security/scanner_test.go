package security

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/store"
)

func newProject(t *testing.T, files map[string]string) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "proj"))
	require.NoError(t, err)
	for path, content := range files {
		require.NoError(t, s.Create(path, content))
	}
	return s
}

func findingsOfKind(report Report, kind string) []Finding {
	var out []Finding
	for _, f := range report.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestScanHardcodedPassword(t *testing.T) {
	s := newProject(t, map[string]string{
		"config.py": "DEBUG = True\npassword = \"admin123\"\n",
	})
	report := NewScanner(s).Scan()

	found := findingsOfKind(report, "hardcoded_password")
	require.Len(t, found, 1)
	assert.Equal(t, SeverityCritical, found[0].Severity)
	assert.Equal(t, "config.py", found[0].File)
	assert.Equal(t, 2, found[0].Line)
	assert.Contains(t, found[0].Snippet, "admin123")
	assert.Equal(t, 1, report.BySeverity[SeverityCritical])
}

func TestScanEvalAndWeakRandom(t *testing.T) {
	s := newProject(t, map[string]string{
		"app.py": "import random\ntoken = random.randint(0, 99)\nresult = eval(user_input)\n",
	})
	report := NewScanner(s).Scan()

	assert.Len(t, findingsOfKind(report, "dynamic_code_execution"), 1)
	assert.Len(t, findingsOfKind(report, "weak_random"), 1)
}

func TestScanSQLConcatenation(t *testing.T) {
	s := newProject(t, map[string]string{
		"db.py": `cursor.execute("SELECT * FROM users WHERE id = " + user_id)` + "\n",
	})
	report := NewScanner(s).Scan()
	assert.NotEmpty(t, findingsOfKind(report, "sql_concatenation"))
}

func TestScanShellInjection(t *testing.T) {
	s := newProject(t, map[string]string{
		"run.py": "import os\nos.system(\"rm -rf \" + path)\nsubprocess.run(cmd, shell=True)\n",
	})
	report := NewScanner(s).Scan()
	assert.NotEmpty(t, findingsOfKind(report, "shell_injection"))
	assert.NotEmpty(t, findingsOfKind(report, "shell_true"))
}

func TestScanSkipsNonSourceAndIgnoredFiles(t *testing.T) {
	s := newProject(t, map[string]string{
		"data.bin":  "password = \"hidden\"",
		"README.md": "password = \"documented\"",
		"app.py":    "x = 1\n",
	})
	// An ignored directory written straight to disk, bypassing the store.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "node_modules", "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "node_modules", "lib", "index.js"), []byte("eval(code)\n"), 0644))
	report := NewScanner(s).Scan()
	assert.Zero(t, report.Total)
}

func TestScanHTMLFindings(t *testing.T) {
	html := `<html><body>
<button onclick="steal()">hi</button>
<a href="javascript:alert(1)">link</a>
<script>var x = eval(payload);</script>
</body></html>`

	s := newProject(t, map[string]string{"index.html": html})
	report := NewScanner(s).Scan()

	assert.NotEmpty(t, findingsOfKind(report, "inline_event_handler"))
	assert.NotEmpty(t, findingsOfKind(report, "javascript_url"))
	assert.NotEmpty(t, findingsOfKind(report, "inline_script_eval"))
}

func TestScanExtraRule(t *testing.T) {
	extra := Rule{
		Name:      "todo_marker",
		Severity:  SeverityLow,
		Pattern:   regexp.MustCompile(`FIXME`),
		Rationale: "marker",
	}
	s := newProject(t, map[string]string{"main.py": "# FIXME handle error\n"})
	report := NewScanner(s, extra).Scan()
	assert.NotEmpty(t, findingsOfKind(report, "todo_marker"))
}

func TestScanEmptyProject(t *testing.T) {
	s := newProject(t, nil)
	report := NewScanner(s).Scan()
	assert.Zero(t, report.Total)
	assert.NotNil(t, report.Findings)
	assert.NotNil(t, report.BySeverity)
}
