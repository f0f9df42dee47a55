package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/orchestrate"
	"forge/security"
	"forge/testrun"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id string, success bool) *orchestrate.Result {
	test := testrun.Result{Success: success, TotalTests: 3, Passed: 3, Errors: []string{}, Failures: []testrun.Failure{}}
	return &orchestrate.Result{
		WorkflowID:  id,
		Task:        "build a calculator",
		ProjectPath: "/tmp/calc",
		Files:       []string{"calc.py", "test_calc.py"},
		Iterations: []orchestrate.IterationRecord{
			{Index: 0, Turns: []orchestrate.AgentTurn{{Agent: "Backend Developer", CompletionSignal: false}}},
			{Index: 1, Turns: []orchestrate.AgentTurn{{Agent: "Backend Developer", CompletionSignal: true}}, TestResult: &test},
		},
		FinalTest: &test,
		Security:  &security.Report{Total: 1, BySeverity: map[security.Severity]int{security.SeverityHigh: 1}},
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Record(sampleResult("wf-1", true)))
	require.NoError(t, s.Record(sampleResult("wf-2", false)))

	entries, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "wf-2", entries[0].ID)
	assert.Equal(t, 2, entries[0].Iterations)
	assert.Equal(t, 2, entries[0].Files)
	assert.False(t, entries[0].TestSuccess)
	assert.True(t, entries[1].TestSuccess)
	assert.Equal(t, 1, entries[1].Findings)
}

func TestIterationRecordsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(sampleResult("wf-1", true)))

	records, err := s.IterationRecords("wf-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, 1, records[1].Index)
	require.NotNil(t, records[1].TestResult)
	assert.True(t, records[1].TestResult.Success)
	assert.Equal(t, 1.0, records[1].CompletionRatio())
}

func TestRecordIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	result := sampleResult("wf-1", true)
	require.NoError(t, s.Record(result))
	require.NoError(t, s.Record(result))

	entries, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecentEmpty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
