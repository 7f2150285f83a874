package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfacecheck/internal/executor"
)

func sampleResult() executor.Result {
	run := executor.NewTestRun()
	run.Append(executor.TestOutcome{
		TestID: "t-1", Status: executor.StatusPassed,
		ObservedData: executor.ResultSet{Count: 2},
		ExpectedData: executor.ResultSet{Count: 2},
	})
	run.Append(executor.TestOutcome{
		TestID: "t-2", Status: executor.StatusFailed,
		Reason:       `value "Blue" on field "color": expected 1 results, observed 2`,
		ObservedData: executor.ResultSet{Count: 2},
		ExpectedData: executor.ResultSet{Count: 1},
	})
	run.Seal()
	return executor.Result{Success: true, RunID: run.RunID, Tests: 2, Run: run}
}

func TestWriteRun(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult()

	runDir, err := NewRenderer(dir).WriteRun(result)
	require.NoError(t, err)

	meta, err := os.ReadFile(filepath.Join(runDir, "metadata.json"))
	require.NoError(t, err)
	var decoded executor.Result
	require.NoError(t, json.Unmarshal(meta, &decoded))
	assert.Equal(t, result.RunID, decoded.RunID)
	assert.True(t, decoded.Success)

	for _, name := range []string{"test-t-1.json", "test-t-2.json", "summary.txt"} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, name)
	}
}

func TestSummary(t *testing.T) {
	result := sampleResult()

	summary := Summary(result.Run)

	assert.Contains(t, summary, "Total: 2  Passed: 1  Failed: 1")
	assert.Contains(t, summary, "[PASSED] t-1")
	assert.Contains(t, summary, "[FAILED] t-2")
	assert.Contains(t, summary, `expected 1 results, observed 2`)
	assert.Contains(t, summary, "observed 2 rows, expected 1 rows")
}

func TestWriteRunWithoutRun(t *testing.T) {
	dir := t.TempDir()

	runDir, err := NewRenderer(dir).WriteRun(executor.Result{Error: "learning phase timed out after 10m0s"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(runDir, "metadata.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(runDir, "summary.txt"))
	assert.True(t, os.IsNotExist(err), "no summary without a run")
}
