package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"surfacecheck/internal/executor"
	"surfacecheck/internal/mapping"
	"surfacecheck/internal/retrieval"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Started by go.opencensus.io's package init (transitive dep), not by store code.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "surfacecheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestIndexRoundTrip(t *testing.T) {
	s := openTestStore(t)
	entries := []retrieval.Entry{
		{
			ID: "e-1", SourceLabel: "export:products.tsv",
			Rows:         []retrieval.Row{{"color": "Red"}, {"color": "Blue"}},
			RenderedText: "color: Red\ncolor: Blue",
			Embedding:    []float32{0.25, -1, 3.5},
		},
		{
			ID: "e-2", SourceLabel: "exploration:#color",
			Rows:         []retrieval.Row{{"record": "ui_control", "label": "Color"}},
			RenderedText: "label: Color; record: ui_control",
			Embedding:    []float32{1, 0, 0},
		},
	}

	require.NoError(t, s.SaveIndex(entries))

	loaded, err := s.LoadIndex()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	byID := map[string]retrieval.Entry{loaded[0].ID: loaded[0], loaded[1].ID: loaded[1]}
	assert.Equal(t, entries[0].Rows, byID["e-1"].Rows)
	assert.Equal(t, entries[0].Embedding, byID["e-1"].Embedding)
	assert.Equal(t, "exploration:#color", byID["e-2"].SourceLabel)
}

func TestSaveIndexReplacesSnapshot(t *testing.T) {
	s := openTestStore(t)
	first := []retrieval.Entry{{ID: "old", SourceLabel: "a", Rows: []retrieval.Row{{"x": "1"}}, Embedding: []float32{1}}}
	second := []retrieval.Entry{{ID: "new", SourceLabel: "b", Rows: []retrieval.Row{{"y": "2"}}, Embedding: []float32{2}}}

	require.NoError(t, s.SaveIndex(first))
	require.NoError(t, s.SaveIndex(second))

	loaded, err := s.LoadIndex()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].ID)
}

func TestTestSpecQueries(t *testing.T) {
	s := openTestStore(t)
	tests := []mapping.TestSpecification{
		{ID: "t-1", Kind: mapping.KindFilter, Priority: "high", TargetField: "color", TargetSelector: "#color", TestValues: []string{"Red"}},
		{ID: "t-2", Kind: mapping.KindSearch, Priority: "low", TargetField: "name", TargetSelector: "#q", TestValues: []string{"Alice"}},
	}
	require.NoError(t, s.SaveTests(tests))

	got, err := s.TestByID("t-1")
	require.NoError(t, err)
	assert.Equal(t, mapping.KindFilter, got.Kind)
	assert.Equal(t, []string{"Red"}, got.TestValues)

	_, err = s.TestByID("t-404")
	assert.Error(t, err)

	byKind, err := s.TestsByKind(mapping.KindSearch)
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "t-2", byKind[0].ID)

	byPriority, err := s.TestsByPriority("high")
	require.NoError(t, err)
	require.Len(t, byPriority, 1)
	assert.Equal(t, "t-1", byPriority[0].ID)

	all, err := s.AllTests()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	run := executor.NewTestRun()
	run.Append(executor.TestOutcome{TestID: "t-1", Status: executor.StatusPassed})
	run.Append(executor.TestOutcome{TestID: "t-2", Status: executor.StatusError, Reason: "session lost"})
	run.Seal()

	require.NoError(t, s.SaveRun(run))

	loaded, err := s.RunByID(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, loaded.RunID)
	assert.Equal(t, 1, loaded.Passed)
	assert.Equal(t, 1, loaded.Errors)
	require.Len(t, loaded.Outcomes, 2)

	errored, err := s.OutcomesByStatus(run.RunID, executor.StatusError)
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.Equal(t, "t-2", errored[0].TestID)
	assert.Equal(t, "session lost", errored[0].Reason)
}

func TestLatestRun(t *testing.T) {
	s := openTestStore(t)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest, "empty store has no latest run")

	older := executor.NewTestRun()
	older.StartedAt = time.Now().Add(-time.Hour)
	older.Seal()
	newer := executor.NewTestRun()
	newer.Seal()
	require.NoError(t, s.SaveRun(older))
	require.NoError(t, s.SaveRun(newer))

	latest, err = s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.RunID, latest.RunID)
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3e7}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
