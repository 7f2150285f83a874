package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfacecheck/internal/browser"
	"surfacecheck/internal/browser/browsertest"
	"surfacecheck/internal/config"
	"surfacecheck/internal/mapping"
	"surfacecheck/internal/retrieval"
)

// constEngine embeds everything onto the same vector, so every query hits.
type constEngine struct{}

func (constEngine) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (constEngine) Dimensions() int { return 3 }
func (constEngine) Name() string    { return "const-test" }

type scriptedLLM struct {
	responses []string
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptedLLM) CompleteWithSystem(context.Context, string, string) (string, error) {
	if len(s.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type recordingStore struct {
	indexEntries []retrieval.Entry
	tests        []mapping.TestSpecification
	runs         []*TestRun
	failOnIndex  bool
}

func (r *recordingStore) SaveIndex(entries []retrieval.Entry) error {
	if r.failOnIndex {
		return fmt.Errorf("disk full")
	}
	r.indexEntries = entries
	return nil
}

func (r *recordingStore) SaveTests(tests []mapping.TestSpecification) error {
	r.tests = tests
	return nil
}

func (r *recordingStore) SaveRun(run *TestRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.tsv")
	data := "name\tcolor\nAlice Lamp\tRed\nBob Chair\tBlue\nCarol Desk\tRed\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func pipelineConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Target.URL = "https://app.test/list"
	cfg.Target.ExportPath = writeExport(t)
	cfg.Explore.SampleSize = 1
	cfg.Explore.QuietMs = 1
	cfg.Explore.StabilizeTimeoutMs = 50
	cfg.Explore.FallbackSettleMs = 1
	cfg.Execution.ResultsTimeoutMs = 20
	return cfg
}

func pipelineBackend(t *testing.T) *browsertest.FakeBackend {
	t.Helper()
	fake := browsertest.NewFakeBackend("https://app.test/list")
	colorEl := browser.ElementInfo{
		Tag: "select", ID: "color", AriaLabel: "Color",
		Options: []string{"Red", "Blue"}, Visible: true,
	}
	fake.Elements["select"] = []browser.ElementInfo{colorEl}
	fake.Elements["#color"] = []browser.ElementInfo{colorEl}
	fake.Elements["body"] = []browser.ElementInfo{{Tag: "body", Visible: true}}
	fake.Elements[`[data-testid="result-count"]`] = []browser.ElementInfo{
		{Tag: "div", Text: "Showing 3 results", Visible: true},
	}

	rowsFor := map[string][]retrieval.Row{
		"Red":  {{"name": "Alice Lamp", "color": "Red"}, {"name": "Carol Desk", "color": "Red"}},
		"Blue": {{"name": "Bob Chair", "color": "Blue"}},
	}
	applied := ""
	fake.EvalFunc = func(js string) (json.RawMessage, error) {
		switch {
		case strings.Contains(js, "thead"):
			payload, err := json.Marshal(rowsFor[applied])
			require.NoError(t, err)
			return payload, nil
		case strings.Contains(js, "MutationObserver"):
			return json.RawMessage("true"), nil
		case strings.Contains(js, "__scMutations"):
			return json.RawMessage("0"), nil
		case strings.Contains(js, "querySelector"):
			if i := strings.Index(js, `const want = "`); i >= 0 {
				rest := js[i+len(`const want = "`):]
				applied = rest[:strings.IndexByte(rest, '"')]
			}
			return json.RawMessage(`{"ok":true}`), nil
		}
		return json.RawMessage("null"), nil
	}
	return fake
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := pipelineConfig(t)
	fake := pipelineBackend(t)
	llm := &scriptedLLM{responses: []string{
		`[{"data_field": "color", "control_label": "Color", "control_selector": "#color", "confidence": 0.9, "rationale": "options match values", "sample_values": ["Red", "Blue"]}]`,
		`[{"kind": "filter", "priority": "high", "test_values": ["Red", "Blue"], "steps": ["select each color"], "expected_result_descriptors": ["row count matches export"]}]`,
	}}
	store := &recordingStore{}

	p := NewPipeline(cfg, fake, llm, constEngine{}, store)
	result := p.Run(context.Background())

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.Controls)
	assert.Equal(t, 1, result.Findings)
	assert.Equal(t, 1, result.Mappings)
	assert.Equal(t, 1, result.Tests)

	require.NotNil(t, result.Run)
	assert.Equal(t, 1, result.Run.Passed, "both filter values validate against the export")
	assert.True(t, result.Run.Sealed())

	// Persistence happened at each stage boundary.
	assert.NotEmpty(t, store.indexEntries, "index persisted after learning")
	require.Len(t, store.tests, 1)
	assert.Equal(t, mapping.KindFilter, store.tests[0].Kind)
	require.Len(t, store.runs, 1)

	// The index carries both export rows and exploration findings.
	labels := make(map[string]bool)
	for _, e := range store.indexEntries {
		labels[e.SourceLabel] = true
	}
	assert.True(t, labels["export:"+cfg.Target.ExportPath])
	assert.True(t, labels["exploration:#color"])
}

func TestPipelineLearnTimeout(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Explore.LearnTimeoutSeconds = 1
	fake := pipelineBackend(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fake.NavigateFunc = func(string) error {
		<-release
		return nil
	}

	p := NewPipeline(cfg, fake, &scriptedLLM{}, constEngine{}, &recordingStore{})
	start := time.Now()
	result := p.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPipelinePersistenceFailureIsFatal(t *testing.T) {
	cfg := pipelineConfig(t)
	fake := pipelineBackend(t)
	store := &recordingStore{failOnIndex: true}

	p := NewPipeline(cfg, fake, &scriptedLLM{}, constEngine{}, store)
	result := p.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "persisting index")
}

func TestPipelineMappingFailureReported(t *testing.T) {
	cfg := pipelineConfig(t)
	fake := pipelineBackend(t)
	llm := &scriptedLLM{responses: []string{"[]"}}

	p := NewPipeline(cfg, fake, llm, constEngine{}, &recordingStore{})
	result := p.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "zero mappings")
	assert.Equal(t, 1, result.Controls, "learning results still reported")
}
