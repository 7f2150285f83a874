package mapping

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfacecheck/internal/config"
	"surfacecheck/internal/explorer"
	"surfacecheck/internal/retrieval"
)

// scriptedLLM returns canned responses in order.
type scriptedLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptedLLM) CompleteWithSystem(_ context.Context, _, userPrompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.prompts = append(s.prompts, userPrompt)
	if len(s.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

// stubIndex answers every query with the same rows, or an error.
type stubIndex struct {
	rows []retrieval.Row
	err  error
}

func (s *stubIndex) Query(context.Context, string, int, float64) ([]retrieval.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{ChunkSize: 50, QueryTopK: 3, MinSimilarity: 0.3}
}

var colorControl = explorer.DiscoveredControl{
	Kind: explorer.KindDropdown, Label: "Color", Selector: "#color",
}

func TestMapFieldsToControls(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"```json\n[{\"data_field\": \"color\", \"control_label\": \"Color\", \"control_selector\": \"#color\", \"confidence\": 0.9, \"rationale\": \"option labels match field values\"}]\n```",
	}}
	index := &stubIndex{rows: []retrieval.Row{{"color": "Red"}, {"color": "Blue"}}}
	m := NewMapper(llm, index, testConfig())

	mappings, err := m.MapFieldsToControls(context.Background(), "fields: color, size", []explorer.DiscoveredControl{colorControl})

	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "color", mappings[0].DataField)
	assert.Equal(t, "#color", mappings[0].ControlSelector)
	assert.Equal(t, 0.9, mappings[0].Confidence)

	// The prompt must carry the retrieved grounding rows.
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "color: Red")
}

func TestMapFieldsZeroMappingsIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"[]"}}
	m := NewMapper(llm, &stubIndex{rows: []retrieval.Row{{"color": "Red"}}}, testConfig())

	_, err := m.MapFieldsToControls(context.Background(), "fields: color", []explorer.DiscoveredControl{colorControl})

	var merr *MappingError
	require.ErrorAs(t, err, &merr)
}

func TestMapFieldsRetrievalMissIsFatal(t *testing.T) {
	miss := &retrieval.MissError{Query: "Color", Best: 0.1, Threshold: 0.3}
	m := NewMapper(&scriptedLLM{}, &stubIndex{err: miss}, testConfig())

	_, err := m.MapFieldsToControls(context.Background(), "fields: color", []explorer.DiscoveredControl{colorControl})

	var merr *MappingError
	require.ErrorAs(t, err, &merr)
	var missErr *retrieval.MissError
	assert.ErrorAs(t, err, &missErr)
}

func TestMapFieldsMalformedOutputIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"I am not sure about any of this."}}
	m := NewMapper(llm, &stubIndex{rows: []retrieval.Row{{"color": "Red"}}}, testConfig())

	_, err := m.MapFieldsToControls(context.Background(), "fields: color", []explorer.DiscoveredControl{colorControl})

	var merr *MappingError
	require.ErrorAs(t, err, &merr)
}

func TestMapFieldsUnknownSelectorRejected(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"data_field": "color", "control_selector": "#made-up", "confidence": 0.9}]`,
	}}
	m := NewMapper(llm, &stubIndex{rows: []retrieval.Row{{"color": "Red"}}}, testConfig())

	_, err := m.MapFieldsToControls(context.Background(), "fields: color", []explorer.DiscoveredControl{colorControl})

	var merr *MappingError
	require.ErrorAs(t, err, &merr)
}

func TestSynthesizeTests(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "filter", "priority": "high", "test_values": ["Red"], "steps": ["select Red"], "expected_result_descriptors": ["only red rows remain"]}]`,
	}}
	m := NewMapper(llm, &stubIndex{}, testConfig())
	mappings := []FieldControlMapping{{
		DataField: "color", ControlLabel: "Color", ControlSelector: "#color",
		SampleValues: []string{"Red", "Blue"},
	}}

	specs, err := m.SynthesizeTests(context.Background(), mappings)

	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, KindFilter, specs[0].Kind)
	assert.NotEmpty(t, specs[0].ID, "specs get ids assigned")
	assert.Equal(t, "color", specs[0].TargetField, "target field backfilled from mapping")
	assert.Equal(t, "#color", specs[0].TargetSelector)
	assert.Equal(t, []string{"Red"}, specs[0].TestValues)
}

func TestSynthesizeDropsFabricatedValues(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "filter", "test_values": ["Red", "Chartreuse"], "steps": ["select"]}]`,
	}}
	m := NewMapper(llm, &stubIndex{}, testConfig())
	mappings := []FieldControlMapping{{
		DataField: "color", ControlSelector: "#color", SampleValues: []string{"Red", "Blue"},
	}}

	specs, err := m.SynthesizeTests(context.Background(), mappings)

	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, []string{"Red"}, specs[0].TestValues, "value absent from the data is dropped")
}

func TestSynthesizeAllValuesFabricatedIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "filter", "test_values": ["Chartreuse"]}]`,
	}}
	m := NewMapper(llm, &stubIndex{}, testConfig())
	mappings := []FieldControlMapping{{
		DataField: "color", ControlSelector: "#color", SampleValues: []string{"Red"},
	}}

	_, err := m.SynthesizeTests(context.Background(), mappings)

	var serr *SynthesisError
	require.ErrorAs(t, err, &serr)
}

func TestSynthesizeUnknownSelectorIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "filter", "target_selector": "#made-up", "test_values": ["Red"]}]`,
	}}
	m := NewMapper(llm, &stubIndex{}, testConfig())
	mappings := []FieldControlMapping{{
		DataField: "color", ControlSelector: "#color", SampleValues: []string{"Red"},
	}}

	_, err := m.SynthesizeTests(context.Background(), mappings)

	var serr *SynthesisError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "unknown selector")
}

func TestSynthesizeMatchingSelectorAccepted(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "filter", "target_selector": "#color", "test_values": ["Red"]}]`,
	}}
	m := NewMapper(llm, &stubIndex{}, testConfig())
	mappings := []FieldControlMapping{{
		DataField: "color", ControlSelector: "#color", SampleValues: []string{"Red"},
	}}

	specs, err := m.SynthesizeTests(context.Background(), mappings)

	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "#color", specs[0].TargetSelector)
}

func TestSynthesizeUnknownKindIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "fuzz", "test_values": ["Red"]}]`,
	}}
	m := NewMapper(llm, &stubIndex{}, testConfig())
	mappings := []FieldControlMapping{{
		DataField: "color", ControlSelector: "#color", SampleValues: []string{"Red"},
	}}

	_, err := m.SynthesizeTests(context.Background(), mappings)

	var serr *SynthesisError
	require.ErrorAs(t, err, &serr)
}

func TestSynthesizeValuesComeFromIndexWhenMappingHasNone(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"kind": "search", "test_values": ["Blue"]}]`,
	}}
	index := &stubIndex{rows: []retrieval.Row{{"color": "Blue"}, {"color": "Green"}}}
	m := NewMapper(llm, index, testConfig())
	mappings := []FieldControlMapping{{DataField: "color", ControlSelector: "#color"}}

	specs, err := m.SynthesizeTests(context.Background(), mappings)

	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, []string{"Blue"}, specs[0].TestValues)
}
