// Package mapping derives field-to-control correspondences and synthesizes
// test specifications from them. The reasoning service makes the structural
// judgments; every factual value in a mapping or test comes from the
// retrieval index, never from the model's own recall.
package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"surfacecheck/internal/config"
	"surfacecheck/internal/explorer"
	"surfacecheck/internal/logging"
	"surfacecheck/internal/reasoning"
	"surfacecheck/internal/retrieval"
)

// TestKind classifies a synthesized test.
type TestKind string

const (
	KindFilter        TestKind = "filter"
	KindSearch        TestKind = "search"
	KindSort          TestKind = "sort"
	KindNumericFilter TestKind = "numericFilter"
)

// ValidKind reports whether k is a recognized test kind.
func ValidKind(k TestKind) bool {
	switch k {
	case KindFilter, KindSearch, KindSort, KindNumericFilter:
		return true
	}
	return false
}

// FieldControlMapping is a claimed correspondence between a data field and
// a UI control. Immutable once produced.
type FieldControlMapping struct {
	DataField       string   `json:"data_field"`
	SourceFile      string   `json:"source_file"`
	ControlLabel    string   `json:"control_label"`
	ControlSelector string   `json:"control_selector"`
	Confidence      float64  `json:"confidence"`
	Rationale       string   `json:"rationale"`
	SampleValues    []string `json:"sample_values"`
}

// TestSpecification describes one replayable test. Steps are human
// readable, not executable; the executor derives actions from Kind,
// TargetSelector, and TestValues.
type TestSpecification struct {
	ID                        string   `json:"id"`
	Kind                      TestKind `json:"kind"`
	Priority                  string   `json:"priority,omitempty"`
	TargetField               string   `json:"target_field"`
	TargetSelector            string   `json:"target_selector"`
	TestValues                []string `json:"test_values"`
	Steps                     []string `json:"steps"`
	ExpectedResultDescriptors []string `json:"expected_result_descriptors"`
}

// MappingError is fatal for the pipeline: mapping is a required
// precondition for test generation, not an optional enrichment.
type MappingError struct {
	Err error
}

func (e *MappingError) Error() string { return fmt.Sprintf("field/control mapping failed: %v", e.Err) }
func (e *MappingError) Unwrap() error { return e.Err }

// SynthesisError is fatal: malformed or empty test output aborts the
// pipeline rather than producing an untrustworthy suite.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("test synthesis failed: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// Querier is the slice of the retrieval index the mapper needs.
type Querier interface {
	Query(ctx context.Context, text string, topK int, minSimilarity float64) ([]retrieval.Row, error)
}

// Mapper runs the mapping and synthesis phases.
type Mapper struct {
	llm   reasoning.LLMClient
	index Querier
	cfg   config.RetrievalConfig
}

// NewMapper builds a mapper over the given reasoning client and index.
func NewMapper(llm reasoning.LLMClient, index Querier, cfg config.RetrievalConfig) *Mapper {
	return &Mapper{llm: llm, index: index, cfg: cfg}
}

// MapFieldsToControls proposes correspondences between data fields and
// discovered controls. Each control's label is first grounded by a
// retrieval query; the retrieved rows are what the model reasons over.
// Zero mappings, a retrieval miss, or malformed model output are all
// fatal.
func (m *Mapper) MapFieldsToControls(ctx context.Context, dataSummary string, controls []explorer.DiscoveredControl) ([]FieldControlMapping, error) {
	if len(controls) == 0 {
		return nil, &MappingError{Err: fmt.Errorf("no controls to map against")}
	}

	var grounding strings.Builder
	for _, control := range controls {
		query := controlQueryText(control)
		rows, err := m.index.Query(ctx, query, m.cfg.QueryTopK, m.cfg.MinSimilarity)
		if err != nil {
			return nil, &MappingError{Err: fmt.Errorf("grounding control %q: %w", control.Label, err)}
		}
		fmt.Fprintf(&grounding, "Control %q (kind %s, selector %s):\n%s\n\n",
			control.Label, control.Kind, control.Selector, retrieval.RenderRows(rows))
	}

	userPrompt := fmt.Sprintf(mappingPromptTemplate, dataSummary, describeControls(controls), grounding.String())
	response, err := m.llm.CompleteWithSystem(ctx, mappingSystemPrompt, userPrompt)
	if err != nil {
		return nil, &MappingError{Err: err}
	}

	var mappings []FieldControlMapping
	if err := reasoning.ParseJSON(response, &mappings); err != nil {
		return nil, &MappingError{Err: err}
	}
	if len(mappings) == 0 {
		return nil, &MappingError{Err: fmt.Errorf("reasoning service proposed zero mappings")}
	}

	selectors := make(map[string]bool, len(controls))
	for _, c := range controls {
		selectors[c.Selector] = true
	}
	for i := range mappings {
		if mappings[i].DataField == "" || !selectors[mappings[i].ControlSelector] {
			return nil, &MappingError{Err: fmt.Errorf("mapping %d references unknown field or selector", i)}
		}
		if mappings[i].Confidence < 0 {
			mappings[i].Confidence = 0
		}
		if mappings[i].Confidence > 1 {
			mappings[i].Confidence = 1
		}
	}

	logging.Mapping("proposed %d mappings for %d controls", len(mappings), len(controls))
	return mappings, nil
}

// SynthesizeTests turns mappings into test specifications. Test values are
// constrained to values actually observed in the indexed data; a spec
// whose values cannot all be traced back to the index is rejected.
func (m *Mapper) SynthesizeTests(ctx context.Context, mappings []FieldControlMapping) ([]TestSpecification, error) {
	if len(mappings) == 0 {
		return nil, &SynthesisError{Err: fmt.Errorf("no mappings to synthesize from")}
	}

	var specs []TestSpecification
	for _, mapping := range mappings {
		observed, err := m.observedValues(ctx, mapping)
		if err != nil {
			return nil, &SynthesisError{Err: err}
		}
		if len(observed) == 0 {
			return nil, &SynthesisError{Err: fmt.Errorf("no observed values for field %q", mapping.DataField)}
		}

		userPrompt := fmt.Sprintf(synthesisPromptTemplate,
			mapping.DataField, mapping.ControlLabel, mapping.ControlSelector,
			strings.Join(observed, ", "))
		response, err := m.llm.CompleteWithSystem(ctx, synthesisSystemPrompt, userPrompt)
		if err != nil {
			return nil, &SynthesisError{Err: err}
		}

		var proposed []TestSpecification
		if err := reasoning.ParseJSON(response, &proposed); err != nil {
			return nil, &SynthesisError{Err: err}
		}

		allowed := make(map[string]bool, len(observed))
		for _, v := range observed {
			allowed[v] = true
		}
		for _, spec := range proposed {
			if !ValidKind(spec.Kind) {
				return nil, &SynthesisError{Err: fmt.Errorf("test for %q has unknown kind %q", mapping.DataField, spec.Kind)}
			}
			// Fabricated values are out of contract: keep only values the
			// index has actually seen.
			var kept []string
			for _, v := range spec.TestValues {
				if allowed[v] {
					kept = append(kept, v)
				}
			}
			if len(kept) == 0 {
				return nil, &SynthesisError{Err: fmt.Errorf("test for %q uses only values absent from the data", mapping.DataField)}
			}
			spec.TestValues = kept
			if spec.ID == "" {
				spec.ID = uuid.New().String()
			}
			if spec.TargetField == "" {
				spec.TargetField = mapping.DataField
			}
			switch spec.TargetSelector {
			case "", mapping.ControlSelector:
				spec.TargetSelector = mapping.ControlSelector
			default:
				return nil, &SynthesisError{Err: fmt.Errorf("test for %q targets unknown selector %q", mapping.DataField, spec.TargetSelector)}
			}
			specs = append(specs, spec)
		}
	}

	if len(specs) == 0 {
		return nil, &SynthesisError{Err: fmt.Errorf("reasoning service produced zero tests")}
	}
	logging.Mapping("synthesized %d tests from %d mappings", len(specs), len(mappings))
	return specs, nil
}

// observedValues pulls representative values for a mapping's field out of
// the index, preferring any samples already attached to the mapping.
func (m *Mapper) observedValues(ctx context.Context, mapping FieldControlMapping) ([]string, error) {
	if len(mapping.SampleValues) > 0 {
		return mapping.SampleValues, nil
	}
	rows, err := m.index.Query(ctx, "values of field "+mapping.DataField, m.cfg.QueryTopK, m.cfg.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("retrieving values for %q: %w", mapping.DataField, err)
	}
	return retrieval.DistinctValues(rows, mapping.DataField, 10), nil
}

func controlQueryText(control explorer.DiscoveredControl) string {
	parts := []string{control.Label}
	if control.PlaceholderText != "" {
		parts = append(parts, control.PlaceholderText)
	}
	if control.AccessibleName != "" && control.AccessibleName != control.Label {
		parts = append(parts, control.AccessibleName)
	}
	return strings.Join(parts, " ")
}

func describeControls(controls []explorer.DiscoveredControl) string {
	var b strings.Builder
	for _, c := range controls {
		fmt.Fprintf(&b, "- %s %q selector=%s", c.Kind, c.Label, c.Selector)
		if c.PlaceholderText != "" {
			fmt.Fprintf(&b, " placeholder=%q", c.PlaceholderText)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
