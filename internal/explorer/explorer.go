// Package explorer discovers interactive controls and learns what they do
// by exercising a sample of their value space, recording before/after
// state deltas per trial. Findings stream into the retrieval index as soon
// as each control finishes, so later mapping queries can see them.
package explorer

import (
	"context"
	"fmt"
	"strings"

	"surfacecheck/internal/browser"
	"surfacecheck/internal/config"
	"surfacecheck/internal/logging"
	"surfacecheck/internal/retrieval"
	"surfacecheck/internal/snapshot"
)

// ControlKind classifies a discovered control.
type ControlKind string

const (
	KindDropdown  ControlKind = "dropdown"
	KindSearchBox ControlKind = "searchBox"
)

// DiscoveredControl is one interactive element found during discovery.
// Identity is the selector string; discovery deduplicates on it.
type DiscoveredControl struct {
	Kind            ControlKind `json:"kind"`
	Label           string      `json:"label"`
	Selector        string      `json:"selector"`
	PlaceholderText string      `json:"placeholder_text,omitempty"`
	AccessibleName  string      `json:"accessible_name,omitempty"`
}

// SampledTrial records one exercised value: what was applied, what changed,
// and whether the reset back to a neutral state succeeded. A false ResetOK
// means the following trial may have started from a contaminated state.
type SampledTrial struct {
	OptionOrTerm string              `json:"option_or_term"`
	Delta        snapshot.StateDelta `json:"delta"`
	ResetOK      bool                `json:"reset_ok"`
}

// ExplorationFinding is the recorded outcome of exploring one control.
type ExplorationFinding struct {
	Control            DiscoveredControl `json:"control"`
	AllObservedOptions []string          `json:"all_observed_options"`
	SampledTrials      []SampledTrial    `json:"sampled_trials"`
}

// ExplorationError is fatal for the whole learning run. Partial findings
// are never trusted: they are about to become ground truth for test
// generation, so a half-explored control propagates up instead of being
// silently kept.
type ExplorationError struct {
	Control string
	Err     error
}

func (e *ExplorationError) Error() string {
	return fmt.Sprintf("exploring %s: %v", e.Control, e.Err)
}

func (e *ExplorationError) Unwrap() error { return e.Err }

// Ingester receives finding rows as they are produced. *retrieval.Index
// satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, sourceLabel string, rows []retrieval.Row) error
}

// Explorer drives discovery and exploration over a single backend session.
// All calls are sequential; two explorations never overlap because the
// underlying page is shared state.
type Explorer struct {
	backend  browser.Backend
	snap     *snapshot.Snapshotter
	catalog  config.HeuristicCatalog
	cfg      config.ExploreConfig
	ingester Ingester
}

// NewExplorer builds an explorer. ingester may be nil, in which case
// findings are returned but not indexed.
func NewExplorer(backend browser.Backend, cfg config.ExploreConfig, ingester Ingester) *Explorer {
	catalog := cfg.Heuristics.Merge()
	return &Explorer{
		backend:  backend,
		snap:     snapshot.NewSnapshotter(backend, catalog),
		catalog:  catalog,
		cfg:      cfg,
		ingester: ingester,
	}
}

// Discover scans the heuristic catalog for dropdowns and search boxes, in
// catalog order, deduplicating by derived selector as controls are found.
// A heuristic whose query fails is logged and skipped; discovery itself
// never fails.
func (e *Explorer) Discover(ctx context.Context) []DiscoveredControl {
	seen := make(map[string]bool)
	var controls []DiscoveredControl

	scan := func(heuristics []string, kind ControlKind) {
		for _, heuristic := range heuristics {
			els, err := e.backend.QueryElements(ctx, heuristic)
			if err != nil {
				logging.Explorer("discovery heuristic %q failed, skipping: %v", heuristic, err)
				continue
			}
			for _, el := range els {
				if !el.Visible {
					continue
				}
				selector := browser.SelectorFor(el, heuristic)
				if seen[selector] {
					continue
				}
				seen[selector] = true
				controls = append(controls, DiscoveredControl{
					Kind:            kind,
					Label:           labelFor(el, selector),
					Selector:        selector,
					PlaceholderText: el.Placeholder,
					AccessibleName:  el.AriaLabel,
				})
			}
		}
	}

	scan(e.catalog.Dropdowns, KindDropdown)
	scan(e.catalog.SearchBoxes, KindSearchBox)

	logging.Explorer("discovered %d controls", len(controls))
	return controls
}

// Sample takes the first k values in discovery order. Deterministic by
// construction: no randomization, so repeated runs exercise the same
// values.
func Sample(options []string, k int) []string {
	if k <= 0 || len(options) == 0 {
		return nil
	}
	if k > len(options) {
		k = len(options)
	}
	return options[:k]
}

// Explore exercises one control. For dropdowns the value space is the
// element's own option set; for search boxes the caller supplies candidate
// terms (typically drawn from the data export). The finding is ingested
// into the index before returning when an ingester is configured.
func (e *Explorer) Explore(ctx context.Context, control DiscoveredControl, candidateTerms []string) (*ExplorationFinding, error) {
	options, err := e.enumerateOptions(ctx, control, candidateTerms)
	if err != nil {
		return nil, &ExplorationError{Control: control.Selector, Err: err}
	}
	if len(options) == 0 {
		logging.Explorer("control %s has no options to exercise", control.Selector)
		finding := &ExplorationFinding{Control: control}
		return finding, e.ingestFinding(ctx, finding)
	}

	before, err := e.snap.Capture(ctx)
	if err != nil {
		return nil, &ExplorationError{Control: control.Selector, Err: err}
	}

	finding := &ExplorationFinding{
		Control:            control,
		AllObservedOptions: options,
	}

	for _, value := range Sample(options, e.cfg.SampleSize) {
		if err := e.apply(ctx, control, value); err != nil {
			return nil, &ExplorationError{Control: control.Selector, Err: fmt.Errorf("applying %q: %w", value, err)}
		}
		e.waitForStability(ctx)

		after, err := e.snap.Capture(ctx)
		if err != nil {
			return nil, &ExplorationError{Control: control.Selector, Err: err}
		}

		trial := SampledTrial{
			OptionOrTerm: value,
			Delta:        snapshot.Diff(before, after),
		}

		// Reset is best-effort: a failure is recorded on the trial, not
		// raised, but it means the next trial may start contaminated.
		if err := e.reset(ctx, control); err != nil {
			logging.Explorer("reset after %q on %s failed: %v", value, control.Selector, err)
		} else {
			e.waitForStability(ctx)
			trial.ResetOK = true
		}
		finding.SampledTrials = append(finding.SampledTrials, trial)
	}

	logging.Explorer("explored %s (%s): %d options, %d trials", control.Selector, control.Kind, len(options), len(finding.SampledTrials))
	return finding, e.ingestFinding(ctx, finding)
}

// ExploreAll explores every control in order, stopping at the first
// failure. termsFor provides search-box candidate terms per control and
// may be nil.
func (e *Explorer) ExploreAll(ctx context.Context, controls []DiscoveredControl, termsFor func(DiscoveredControl) []string) ([]*ExplorationFinding, error) {
	var findings []*ExplorationFinding
	for _, control := range controls {
		var terms []string
		if termsFor != nil {
			terms = termsFor(control)
		}
		finding, err := e.Explore(ctx, control, terms)
		if err != nil {
			return nil, err
		}
		findings = append(findings, finding)
	}
	return findings, nil
}

func (e *Explorer) enumerateOptions(ctx context.Context, control DiscoveredControl, candidateTerms []string) ([]string, error) {
	if control.Kind == KindSearchBox {
		return candidateTerms, nil
	}
	els, err := e.backend.QueryElements(ctx, control.Selector)
	if err != nil {
		return nil, fmt.Errorf("enumerating options: %w", err)
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("control no longer present")
	}
	return els[0].Options, nil
}

func (e *Explorer) apply(ctx context.Context, control DiscoveredControl, value string) error {
	switch control.Kind {
	case KindDropdown:
		return browser.SelectOption(ctx, e.backend, control.Selector, value)
	case KindSearchBox:
		return browser.FillAndSubmit(ctx, e.backend, control.Selector, value)
	default:
		return fmt.Errorf("unknown control kind %q", control.Kind)
	}
}

// reset returns the control to a neutral state so samples stay
// independent. A reset-button heuristic is preferred; otherwise dropdowns
// reselect their first option and search boxes are cleared.
func (e *Explorer) reset(ctx context.Context, control DiscoveredControl) error {
	for _, heuristic := range e.catalog.ResetButtons {
		els, err := e.backend.QueryElements(ctx, heuristic)
		if err != nil || len(els) == 0 {
			continue
		}
		for _, el := range els {
			if !el.Visible {
				continue
			}
			return e.backend.Click(ctx, browser.SelectorFor(el, heuristic))
		}
	}

	switch control.Kind {
	case KindDropdown:
		els, err := e.backend.QueryElements(ctx, control.Selector)
		if err != nil {
			return err
		}
		if len(els) == 0 || len(els[0].Options) == 0 {
			return fmt.Errorf("no neutral option available")
		}
		return browser.SelectOption(ctx, e.backend, control.Selector, els[0].Options[0])
	case KindSearchBox:
		return browser.FillAndSubmit(ctx, e.backend, control.Selector, "")
	}
	return nil
}

func (e *Explorer) ingestFinding(ctx context.Context, finding *ExplorationFinding) error {
	if e.ingester == nil {
		return nil
	}
	rows := FindingRows(finding)
	if len(rows) == 0 {
		return nil
	}
	label := "exploration:" + finding.Control.Selector
	if err := e.ingester.Ingest(ctx, label, rows); err != nil {
		return &ExplorationError{Control: finding.Control.Selector, Err: fmt.Errorf("indexing finding: %w", err)}
	}
	return nil
}

func labelFor(el browser.ElementInfo, selector string) string {
	for _, candidate := range []string{el.AriaLabel, strings.TrimSpace(el.Text), el.Name, el.ID, el.Placeholder} {
		if candidate != "" {
			return candidate
		}
	}
	return selector
}
