// Package executor replays synthesized tests against the live UI and
// validates observed results against expectations derived from the data
// export via the retrieval index. It also hosts the top-level pipeline
// that sequences learning, synthesis, and execution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"surfacecheck/internal/browser"
	"surfacecheck/internal/config"
	"surfacecheck/internal/logging"
	"surfacecheck/internal/mapping"
	"surfacecheck/internal/retrieval"
)

// TestExecutionError is scoped to a single test: it becomes an error
// outcome and never aborts the rest of the run.
type TestExecutionError struct {
	TestID string
	Op     string
	Err    error
}

func (e *TestExecutionError) Error() string {
	return fmt.Sprintf("test %s: %s: %v", e.TestID, e.Op, e.Err)
}

func (e *TestExecutionError) Unwrap() error { return e.Err }

// ValidationMismatch records an assertion failure: the UI ran the test but
// disagreed with the data export.
type ValidationMismatch struct {
	Field    string
	Value    string
	Expected int
	Observed int
	Detail   string
}

func (e *ValidationMismatch) Error() string {
	msg := fmt.Sprintf("value %q on field %q: expected %d results, observed %d", e.Value, e.Field, e.Expected, e.Observed)
	if e.Detail != "" {
		msg += "; " + e.Detail
	}
	return msg
}

// errControlMissing marks a test whose target control is no longer on the
// page; the test is skipped rather than failed.
var errControlMissing = errors.New("target control not present on page")

// Executor replays test specifications through the automation backend.
type Executor struct {
	backend   browser.Backend
	index     mapping.Querier
	dismisser browser.ObstacleDismisser
	cfg       config.ExecutionConfig
	retrCfg   config.RetrievalConfig
	catalog   config.HeuristicCatalog
	baseURL   string
}

// NewExecutor wires an executor. dismisser may be nil when no obstacle
// handling is wanted.
func NewExecutor(backend browser.Backend, index mapping.Querier, dismisser browser.ObstacleDismisser,
	cfg config.ExecutionConfig, retrCfg config.RetrievalConfig, catalog config.HeuristicCatalog, baseURL string) *Executor {
	return &Executor{
		backend:   backend,
		index:     index,
		dismisser: dismisser,
		cfg:       cfg,
		retrCfg:   retrCfg,
		catalog:   catalog.Merge(),
		baseURL:   baseURL,
	}
}

// ExecuteRun replays every test in order and returns the sealed run.
// Tests are isolated: one test's error never aborts the others.
func (e *Executor) ExecuteRun(ctx context.Context, tests []mapping.TestSpecification) *TestRun {
	run := NewTestRun()
	logging.Executor("run %s: executing %d tests", run.RunID, len(tests))
	for _, test := range tests {
		run.Append(e.Execute(ctx, test, run.RunID))
	}
	run.Seal()
	logging.Executor("run %s sealed: %d passed, %d failed, %d errors, %d skipped",
		run.RunID, run.Passed, run.Failed, run.Errors, run.Skipped)
	return run
}

// Execute replays one test. Any error raised while driving the backend or
// deriving expectations yields an error outcome; only a completed
// comparison that disagrees with the data yields failed.
func (e *Executor) Execute(ctx context.Context, test mapping.TestSpecification, runID string) (outcome TestOutcome) {
	start := time.Now()
	outcome = TestOutcome{TestID: test.ID, Status: StatusPassed}
	defer func() {
		outcome.DurationMs = time.Since(start).Milliseconds()
	}()

	if test.TargetSelector == "" || test.TargetField == "" || len(test.TestValues) == 0 {
		outcome.Status = StatusError
		outcome.Reason = "invalid specification: missing target or test values"
		return outcome
	}

	for _, value := range test.TestValues {
		err := e.checkValue(ctx, test, value, &outcome)
		if err == nil {
			continue
		}
		var mismatch *ValidationMismatch
		switch {
		case errors.Is(err, errControlMissing):
			outcome.Status = StatusSkipped
			outcome.Reason = err.Error()
		case errors.As(err, &mismatch):
			outcome.Status = StatusFailed
			outcome.Reason = mismatch.Error()
		default:
			outcome.Status = StatusError
			outcome.Reason = err.Error()
		}
		logging.Executor("test %s %s: %s", test.ID, outcome.Status, outcome.Reason)
		return outcome
	}

	return outcome
}

// checkValue runs one test value end to end: navigate, settle, apply,
// observe, derive expectation, compare.
func (e *Executor) checkValue(ctx context.Context, test mapping.TestSpecification, value string, outcome *TestOutcome) error {
	if err := e.backend.Navigate(ctx, e.baseURL); err != nil {
		return &TestExecutionError{TestID: test.ID, Op: "navigate", Err: err}
	}
	if err := e.backend.WaitForSelector(ctx, e.cfg.BaselineSelector, e.cfg.ResultsTimeout()); err != nil {
		return &TestExecutionError{TestID: test.ID, Op: "baseline wait", Err: err}
	}
	if e.dismisser != nil {
		e.dismisser.Dismiss(ctx, e.backend)
	}

	els, err := e.backend.QueryElements(ctx, test.TargetSelector)
	if err != nil {
		return &TestExecutionError{TestID: test.ID, Op: "locate control", Err: err}
	}
	if len(els) == 0 {
		return fmt.Errorf("%w: %s", errControlMissing, test.TargetSelector)
	}

	e.screenshot(ctx, test.ID, "before", outcome)

	if err := e.apply(ctx, test, value); err != nil {
		return &TestExecutionError{TestID: test.ID, Op: "apply", Err: err}
	}
	e.waitForResults(ctx)
	e.screenshot(ctx, test.ID, "after", outcome)

	observed, err := e.extractRows(ctx)
	if err != nil {
		return &TestExecutionError{TestID: test.ID, Op: "extract rows", Err: err}
	}
	e.screenshot(ctx, test.ID, "results", outcome)

	expected, err := e.expectedFor(ctx, test.TargetField, value)
	if err != nil {
		return &TestExecutionError{TestID: test.ID, Op: "derive expectation", Err: err}
	}

	outcome.ObservedData = ResultSet{Count: len(observed), Rows: observed}
	outcome.ExpectedData = expected

	return e.compare(test.TargetField, value, observed, expected)
}

func (e *Executor) apply(ctx context.Context, test mapping.TestSpecification, value string) error {
	switch test.Kind {
	case mapping.KindSearch:
		return browser.FillAndSubmit(ctx, e.backend, test.TargetSelector, value)
	case mapping.KindFilter, mapping.KindSort, mapping.KindNumericFilter:
		return browser.SelectOption(ctx, e.backend, test.TargetSelector, value)
	default:
		return fmt.Errorf("unsupported test kind %q", test.Kind)
	}
}

// waitForResults gives the page a chance to surface a results indicator.
// Best effort: a filter that legitimately matches zero rows never shows
// one, so timeouts are not errors.
func (e *Executor) waitForResults(ctx context.Context) {
	perHeuristic := e.cfg.ResultsTimeout() / time.Duration(len(e.catalog.ResultCounts)+1)
	for _, heuristic := range e.catalog.ResultCounts {
		if err := e.backend.WaitForSelector(ctx, heuristic, perHeuristic); err == nil {
			return
		}
	}
	if err := e.backend.WaitForSelector(ctx, e.catalog.TableRows, perHeuristic); err != nil {
		logging.ExecutorDebug("no results indicator appeared: %v", err)
	}
}

// expectedFor derives the gold-standard expectation: the indexed export
// rows whose field matches the applied value.
func (e *Executor) expectedFor(ctx context.Context, field, value string) (ResultSet, error) {
	rows, err := e.index.Query(ctx, field+" "+value, e.retrCfg.QueryTopK, e.retrCfg.MinSimilarity)
	if err != nil {
		return ResultSet{}, err
	}
	var matched []retrieval.Row
	for _, row := range rows {
		if strings.EqualFold(row[field], value) || strings.EqualFold(row[strings.ToLower(field)], value) {
			matched = append(matched, row)
		}
	}
	return ResultSet{Count: len(matched), Rows: matched}, nil
}

// compare applies the configured criteria: count equality always, field
// content additionally when enabled.
func (e *Executor) compare(field, value string, observed []retrieval.Row, expected ResultSet) error {
	if len(observed) != expected.Count {
		return &ValidationMismatch{
			Field: field, Value: value,
			Expected: expected.Count, Observed: len(observed),
		}
	}
	if !e.cfg.CompareContent {
		return nil
	}

	obsValues := fieldValues(observed, field)
	expValues := fieldValues(expected.Rows, field)
	if strings.Join(obsValues, "\n") != strings.Join(expValues, "\n") {
		return &ValidationMismatch{
			Field: field, Value: value,
			Expected: expected.Count, Observed: len(observed),
			Detail: fmt.Sprintf("content differs: observed %v, expected %v", obsValues, expValues),
		}
	}
	return nil
}

func (e *Executor) screenshot(ctx context.Context, testID, phase string, outcome *TestOutcome) {
	ref, err := e.backend.Screenshot(ctx, testID+"-"+phase)
	if err != nil {
		logging.ExecutorDebug("screenshot %s/%s failed: %v", testID, phase, err)
		return
	}
	outcome.ScreenshotRefs = append(outcome.ScreenshotRefs, ref)
}

// fieldValues extracts the sorted, lowercased values of a field from rows.
func fieldValues(rows []retrieval.Row, field string) []string {
	values := retrieval.DistinctValues(rows, field, 0)
	if len(values) == 0 {
		values = retrieval.DistinctValues(rows, strings.ToLower(field), 0)
	}
	for i := range values {
		values[i] = strings.ToLower(values[i])
	}
	return values
}
