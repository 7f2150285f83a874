package executor

import (
	"time"

	"github.com/google/uuid"

	"surfacecheck/internal/retrieval"
)

// Status is the verdict category for one executed test. Errors and
// assertion failures are distinct: an error means the test could not be
// carried out, a failure means it ran and the observation contradicted
// the data.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// ResultSet is the observed or expected side of a comparison.
type ResultSet struct {
	Count int             `json:"count"`
	Rows  []retrieval.Row `json:"rows,omitempty"`
}

// TestOutcome is the sealed result of executing one test specification.
type TestOutcome struct {
	TestID         string    `json:"test_id"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	ObservedData   ResultSet `json:"observed_data"`
	ExpectedData   ResultSet `json:"expected_data"`
	ScreenshotRefs []string  `json:"screenshot_refs,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// TestRun owns the ordered outcomes of one batch execution. It is created
// at execution start and sealed once the last test completes; no outcome
// is revised after sealing.
type TestRun struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Outcomes   []TestOutcome `json:"outcomes"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	DurationMs int64         `json:"duration_ms"`

	sealed bool
}

// NewTestRun starts an empty, unsealed run.
func NewTestRun() *TestRun {
	return &TestRun{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
}

// Append records an outcome. Appending to a sealed run is a programming
// error and is ignored rather than corrupting the sealed result.
func (r *TestRun) Append(outcome TestOutcome) {
	if r.sealed {
		return
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// Seal finalizes counters and duration. Idempotent.
func (r *TestRun) Seal() {
	if r.sealed {
		return
	}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusPassed:
			r.Passed++
		case StatusFailed:
			r.Failed++
		case StatusSkipped:
			r.Skipped++
		case StatusError:
			r.Errors++
		}
	}
	r.DurationMs = time.Since(r.StartedAt).Milliseconds()
	r.sealed = true
}

// Sealed reports whether the run has been finalized.
func (r *TestRun) Sealed() bool { return r.sealed }
