// Package snapshot captures structured fingerprints of the current UI state
// and computes deltas between them. Snapshots are immutable values: two
// snapshots are compared, never merged, and every delta is derivable purely
// from the pair it was computed from.
package snapshot

import (
	"errors"
	"fmt"
	"time"
)

// ControlState records the observable state of one multi-option control.
type ControlState struct {
	Options []string `json:"options"`
}

// UISnapshot is an immutable capture of observable UI state.
type UISnapshot struct {
	URL            string                  `json:"url"`
	QueryParams    map[string]string       `json:"query_params"`
	ResultCount    *int                    `json:"result_count,omitempty"`
	ResultCountRaw string                  `json:"result_count_raw,omitempty"`
	ControlStates  map[string]ControlState `json:"control_states"`
	TableRowCount  int                     `json:"table_row_count"`
	ScreenshotRef  string                  `json:"screenshot_ref"` // Opaque; never interpreted here
	CapturedAt     time.Time               `json:"captured_at"`
}

// IntChange holds before/after values for an integer field.
type IntChange struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// StringChange holds before/after values for a string field.
type StringChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// OptionCountChange records an option-set length change on a control that was
// not itself acted on (a cascading effect).
type OptionCountChange struct {
	BeforeCount int `json:"before_count"`
	AfterCount  int `json:"after_count"`
}

// StateDelta is the set of fields that differ between two snapshots. Fields
// are present only when changed. Deltas are computed on demand and discarded
// after use; callers persist them if needed.
type StateDelta struct {
	ResultCount       *IntChange                   `json:"result_count,omitempty"`
	URL               *StringChange                `json:"url,omitempty"`
	TableRowCount     *IntChange                   `json:"table_row_count,omitempty"`
	CascadingControls map[string]OptionCountChange `json:"cascading_controls,omitempty"`
}

// Empty reports whether the delta records no changes.
func (d StateDelta) Empty() bool {
	return d.ResultCount == nil && d.URL == nil && d.TableRowCount == nil && len(d.CascadingControls) == 0
}

// CaptureError indicates the automation backend could not be queried; no
// partial snapshot is ever returned alongside it.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("snapshot capture failed at %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// IsCaptureError reports whether err is (or wraps) a CaptureError.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}
