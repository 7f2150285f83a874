package snapshot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intPtr(n int) *int { return &n }

func baseSnapshot() *UISnapshot {
	return &UISnapshot{
		URL:           "http://app.local/products?category=all",
		QueryParams:   map[string]string{"category": "all"},
		ResultCount:   intPtr(50),
		TableRowCount: 50,
		ControlStates: map[string]ControlState{
			"#category": {Options: []string{"All", "Books", "Games"}},
			"#brand":    {Options: []string{"Any", "Acme"}},
		},
	}
}

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	before := baseSnapshot()
	after := baseSnapshot()

	delta := Diff(before, after)
	if !delta.Empty() {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
}

func TestDiffResultCountChange(t *testing.T) {
	before := baseSnapshot()
	after := baseSnapshot()
	after.ResultCount = intPtr(48)
	after.TableRowCount = 50 // unchanged

	delta := Diff(before, after)

	want := &IntChange{Before: 50, After: 48}
	if diff := cmp.Diff(want, delta.ResultCount); diff != "" {
		t.Errorf("result count change mismatch (-want +got):\n%s", diff)
	}
	if delta.URL != nil || delta.TableRowCount != nil || len(delta.CascadingControls) != 0 {
		t.Errorf("unexpected extra changes: %+v", delta)
	}
}

func TestDiffNilResultCount(t *testing.T) {
	before := baseSnapshot()
	before.ResultCount = nil
	after := baseSnapshot()
	after.ResultCount = intPtr(48)

	delta := Diff(before, after)
	if delta.ResultCount == nil {
		t.Fatal("expected result count change when before is unknown")
	}
	if delta.ResultCount.Before != 0 || delta.ResultCount.After != 48 {
		t.Errorf("got %+v", delta.ResultCount)
	}
}

func TestDiffURLAndRowCount(t *testing.T) {
	before := baseSnapshot()
	after := baseSnapshot()
	after.URL = "http://app.local/products?category=books"
	after.TableRowCount = 12

	delta := Diff(before, after)

	if delta.URL == nil || delta.URL.Before != before.URL || delta.URL.After != after.URL {
		t.Errorf("url change mismatch: %+v", delta.URL)
	}
	if delta.TableRowCount == nil || delta.TableRowCount.After != 12 {
		t.Errorf("row count change mismatch: %+v", delta.TableRowCount)
	}
}

func TestDiffCascadingControls(t *testing.T) {
	before := baseSnapshot()
	after := baseSnapshot()
	// Brand options narrowed by a category selection; category itself unchanged.
	after.ControlStates = map[string]ControlState{
		"#category": {Options: []string{"All", "Books", "Games"}},
		"#brand":    {Options: []string{"Any"}},
	}

	delta := Diff(before, after)

	want := map[string]OptionCountChange{
		"#brand": {BeforeCount: 2, AfterCount: 1},
	}
	if diff := cmp.Diff(want, delta.CascadingControls); diff != "" {
		t.Errorf("cascading changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffIgnoresSelectorsMissingInAfter(t *testing.T) {
	before := baseSnapshot()
	after := baseSnapshot()
	delete(after.ControlStates, "#brand")

	delta := Diff(before, after)
	// Documented limitation: removals are not reported.
	if len(delta.CascadingControls) != 0 {
		t.Errorf("expected no cascading changes, got %+v", delta.CascadingControls)
	}
}

func TestDiffIsPure(t *testing.T) {
	before := baseSnapshot()
	after := baseSnapshot()
	after.ResultCount = intPtr(10)

	first := Diff(before, after)
	second := Diff(before, after)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("diff is not deterministic (-first +second):\n%s", diff)
	}
}
