package snapshot

// Diff computes the structured delta between two snapshots. It is a pure,
// total function: field-by-field equality for result count, URL, and table
// row count, plus per-selector option-set length comparison for control
// states. Selectors absent in after are not reported as removed; only length
// changes on selectors present in before are surfaced as cascading changes.
func Diff(before, after *UISnapshot) StateDelta {
	var delta StateDelta

	if !intPtrEqual(before.ResultCount, after.ResultCount) {
		delta.ResultCount = &IntChange{
			Before: intPtrValue(before.ResultCount),
			After:  intPtrValue(after.ResultCount),
		}
	}

	if before.URL != after.URL {
		delta.URL = &StringChange{Before: before.URL, After: after.URL}
	}

	if before.TableRowCount != after.TableRowCount {
		delta.TableRowCount = &IntChange{Before: before.TableRowCount, After: after.TableRowCount}
	}

	for sel, beforeState := range before.ControlStates {
		afterState, ok := after.ControlStates[sel]
		if !ok {
			continue
		}
		if len(beforeState.Options) != len(afterState.Options) {
			if delta.CascadingControls == nil {
				delta.CascadingControls = make(map[string]OptionCountChange)
			}
			delta.CascadingControls[sel] = OptionCountChange{
				BeforeCount: len(beforeState.Options),
				AfterCount:  len(afterState.Options),
			}
		}
	}

	return delta
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
