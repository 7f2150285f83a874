package explorer

import (
	"strconv"
	"strings"

	"surfacecheck/internal/retrieval"
	"surfacecheck/internal/snapshot"
)

// FindingRows renders a finding into retrieval rows: one summary row for
// the control plus one row per trial. The rendered fields are what mapping
// queries later match against, so they carry the control's label and
// option vocabulary in plain text.
func FindingRows(finding *ExplorationFinding) []retrieval.Row {
	if finding == nil {
		return nil
	}
	c := finding.Control

	summary := retrieval.Row{
		"record":   "ui_control",
		"kind":     string(c.Kind),
		"label":    c.Label,
		"selector": c.Selector,
	}
	if c.PlaceholderText != "" {
		summary["placeholder"] = c.PlaceholderText
	}
	if c.AccessibleName != "" {
		summary["accessible_name"] = c.AccessibleName
	}
	if len(finding.AllObservedOptions) > 0 {
		summary["options"] = strings.Join(finding.AllObservedOptions, ", ")
	}
	rows := []retrieval.Row{summary}

	for _, trial := range finding.SampledTrials {
		row := retrieval.Row{
			"record":   "ui_trial",
			"label":    c.Label,
			"selector": c.Selector,
			"applied":  trial.OptionOrTerm,
			"reset_ok": strconv.FormatBool(trial.ResetOK),
		}
		describeDelta(trial.Delta, row)
		rows = append(rows, row)
	}
	return rows
}

func describeDelta(delta snapshot.StateDelta, row retrieval.Row) {
	if delta.Empty() {
		row["effect"] = "no observable change"
		return
	}
	var effects []string
	if delta.ResultCount != nil {
		row["result_count_before"] = strconv.Itoa(delta.ResultCount.Before)
		row["result_count_after"] = strconv.Itoa(delta.ResultCount.After)
		effects = append(effects, "result count changed")
	}
	if delta.URL != nil {
		row["url_after"] = delta.URL.After
		effects = append(effects, "url changed")
	}
	if delta.TableRowCount != nil {
		row["table_rows_before"] = strconv.Itoa(delta.TableRowCount.Before)
		row["table_rows_after"] = strconv.Itoa(delta.TableRowCount.After)
		effects = append(effects, "table rows changed")
	}
	if len(delta.CascadingControls) > 0 {
		effects = append(effects, "cascading control options changed")
	}
	row["effect"] = strings.Join(effects, "; ")
}
