// Package export parses tab-separated data exports, the gold standard the
// rest of the pipeline validates the UI against.
package export

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Record is one parsed export row, keyed by header field.
type Record map[string]string

// Export is a parsed data export: the header fields in file order plus the
// records beneath them.
type Export struct {
	SourceFile string
	Fields     []string
	Records    []Record
}

// ParseFile reads and parses a tab-separated export from disk.
func ParseFile(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	exp := Parse(string(data))
	exp.SourceFile = path
	return exp, nil
}

// Parse parses tab-separated text: first non-blank line is the header, each
// further non-blank line one record. Fewer than 2 non-blank lines yields zero
// records.
func Parse(text string) *Export {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) == "" {
			continue
		}
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}

	exp := &Export{}
	if len(lines) < 2 {
		if len(lines) == 1 {
			exp.Fields = splitFields(lines[0])
		}
		return exp
	}

	exp.Fields = splitFields(lines[0])
	for _, line := range lines[1:] {
		values := strings.Split(line, "\t")
		rec := make(Record, len(exp.Fields))
		for i, field := range exp.Fields {
			if i < len(values) {
				rec[field] = strings.TrimSpace(values[i])
			} else {
				rec[field] = ""
			}
		}
		exp.Records = append(exp.Records, rec)
	}
	return exp
}

func splitFields(header string) []string {
	raw := strings.Split(header, "\t")
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		fields = append(fields, strings.TrimSpace(f))
	}
	return fields
}

// FieldSummary describes one export column for the mapping stage.
type FieldSummary struct {
	Name          string   `json:"name"`
	DistinctCount int      `json:"distinct_count"`
	SampleValues  []string `json:"sample_values"`
}

// Summarize builds per-field summaries: distinct value counts and up to
// maxSamples representative values in first-seen order.
func (e *Export) Summarize(maxSamples int) []FieldSummary {
	if maxSamples <= 0 {
		maxSamples = 5
	}
	summaries := make([]FieldSummary, 0, len(e.Fields))
	for _, field := range e.Fields {
		seen := make(map[string]bool)
		var samples []string
		for _, rec := range e.Records {
			v := rec[field]
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			if len(samples) < maxSamples {
				samples = append(samples, v)
			}
		}
		summaries = append(summaries, FieldSummary{
			Name:          field,
			DistinctCount: len(seen),
			SampleValues:  samples,
		})
	}
	return summaries
}

// SummaryText renders the field summaries as prompt-ready text.
func (e *Export) SummaryText(maxSamples int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Data export %s: %d records, %d fields\n", e.SourceFile, len(e.Records), len(e.Fields))
	for _, s := range e.Summarize(maxSamples) {
		fmt.Fprintf(&sb, "- %s (%d distinct): %s\n", s.Name, s.DistinctCount, strings.Join(s.SampleValues, ", "))
	}
	return sb.String()
}

// ValuesFor returns the distinct values of one field, sorted, capped at limit.
func (e *Export) ValuesFor(field string, limit int) []string {
	seen := make(map[string]bool)
	for _, rec := range e.Records {
		if v := rec[field]; v != "" {
			seen[v] = true
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	return values
}
