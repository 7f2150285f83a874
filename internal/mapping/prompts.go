package mapping

const mappingSystemPrompt = `You map data export fields to web UI controls.
You are given a summary of the data export, the list of discovered controls,
and indexed data retrieved for each control. Propose a correspondence only
when the retrieved data supports it.

Respond with a JSON array only. Each element:
{
  "data_field": "<field name from the export>",
  "source_file": "<export file name>",
  "control_label": "<control label>",
  "control_selector": "<control selector, exactly as given>",
  "confidence": <0.0 to 1.0>,
  "rationale": "<one sentence>",
  "sample_values": ["<values seen in the retrieved data>"]
}

Do not invent fields, selectors, or values. Omit controls with no plausible
field. An empty array means no correspondence exists.`

const mappingPromptTemplate = `Data export summary:
%s

Discovered controls:
%s

Retrieved data per control:
%s

Map each data field to the control that filters or searches it.`

const synthesisSystemPrompt = `You write test specifications for a web UI
filter or search control. You are given one field/control correspondence
and the values observed in the underlying data.

Respond with a JSON array of one or more tests:
{
  "kind": "filter" | "search" | "sort" | "numericFilter",
  "priority": "high" | "medium" | "low",
  "target_field": "<field name>",
  "target_selector": "<control selector>",
  "test_values": ["<values chosen from the observed list ONLY>"],
  "steps": ["<human readable step>"],
  "expected_result_descriptors": ["<what should be observed>"]
}

Every test value MUST appear verbatim in the observed value list. Never
fabricate a value.`

const synthesisPromptTemplate = `Field: %s
Control: %q (selector %s)
Observed values: %s

Write tests that apply one or two of the observed values through the
control and verify the result set matches the data.`
