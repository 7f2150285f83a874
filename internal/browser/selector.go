package browser

// SelectorFor derives a stable selector for a matched element: element id
// first, then first class token, then the heuristic selector that matched it.
// This is a heuristic, not a uniqueness guarantee; callers deduplicate by the
// derived selector string.
func SelectorFor(info ElementInfo, heuristic string) string {
	if info.ID != "" {
		return "#" + info.ID
	}
	if len(info.Classes) > 0 {
		return info.Tag + "." + info.Classes[0]
	}
	return heuristic
}
