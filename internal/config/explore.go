package config

import "time"

// ExploreConfig configures control discovery and exploration.
type ExploreConfig struct {
	// SampleSize is the number of options exercised per control (first-k, in
	// discovery order). Bounds exploration cost at the price of coverage.
	SampleSize int `yaml:"sample_size"`

	// Heuristics is the selector catalog used for discovery and capture.
	// Empty entries fall back to the built-in catalog.
	Heuristics HeuristicCatalog `yaml:"heuristics"`

	// Stabilization settings: the page is considered settled when the DOM
	// mutation counter has been quiet for QuietMs, or StabilizeTimeoutMs elapses.
	QuietMs             int `yaml:"quiet_ms"`
	StabilizeTimeoutMs  int `yaml:"stabilize_timeout_ms"`
	FallbackSettleMs    int `yaml:"fallback_settle_ms"`
	LearnTimeoutSeconds int `yaml:"learn_timeout_seconds"` // Whole learning phase budget
}

// HeuristicCatalog lists the ordered selector heuristics per concern.
// Order matters: first match wins for result-count lookups, and discovery
// walks dropdown/search heuristics in sequence.
type HeuristicCatalog struct {
	Dropdowns    []string `yaml:"dropdowns"`
	SearchBoxes  []string `yaml:"search_boxes"`
	ResultCounts []string `yaml:"result_counts"`
	TableRows    string   `yaml:"table_rows"`
	ResetButtons []string `yaml:"reset_buttons"`
	Obstacles    []string `yaml:"obstacles"`
}

// DefaultExploreConfig returns sensible defaults.
func DefaultExploreConfig() ExploreConfig {
	return ExploreConfig{
		SampleSize:          2,
		QuietMs:             300,
		StabilizeTimeoutMs:  5000,
		FallbackSettleMs:    1500,
		LearnTimeoutSeconds: 600,
		Heuristics:          DefaultHeuristicCatalog(),
	}
}

// DefaultHeuristicCatalog returns the built-in selector catalog.
func DefaultHeuristicCatalog() HeuristicCatalog {
	return HeuristicCatalog{
		Dropdowns: []string{
			"select",
			"[role=\"listbox\"]",
			"[role=\"combobox\"]",
			".dropdown select",
			".filter select",
		},
		SearchBoxes: []string{
			"input[type=\"search\"]",
			"input[placeholder*=\"search\" i]",
			"input[placeholder*=\"filter\" i]",
			"input[aria-label*=\"search\" i]",
			".search input[type=\"text\"]",
		},
		ResultCounts: []string{
			"[data-testid=\"result-count\"]",
			".result-count",
			".results-count",
			".showing-results",
			".pagination-info",
			"[aria-live=\"polite\"]",
		},
		TableRows: "table tbody tr, [role=\"row\"]:not([role=\"columnheader\"]), .result-row",
		ResetButtons: []string{
			"button[type=\"reset\"]",
			"[data-testid=\"clear-filters\"]",
			".clear-filters",
			".reset-filters",
		},
		Obstacles: []string{
			"[data-testid=\"cookie-banner\"] button",
			".cookie-consent button",
			".modal-close",
			"[aria-label=\"Close\"]",
			"[aria-label=\"Dismiss\"]",
		},
	}
}

// Merge overlays non-empty fields of the catalog onto the built-in defaults.
func (h HeuristicCatalog) Merge() HeuristicCatalog {
	def := DefaultHeuristicCatalog()
	if len(h.Dropdowns) > 0 {
		def.Dropdowns = h.Dropdowns
	}
	if len(h.SearchBoxes) > 0 {
		def.SearchBoxes = h.SearchBoxes
	}
	if len(h.ResultCounts) > 0 {
		def.ResultCounts = h.ResultCounts
	}
	if h.TableRows != "" {
		def.TableRows = h.TableRows
	}
	if len(h.ResetButtons) > 0 {
		def.ResetButtons = h.ResetButtons
	}
	if len(h.Obstacles) > 0 {
		def.Obstacles = h.Obstacles
	}
	return def
}

// QuietPeriod returns the DOM quiet period used by the stability predicate.
func (c ExploreConfig) QuietPeriod() time.Duration {
	if c.QuietMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.QuietMs) * time.Millisecond
}

// StabilizeTimeout returns the overall stabilization budget.
func (c ExploreConfig) StabilizeTimeout() time.Duration {
	if c.StabilizeTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StabilizeTimeoutMs) * time.Millisecond
}

// FallbackSettle returns the fixed settle delay used when the mutation
// counter cannot be installed.
func (c ExploreConfig) FallbackSettle() time.Duration {
	if c.FallbackSettleMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.FallbackSettleMs) * time.Millisecond
}

// LearnTimeout returns the whole-run learning budget.
func (c ExploreConfig) LearnTimeout() time.Duration {
	if c.LearnTimeoutSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.LearnTimeoutSeconds) * time.Second
}
