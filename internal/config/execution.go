package config

import "time"

// ExecutionConfig configures test execution and validation.
type ExecutionConfig struct {
	// BaselineSelector is waited for before every test, to know the page is up.
	BaselineSelector string `yaml:"baseline_selector"`

	// ResultsTimeoutMs bounds the wait for a results indicator after applying
	// a test action.
	ResultsTimeoutMs int `yaml:"results_timeout_ms"`

	// CompareContent additionally checks row content, not just row counts.
	CompareContent bool `yaml:"compare_content"`

	// MaxObstacleDismissals bounds popup dismissal attempts per test.
	MaxObstacleDismissals int `yaml:"max_obstacle_dismissals"`
}

// DefaultExecutionConfig returns sensible defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		BaselineSelector:      "body",
		ResultsTimeoutMs:      10000,
		CompareContent:        false,
		MaxObstacleDismissals: 3,
	}
}

// ResultsTimeout returns the results-indicator wait budget.
func (c ExecutionConfig) ResultsTimeout() time.Duration {
	if c.ResultsTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ResultsTimeoutMs) * time.Millisecond
}
