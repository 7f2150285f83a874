// Package report renders run artifacts: run metadata JSON, per-test JSON
// files, and a plain-text summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"surfacecheck/internal/executor"
	"surfacecheck/internal/logging"
)

// Renderer writes artifacts under a base directory, one subdirectory per
// run.
type Renderer struct {
	dir string
}

// NewRenderer builds a renderer rooted at dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// WriteRun renders every artifact for a pipeline result and returns the
// run directory.
func (r *Renderer) WriteRun(result executor.Result) (string, error) {
	name := result.RunID
	if name == "" {
		name = "no-run"
	}
	runDir := filepath.Join(r.dir, "run-"+name)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), result); err != nil {
		return "", err
	}

	if result.Run != nil {
		for _, outcome := range result.Run.Outcomes {
			path := filepath.Join(runDir, "test-"+sanitize(outcome.TestID)+".json")
			if err := writeJSON(path, outcome); err != nil {
				return "", err
			}
		}
		summary := Summary(result.Run)
		if err := os.WriteFile(filepath.Join(runDir, "summary.txt"), []byte(summary), 0644); err != nil {
			return "", fmt.Errorf("failed to write summary: %w", err)
		}
	}

	logging.Executor("wrote run artifacts to %s", runDir)
	return runDir, nil
}

// Summary renders a human-readable run summary.
func Summary(run *executor.TestRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", run.RunID)
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %dms\n\n", run.DurationMs)
	fmt.Fprintf(&b, "Total: %d  Passed: %d  Failed: %d  Errors: %d  Skipped: %d\n\n",
		len(run.Outcomes), run.Passed, run.Failed, run.Errors, run.Skipped)

	for _, o := range run.Outcomes {
		fmt.Fprintf(&b, "[%s] %s (%dms)\n", strings.ToUpper(string(o.Status)), o.TestID, o.DurationMs)
		if o.Reason != "" {
			fmt.Fprintf(&b, "    %s\n", o.Reason)
		}
		if o.Status == executor.StatusFailed || o.Status == executor.StatusPassed {
			fmt.Fprintf(&b, "    observed %d rows, expected %d rows\n", o.ObservedData.Count, o.ExpectedData.Count)
		}
	}
	return b.String()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
