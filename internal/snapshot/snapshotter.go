package snapshot

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"surfacecheck/internal/browser"
	"surfacecheck/internal/config"
	"surfacecheck/internal/logging"
)

var (
	countPattern     = regexp.MustCompile(`(\d[\d,]*)`)
	qualifierPattern = regexp.MustCompile(`(?i)\b(results?|showing|entries|matches|of|found)\b`)
)

// Snapshotter captures UISnapshots through the automation backend using an
// ordered heuristic catalog. Capture is all-or-nothing: individual heuristic
// misses degrade to empty values, but a backend that cannot be queried at all
// yields a CaptureError and no snapshot.
type Snapshotter struct {
	backend browser.Backend
	catalog config.HeuristicCatalog
}

// NewSnapshotter creates a snapshotter over the backend and catalog.
func NewSnapshotter(backend browser.Backend, catalog config.HeuristicCatalog) *Snapshotter {
	return &Snapshotter{backend: backend, catalog: catalog.Merge()}
}

// Capture reads the current UI state into a fresh snapshot.
func (s *Snapshotter) Capture(ctx context.Context) (*UISnapshot, error) {
	timer := logging.StartTimer(logging.CategorySnapshot, "Capture")
	defer timer.Stop()

	current, err := s.backend.CurrentURL(ctx)
	if err != nil {
		return nil, &CaptureError{Op: "current_url", Err: err}
	}

	snap := &UISnapshot{
		URL:           current,
		QueryParams:   parseQueryParams(current),
		ControlStates: make(map[string]ControlState),
		CapturedAt:    time.Now(),
	}

	// Result-count heuristics: first selector whose text matches a count
	// pattern with a qualifier wins; the rest are not scanned.
	s.captureResultCount(ctx, snap)

	// Control-like selectors: each matched multi-option element contributes
	// its option set, keyed by derived selector.
	s.captureControlStates(ctx, snap)

	// Generic table-row count.
	rows, err := s.backend.QueryElements(ctx, s.catalog.TableRows)
	if err != nil {
		logging.SnapshotDebug("row count heuristic failed: %v", err)
	} else {
		snap.TableRowCount = len(rows)
	}

	ref, err := s.backend.Screenshot(ctx, "snapshot")
	if err != nil {
		return nil, &CaptureError{Op: "screenshot", Err: err}
	}
	snap.ScreenshotRef = ref

	logging.SnapshotDebug("captured url=%s result_count=%v rows=%d controls=%d",
		snap.URL, snap.ResultCount, snap.TableRowCount, len(snap.ControlStates))
	return snap, nil
}

func (s *Snapshotter) captureResultCount(ctx context.Context, snap *UISnapshot) {
	for _, sel := range s.catalog.ResultCounts {
		infos, err := s.backend.QueryElements(ctx, sel)
		if err != nil {
			logging.SnapshotDebug("result-count heuristic %q failed: %v", sel, err)
			continue
		}
		for _, info := range infos {
			if count, raw, ok := extractCount(info.Text); ok {
				snap.ResultCount = &count
				snap.ResultCountRaw = raw
				return // First match wins
			}
		}
	}
}

func (s *Snapshotter) captureControlStates(ctx context.Context, snap *UISnapshot) {
	for _, sel := range s.catalog.Dropdowns {
		infos, err := s.backend.QueryElements(ctx, sel)
		if err != nil {
			logging.SnapshotDebug("control heuristic %q failed: %v", sel, err)
			continue
		}
		for _, info := range infos {
			if len(info.Options) == 0 {
				continue
			}
			key := browser.SelectorFor(info, sel)
			if _, seen := snap.ControlStates[key]; seen {
				continue
			}
			opts := make([]string, len(info.Options))
			copy(opts, info.Options)
			snap.ControlStates[key] = ControlState{Options: opts}
		}
	}
}

// extractCount pulls the first integer out of text that carries a
// result-count qualifier ("42 results", "showing 10 of 42").
func extractCount(text string) (int, string, bool) {
	if text == "" || !qualifierPattern.MatchString(text) {
		return 0, "", false
	}
	m := countPattern.FindString(text)
	if m == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(text), true
}

// parseQueryParams decomposes a URL's query string into a flat map, keeping
// the first value per key. An unparseable URL yields an empty map.
func parseQueryParams(raw string) map[string]string {
	params := make(map[string]string)
	u, err := url.Parse(raw)
	if err != nil {
		return params
	}
	for key, vals := range u.Query() {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}
	return params
}
