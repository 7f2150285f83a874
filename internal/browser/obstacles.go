package browser

import (
	"context"

	"surfacecheck/internal/logging"
)

// ObstacleDismisser clears UI obstacles (cookie banners, modals) that would
// otherwise sit between the automation and the page. The contract is
// best-effort: an obstacle is either dismissed or left in place, and the call
// never blocks indefinitely.
type ObstacleDismisser interface {
	Dismiss(ctx context.Context, b Backend) int
}

// SelectorDismisser dismisses obstacles by clicking a fixed list of selectors
// when a visible match exists, up to MaxAttempts clicks per call.
type SelectorDismisser struct {
	Selectors   []string
	MaxAttempts int
}

// NewSelectorDismisser creates a dismisser over the given selectors.
func NewSelectorDismisser(selectors []string, maxAttempts int) *SelectorDismisser {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &SelectorDismisser{Selectors: selectors, MaxAttempts: maxAttempts}
}

// Dismiss clicks visible obstacle selectors and returns how many were
// dismissed. Failures are logged and skipped; the page is never blocked on.
func (s *SelectorDismisser) Dismiss(ctx context.Context, b Backend) int {
	dismissed := 0
	for _, sel := range s.Selectors {
		if dismissed >= s.MaxAttempts {
			break
		}
		infos, err := b.QueryElements(ctx, sel)
		if err != nil {
			logging.BrowserDebug("obstacle probe %q failed: %v", sel, err)
			continue
		}
		visible := false
		for _, info := range infos {
			if info.Visible {
				visible = true
				break
			}
		}
		if !visible {
			continue
		}
		if err := b.Click(ctx, sel); err != nil {
			logging.BrowserDebug("obstacle click %q failed: %v", sel, err)
			continue
		}
		logging.Browser("dismissed obstacle %q", sel)
		dismissed++
	}
	return dismissed
}
