package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"surfacecheck/internal/logging"
)

// installObserverJS starts (or restarts) a DOM mutation counter on the
// page. The counter is what the stability poll reads.
const installObserverJS = `() => {
	window.__scMutations = 0;
	if (window.__scObserver) {
		window.__scObserver.disconnect();
	}
	window.__scObserver = new MutationObserver((records) => {
		window.__scMutations += records.length;
	});
	window.__scObserver.observe(document.documentElement, {
		childList: true,
		subtree: true,
		attributes: true,
		characterData: true,
	});
	return true;
}`

const readMutationsJS = `() => window.__scMutations || 0`

// waitForStability blocks until the DOM mutation counter has been quiet
// for the configured period, or the stabilization timeout lapses. When the
// observer cannot be installed (page without script access, mid-navigation)
// it falls back to a fixed settle delay. Never fails: a page that will not
// settle is proceeded against after the timeout.
func (e *Explorer) waitForStability(ctx context.Context) {
	if _, err := e.backend.Evaluate(ctx, installObserverJS); err != nil {
		logging.ExplorerDebug("mutation observer unavailable, settling for %v: %v", e.cfg.FallbackSettle(), err)
		sleep(ctx, e.cfg.FallbackSettle())
		return
	}

	var (
		quiet     = e.cfg.QuietPeriod()
		deadline  = time.Now().Add(e.cfg.StabilizeTimeout())
		interval  = 100 * time.Millisecond
		lastCount = -1
		quietAt   = time.Now()
	)
	if interval > quiet {
		interval = quiet
	}

	for {
		if !sleep(ctx, interval) {
			return
		}
		count, err := e.readMutationCount(ctx)
		if err != nil {
			logging.ExplorerDebug("mutation poll failed, settling for %v: %v", e.cfg.FallbackSettle(), err)
			sleep(ctx, e.cfg.FallbackSettle())
			return
		}
		if count != lastCount {
			lastCount = count
			quietAt = time.Now()
		}
		if time.Since(quietAt) >= quiet {
			return
		}
		if time.Now().After(deadline) {
			logging.Explorer("page did not settle within %v, proceeding", e.cfg.StabilizeTimeout())
			return
		}
	}
}

func (e *Explorer) readMutationCount(ctx context.Context) (int, error) {
	raw, err := e.backend.Evaluate(ctx, readMutationsJS)
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("unexpected mutation counter payload: %w", err)
	}
	return count, nil
}

// sleep waits for d or context cancellation, reporting false when
// cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
