// Package browser provides the UI automation backend: a small tool-invocation
// surface (navigate, click, fill, press-key, query-elements, evaluate-script,
// screenshot, wait-for-selector) backed by a Chrome DevTools session via rod.
// The rest of the system consumes only the Backend interface and assumes each
// call is atomic, returning success/failure plus a payload.
package browser

import (
	"context"
	"encoding/json"
	"time"
)

// ElementInfo is the payload returned per matched element by QueryElements.
type ElementInfo struct {
	Tag         string   `json:"tag"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Text        string   `json:"text"`
	Placeholder string   `json:"placeholder"`
	AriaLabel   string   `json:"ariaLabel"`
	Classes     []string `json:"classes"`
	Options     []string `json:"options"` // Option labels for select-like elements
	Visible     bool     `json:"visible"`
}

// Backend is the tool-invocation protocol the core drives the UI through.
type Backend interface {
	// Navigate loads a URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Fill types text into the first element matching the selector.
	Fill(ctx context.Context, selector, text string) error

	// PressKey sends a named key (Enter, Tab, Escape) to the element.
	PressKey(ctx context.Context, selector, key string) error

	// QueryElements returns structured info for every element matching the
	// selector. A selector that matches nothing returns an empty slice, not
	// an error.
	QueryElements(ctx context.Context, selector string) ([]ElementInfo, error)

	// Evaluate runs a JS function expression in the page and returns its
	// JSON-encoded result.
	Evaluate(ctx context.Context, js string) (json.RawMessage, error)

	// Screenshot captures the viewport and returns an opaque reference to the
	// stored image. Callers must not interpret the reference.
	Screenshot(ctx context.Context, name string) (string, error)

	// WaitForSelector blocks until the selector matches or the timeout lapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
}
