// Package browsertest provides a scripted in-memory Backend for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"surfacecheck/internal/browser"
)

// FakeBackend is a scriptable browser.Backend. Element maps and hooks can be
// mutated mid-test to simulate page state changes.
type FakeBackend struct {
	URL      string
	Elements map[string][]browser.ElementInfo

	// Optional per-call hooks; when nil the default recording behavior runs.
	ClickFunc    func(selector string) error
	FillFunc     func(selector, text string) error
	EvalFunc     func(js string) (json.RawMessage, error)
	NavigateFunc func(url string) error

	// Forced failures.
	QueryErr      map[string]error
	CurrentURLErr error
	ScreenshotErr error

	// Recorded interactions.
	Clicks      []string
	Fills       [][2]string
	Keys        [][2]string
	Navigations []string
	Screenshots int
}

// NewFakeBackend returns an empty fake at the given URL.
func NewFakeBackend(url string) *FakeBackend {
	return &FakeBackend{
		URL:      url,
		Elements: make(map[string][]browser.ElementInfo),
		QueryErr: make(map[string]error),
	}
}

func (f *FakeBackend) Navigate(_ context.Context, url string) error {
	f.Navigations = append(f.Navigations, url)
	if f.NavigateFunc != nil {
		return f.NavigateFunc(url)
	}
	f.URL = url
	return nil
}

func (f *FakeBackend) CurrentURL(_ context.Context) (string, error) {
	if f.CurrentURLErr != nil {
		return "", f.CurrentURLErr
	}
	return f.URL, nil
}

func (f *FakeBackend) Click(_ context.Context, selector string) error {
	f.Clicks = append(f.Clicks, selector)
	if f.ClickFunc != nil {
		return f.ClickFunc(selector)
	}
	return nil
}

func (f *FakeBackend) Fill(_ context.Context, selector, text string) error {
	f.Fills = append(f.Fills, [2]string{selector, text})
	if f.FillFunc != nil {
		return f.FillFunc(selector, text)
	}
	return nil
}

func (f *FakeBackend) PressKey(_ context.Context, selector, key string) error {
	f.Keys = append(f.Keys, [2]string{selector, key})
	return nil
}

func (f *FakeBackend) QueryElements(_ context.Context, selector string) ([]browser.ElementInfo, error) {
	if err, ok := f.QueryErr[selector]; ok {
		return nil, err
	}
	return f.Elements[selector], nil
}

func (f *FakeBackend) Evaluate(_ context.Context, js string) (json.RawMessage, error) {
	if f.EvalFunc != nil {
		return f.EvalFunc(js)
	}
	return json.RawMessage("null"), nil
}

func (f *FakeBackend) Screenshot(_ context.Context, name string) (string, error) {
	if f.ScreenshotErr != nil {
		return "", f.ScreenshotErr
	}
	f.Screenshots++
	return fmt.Sprintf("fake://%s/%d", name, f.Screenshots), nil
}

func (f *FakeBackend) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	if err, ok := f.QueryErr[selector]; ok {
		return err
	}
	if len(f.Elements[selector]) == 0 {
		return fmt.Errorf("selector %q never appeared", selector)
	}
	return nil
}
