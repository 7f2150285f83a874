package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"surfacecheck/internal/config"
	"surfacecheck/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Driver is the rod-backed Backend implementation. It owns a single Chrome
// page: the whole pipeline shares one session, so calls must be sequenced by
// the caller (see the single-threaded control flow in the pipeline).
type Driver struct {
	cfg        config.BrowserConfig
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// NewDriver creates a driver from browser configuration.
func NewDriver(cfg config.BrowserConfig) *Driver {
	return &Driver{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one, then opens the
// single working page.
func (d *Driver) Start(ctx context.Context) error {
	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil // Browser is healthy
		}
		logging.Browser("stale browser connection detected, reconnecting")
		_ = d.browser.Close()
		d.browser = nil
		d.page = nil
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" && len(d.cfg.Launch) > 0 {
		bin := d.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(d.cfg.Headless)
		for _, rawFlag := range d.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Retry without the extra flags before giving up
			fallback := launcher.New().Bin(bin).Headless(d.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.GetViewportWidth(),
		Height:            d.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("failed to set viewport: %v", err)
	}

	d.browser = browser
	d.page = page
	d.controlURL = controlURL
	logging.Browser("connected to chrome at %s", controlURL)
	return nil
}

// Shutdown closes the page and the browser.
func (d *Driver) Shutdown(ctx context.Context) error {
	var err error
	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.controlURL = ""
	return err
}

// ControlURL returns the WebSocket debugger URL.
func (d *Driver) ControlURL() string {
	return d.controlURL
}

func (d *Driver) currentPage() (*rod.Page, error) {
	if d.page == nil {
		return nil, fmt.Errorf("browser not started")
	}
	return d.page, nil
}

// Navigate loads a URL and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	logging.BrowserDebug("navigate %s", url)
	if err := page.Context(ctx).Timeout(d.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return page.Context(ctx).Timeout(d.cfg.NavigationTimeout()).WaitLoad()
}

// CurrentURL reports the page's current location.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	page, err := d.currentPage()
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Click clicks the first element matching the selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found %q: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Fill types text into the first element matching the selector, replacing any
// existing value.
func (d *Driver) Fill(ctx context.Context, selector, text string) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(text)
}

// PressKey sends a named key to the element.
func (d *Driver) PressKey(ctx context.Context, selector, key string) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found %q: %w", selector, err)
	}

	var k input.Key
	switch key {
	case "Enter":
		k = input.Enter
	case "Tab":
		k = input.Tab
	case "Escape":
		k = input.Escape
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return el.Type(k)
}

// QueryElements returns structured info for every element matching the
// selector. The whole enumeration happens in one page evaluation.
func (d *Driver) QueryElements(ctx context.Context, selector string) ([]ElementInfo, error) {
	page, err := d.currentPage()
	if err != nil {
		return nil, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `
		(sel) => {
			let nodes;
			try {
				nodes = Array.from(document.querySelectorAll(sel));
			} catch (e) {
				return { error: String(e) };
			}
			return nodes.map((el) => {
				const style = window.getComputedStyle(el);
				const rect = el.getBoundingClientRect();
				const options = [];
				if (el.tagName === 'SELECT') {
					for (const opt of el.options) options.push(opt.label || opt.value);
				} else if (el.getAttribute('role') === 'listbox' || el.getAttribute('role') === 'combobox') {
					for (const opt of el.querySelectorAll('[role="option"], option')) {
						options.push((opt.innerText || opt.textContent || '').trim());
					}
				}
				return {
					tag: el.tagName.toLowerCase(),
					id: el.id || '',
					name: el.getAttribute('name') || '',
					text: (el.innerText || '').slice(0, 256),
					placeholder: el.getAttribute('placeholder') || '',
					ariaLabel: el.getAttribute('aria-label') || '',
					classes: Array.from(el.classList),
					options: options,
					visible: style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0
				};
			});
		}
		`,
		JSArgs:       []interface{}{selector},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal query result: %w", err)
	}

	// An invalid selector comes back as {error: ...} rather than an array.
	var errPayload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &errPayload); err == nil && errPayload.Error != "" {
		return nil, fmt.Errorf("query %q: %s", selector, errPayload.Error)
	}

	var infos []ElementInfo
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return infos, nil
}

// Evaluate runs a JS function expression and returns its JSON-encoded result.
func (d *Driver) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	page, err := d.currentPage()
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal evaluate result: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Screenshot captures the viewport to the screenshot directory and returns
// the file path as an opaque reference.
func (d *Driver) Screenshot(ctx context.Context, name string) (string, error) {
	page, err := d.currentPage()
	if err != nil {
		return "", err
	}
	data, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	dir := d.cfg.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", sanitizeName(name), time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// WaitForSelector blocks until the selector matches or the timeout lapses.
func (d *Driver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	_, err = page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
