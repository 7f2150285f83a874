package browser

import (
	"context"
	"encoding/json"
	"fmt"
)

// SelectOption picks a dropdown option by visible label or value,
// dispatching the input and change events frameworks listen for.
func SelectOption(ctx context.Context, b Backend, selector, option string) error {
	selJSON, _ := json.Marshal(selector)
	optJSON, _ := json.Marshal(option)
	js := fmt.Sprintf(`() => {
		const el = document.querySelector(%s);
		if (!el) return { error: "not found" };
		const want = %s;
		const opts = Array.from(el.options || []);
		const match = opts.find(o => o.label === want || o.text.trim() === want || o.value === want);
		if (!match) return { error: "option not found" };
		el.value = match.value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return { ok: true };
	}`, selJSON, optJSON)

	raw, err := b.Evaluate(ctx, js)
	if err != nil {
		return err
	}
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("unexpected select payload: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("selecting %q on %s: %s", option, selector, result.Error)
	}
	return nil
}

// FillAndSubmit types text into a field and presses Enter.
func FillAndSubmit(ctx context.Context, b Backend, selector, text string) error {
	if err := b.Fill(ctx, selector, text); err != nil {
		return err
	}
	return b.PressKey(ctx, selector, "Enter")
}
