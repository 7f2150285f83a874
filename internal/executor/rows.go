package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"surfacecheck/internal/retrieval"
)

// extractRowsJS reads the visible result table into row objects keyed by
// lowercased header text. Pages without a table yield an empty array.
const extractRowsJS = `() => {
	const table = document.querySelector('table');
	if (!table) return [];
	const headers = Array.from(table.querySelectorAll('thead th'))
		.map(h => (h.innerText || '').trim().toLowerCase());
	return Array.from(table.querySelectorAll('tbody tr')).map(tr => {
		const row = {};
		Array.from(tr.querySelectorAll('td')).forEach((td, i) => {
			const key = headers[i] || ('col' + i);
			row[key] = (td.innerText || '').trim();
		});
		return row;
	});
}`

// extractRows runs the generic row-extraction query against the page.
func (e *Executor) extractRows(ctx context.Context) ([]retrieval.Row, error) {
	raw, err := e.backend.Evaluate(ctx, extractRowsJS)
	if err != nil {
		return nil, err
	}
	var rows []retrieval.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unexpected row payload: %w", err)
	}
	return rows, nil
}
