// Package retrieval maintains an in-memory embedding index over ingested
// row chunks. Every downstream value judgment (which option to pick, what
// count to expect) is answered by querying this index, never by asking the
// language model to recall data on its own.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"surfacecheck/internal/embedding"
	"surfacecheck/internal/logging"
)

// DefaultChunkSize bounds how many rows are rendered into a single
// embedded document.
const DefaultChunkSize = 50

// Row is a single ingested record, field name to string value.
type Row map[string]string

// Entry is one indexed chunk: the rows it carries, the text that was
// embedded, and the resulting vector.
type Entry struct {
	ID           string    `json:"id"`
	SourceLabel  string    `json:"source_label"`
	Rows         []Row     `json:"rows"`
	RenderedText string    `json:"rendered_text"`
	Embedding    []float32 `json:"embedding"`
}

// IndexingError marks a fatal ingestion failure. Indexing is
// all-or-nothing per source: a failed chunk poisons the whole batch.
type IndexingError struct {
	Source string
	Err    error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing %s: %v", e.Source, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// MissError is returned by Query when no entry clears the similarity
// threshold. Callers treat it as "the index knows nothing relevant",
// which is distinct from an infrastructure failure.
type MissError struct {
	Query     string
	Best      float64
	Threshold float64
}

func (e *MissError) Error() string {
	return fmt.Sprintf("no indexed data relevant to %q (best similarity %.3f, threshold %.3f)", e.Query, e.Best, e.Threshold)
}

// Index holds embedded chunks and answers similarity queries with a
// linear scan. Entry counts here are hundreds, not millions, so a scan
// is both simple and fast enough.
type Index struct {
	engine    embedding.Engine
	chunkSize int
	dims      int
	entries   []Entry
}

// NewIndex builds an empty index over the given engine. chunkSize <= 0
// falls back to DefaultChunkSize.
func NewIndex(engine embedding.Engine, chunkSize int) *Index {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Index{
		engine:    engine,
		chunkSize: chunkSize,
		dims:      engine.Dimensions(),
	}
}

// Len reports the number of indexed entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Entries returns a copy of the indexed entries, for persistence.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// Restore replaces the index contents with previously persisted entries.
// Entries whose vectors do not match the engine's dimensionality are
// rejected, since a mixed index would make every query comparison invalid.
func (ix *Index) Restore(entries []Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != ix.dims {
			return &IndexingError{
				Source: e.SourceLabel,
				Err:    fmt.Errorf("restored entry %s has %d dimensions, engine produces %d", e.ID, len(e.Embedding), ix.dims),
			}
		}
	}
	ix.entries = make([]Entry, len(entries))
	copy(ix.entries, entries)
	return nil
}

// Ingest chunks rows, renders each chunk to text, embeds it, and appends
// the resulting entries. Any failure aborts the batch and leaves the
// index as it was before the call.
func (ix *Index) Ingest(ctx context.Context, sourceLabel string, rows []Row) error {
	if len(rows) == 0 {
		return &IndexingError{Source: sourceLabel, Err: fmt.Errorf("nothing to ingest")}
	}

	timer := logging.StartTimer(logging.CategoryRetrieval, fmt.Sprintf("ingest %s", sourceLabel))

	var staged []Entry
	for start := 0; start < len(rows); start += ix.chunkSize {
		end := start + ix.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		text := RenderRows(chunk)
		vec, err := ix.engine.Embed(ctx, text)
		if err != nil {
			return &IndexingError{Source: sourceLabel, Err: fmt.Errorf("embedding chunk %d: %w", len(staged), err)}
		}
		if len(vec) != ix.dims {
			return &IndexingError{
				Source: sourceLabel,
				Err:    fmt.Errorf("chunk %d: engine returned %d dimensions, expected %d", len(staged), len(vec), ix.dims),
			}
		}

		staged = append(staged, Entry{
			ID:           uuid.New().String(),
			SourceLabel:  sourceLabel,
			Rows:         chunk,
			RenderedText: text,
			Embedding:    vec,
		})
	}

	ix.entries = append(ix.entries, staged...)
	logging.Retrieval("ingested %s: %d rows in %d chunks", sourceLabel, len(rows), len(staged))
	timer.StopWithInfo()
	return nil
}

// Query embeds the query text and returns the rows of the top-k entries
// whose cosine similarity clears minSimilarity, flattened in descending
// similarity order. A miss (nothing clears the threshold) is a
// *MissError, not a silent empty result.
func (ix *Index) Query(ctx context.Context, text string, topK int, minSimilarity float64) ([]Row, error) {
	if topK <= 0 {
		topK = 1
	}
	qvec, err := ix.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	type scored struct {
		entry *Entry
		sim   float64
	}
	var (
		hits []scored
		best = -1.0
	)
	for i := range ix.entries {
		sim, err := embedding.CosineSimilarity(qvec, ix.entries[i].Embedding)
		if err != nil {
			// Degenerate vectors cannot be ranked; skip rather than
			// let one bad entry fail the whole query.
			logging.Retrieval("skipping entry %s: %v", ix.entries[i].ID, err)
			continue
		}
		if sim > best {
			best = sim
		}
		if sim >= minSimilarity {
			hits = append(hits, scored{entry: &ix.entries[i], sim: sim})
		}
	}

	if len(hits) == 0 {
		return nil, &MissError{Query: text, Best: best, Threshold: minSimilarity}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].sim > hits[b].sim })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	var rows []Row
	for _, h := range hits {
		rows = append(rows, h.entry.Rows...)
	}
	logging.Retrieval("query %q: %d entries above %.2f, returning %d rows", text, len(hits), minSimilarity, len(rows))
	return rows, nil
}

// RenderRows produces the canonical text form of a chunk: one line per
// row, fields as "name: value" pairs in sorted field order so the same
// rows always render to the same text.
func RenderRows(rows []Row) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fields := make([]string, 0, len(row))
		for name := range row {
			fields = append(fields, name)
		}
		sort.Strings(fields)
		for j, name := range fields {
			if j > 0 {
				b.WriteString("; ")
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(row[name])
		}
	}
	return b.String()
}

// DistinctValues collects the distinct values of a field across rows,
// sorted, capped at limit (0 means no cap). Used when synthesizing
// queries and expectations from retrieved rows.
func DistinctValues(rows []Row, field string, limit int) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		if v, ok := row[field]; ok && v != "" {
			seen[v] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
