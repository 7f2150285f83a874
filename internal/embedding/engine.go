// Package embedding provides vector embedding generation for the retrieval
// index. Supports two backends: Ollama (local) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"surfacecheck/internal/config"
	"surfacecheck/internal/logging"
)

// MaxInputChars is the hard ceiling on embedding input length. Longer text is
// truncated before sending, never rejected.
const MaxInputChars = 8000

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	logging.Embedding("creating embedding engine with provider=%s", cfg.Provider)

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}

// Truncate enforces the input length ceiling.
func Truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	cut := MaxInputChars
	// Back off to a rune boundary so the cut never produces invalid UTF-8.
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	logging.Get(logging.CategoryEmbedding).Warn("embedding input truncated from %d to %d chars", len(text), cut)
	return text[:cut]
}

// CosineSimilarity calculates the cosine similarity between two vectors:
// dot product over the product of magnitudes. A zero-magnitude vector has an
// undefined similarity and yields an error instead of NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cannot compare zero-length vectors")
	}

	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, fmt.Errorf("cosine similarity undefined for zero-magnitude vector")
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
