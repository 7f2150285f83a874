package config

// LLMConfig configures the reasoning service.
type LLMConfig struct {
	Provider string `yaml:"provider"` // genai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	// Provider: "genai" or "ollama"
	Provider string `yaml:"provider"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// TaskType for GenAI: "SEMANTIC_SIMILARITY", "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT"
	TaskType string `yaml:"task_type"`
}

// RetrievalConfig configures the retrieval index.
type RetrievalConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`     // Rows per embedded chunk
	QueryTopK     int     `yaml:"query_top_k"`    // Records returned per query
	MinSimilarity float64 `yaml:"min_similarity"` // Cosine threshold below which a query misses
}
