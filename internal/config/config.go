// Package config holds surfacecheck configuration: target application, browser
// backend, LLM and embedding services, exploration limits, and execution policy.
// Configuration is loaded from a YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all surfacecheck configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Target application under validation
	Target TargetConfig `yaml:"target"`

	// Browser automation backend
	Browser BrowserConfig `yaml:"browser"`

	// Reasoning service (LLM)
	LLM LLMConfig `yaml:"llm"`

	// Embedding service
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Exploration settings
	Explore ExploreConfig `yaml:"explore"`

	// Retrieval index settings
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Test execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Durable store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig identifies the application under validation.
type TargetConfig struct {
	URL        string `yaml:"url"`         // Entry page for exploration and replay
	ExportPath string `yaml:"export_path"` // Tab-separated data export (ground truth)
}

// StoreConfig configures the durable object store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	ArtifactsDir string `yaml:"artifacts_dir"` // Screenshots and JSON reports
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "surfacecheck",
		Version: "0.3.0",

		Target: TargetConfig{
			URL: "http://localhost:3000",
		},

		Browser: DefaultBrowserConfig(),

		LLM: LLMConfig{
			Provider: "genai",
			Model:    "gemini-2.0-flash",
			Timeout:  "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			TaskType:       "RETRIEVAL_DOCUMENT",
		},

		Explore: DefaultExploreConfig(),

		Retrieval: RetrievalConfig{
			ChunkSize:     50,
			QueryTopK:     3,
			MinSimilarity: 0.3,
		},

		Execution: DefaultExecutionConfig(),

		Store: StoreConfig{
			DatabasePath: "data/surfacecheck.db",
			ArtifactsDir: "data/artifacts",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides always apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.Embedding.GenAIAPIKey = key
	}
	if key := os.Getenv("SURFACECHECK_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.Embedding.GenAIAPIKey = key
	}
	if url := os.Getenv("SURFACECHECK_TARGET_URL"); url != "" {
		c.Target.URL = url
	}
	if path := os.Getenv("SURFACECHECK_EXPORT"); path != "" {
		c.Target.ExportPath = path
	}
	if path := os.Getenv("SURFACECHECK_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if url := os.Getenv("OLLAMA_ENDPOINT"); url != "" {
		c.Embedding.OllamaEndpoint = url
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// Validate checks that the configuration is usable for a full pipeline run.
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	if c.Target.ExportPath == "" {
		return fmt.Errorf("target.export_path is required")
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be in [-1, 1], got %g", c.Retrieval.MinSimilarity)
	}
	if c.Explore.SampleSize <= 0 {
		return fmt.Errorf("explore.sample_size must be positive, got %d", c.Explore.SampleSize)
	}
	return nil
}
