// Package reasoning wraps the language model behind a small completion
// interface. The model is only ever asked to make structural judgments
// (which control matches which field, what steps a test needs); factual
// values always come from the retrieval index.
package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"surfacecheck/internal/config"
	"surfacecheck/internal/logging"
)

// LLMClient defines the interface for LLM providers.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GenAIClient implements LLMClient against Google's Gemini API.
type GenAIClient struct {
	client      *genai.Client
	model       string
	mu          sync.Mutex
	lastRequest time.Time
}

// NewGenAIClient creates a Gemini-backed client from config.
func NewGenAIClient(cfg config.LLMConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Rate limiting: at least 600ms between requests
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 600*time.Millisecond {
		time.Sleep(600*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1), // Low temperature for structured output
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	timer := logging.StartTimer(logging.CategoryAPI, "generate")
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genCfg)
	if err != nil {
		timer.Stop()
		return "", fmt.Errorf("GenAI request failed: %w", err)
	}
	timer.Stop()

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	logging.APIDebug("completion: %d chars from %s", len(text), c.model)
	return text, nil
}

// GetModel returns the current model.
func (c *GenAIClient) GetModel() string {
	return c.model
}
