// Package llm provides an OpenAI-compatible chat-completion client.
// It implements the Chat Completions API with global defaults from config
// and surfaces upstream HTTP status codes so callers can classify failures
// as retryable (rate limit, quota) or terminal.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/subtuna/engagehub/pkg/config"
)

// --- Public types ---

// Client defines the interface for communicating with an LLM.
type Client interface {
	// Chat sends a chat completion request. If req.Model is empty the global
	// default is used; likewise for Temperature (0) and MaxTokens (0).
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// ChatRequest is the input for a chat completion call.
type ChatRequest struct {
	Model       string  // override; empty → global default
	Temperature float64 // 0 → global default
	MaxTokens   int     // 0 → global default
	Messages    []Message
}

// ChatResponse is the output of a chat completion call.
type ChatResponse struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
	Latency time.Duration
}

// TokenUsage tracks token consumption for a single request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is returned when the upstream responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: api returned status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// StatusCode extracts the upstream HTTP status from err, or 0 if err did not
// originate from an upstream response (network failure, cancelled context).
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// --- OpenAI-compatible HTTP client ---

// OpenAIClient implements Client using the OpenAI Chat Completions API.
// It is compatible with any provider that exposes the same endpoint shape.
type OpenAIClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	defaults   config.LLMConfig
}

// NewOpenAIClient creates a new OpenAI-compatible LLM client.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiURL: apiURL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		defaults: cfg,
	}
}

// Chat sends a chat completion request to the OpenAI-compatible API.
// Request-level overrides take precedence; zero values fall back to global config.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaults.Model
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.defaults.Temperature
	}
	maxTok := req.MaxTokens
	if maxTok == 0 {
		maxTok = c.defaults.MaxTokens
	}

	apiReq := openAIRequest{
		Model:       model,
		Temperature: temp,
		MaxTokens:   maxTok,
		Messages:    req.Messages,
	}

	start := time.Now()
	slog.Debug("llm: chat request",
		slog.String("model", model),
		slog.Float64("temperature", temp),
		slog.Int("max_tokens", maxTok),
		slog.Int("messages", len(req.Messages)),
	)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("llm: api error",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(respBody), 500)),
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("llm: unmarshal response: %w", err)
	}

	result := fromAPIResponse(apiResp)
	result.Latency = time.Since(start)

	slog.Info("llm: chat response",
		slog.String("model", model),
		slog.Int("duration_ms", int(result.Latency.Milliseconds())),
		slog.Int("prompt_tokens", result.Usage.PromptTokens),
		slog.Int("completion_tokens", result.Usage.CompletionTokens),
	)

	return result, nil
}

// --- OpenAI API wire types ---

type openAIRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Messages    []Message `json:"messages"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Message Message `json:"message"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func fromAPIResponse(resp openAIResponse) *ChatResponse {
	result := &ChatResponse{
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
