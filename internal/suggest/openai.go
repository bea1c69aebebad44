package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"

	"go.uber.org/zap"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (groq, openrouter, a local server).
type OpenAIProvider struct {
	name       string
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

// OpenAIConfig for the OpenAI-compatible provider.
type OpenAIConfig struct {
	Name       string // provider label, e.g. "groq"
	APIKey     string
	BaseURL    string // e.g. "https://api.groq.com/openai/v1"
	ModelName  string
	MaxRetries int
	RetryDelay time.Duration
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIProvider creates a chat-completions-backed suggester.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Name)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s base URL is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	logger.Info("Chat-completions suggestion provider initialized",
		zap.String("provider", cfg.Name),
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &OpenAIProvider{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		modelName:  cfg.ModelName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Close implements Provider.
func (p *OpenAIProvider) Close() error { return nil }

// Suggest asks the chat endpoint for failure-mode candidates.
func (p *OpenAIProvider) Suggest(ctx context.Context, input Input) ([]models.Suggestion, error) {
	prompt := BuildPrompt(input)

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("Retrying chat request",
				zap.String("provider", p.name),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.maxRetries))
			time.Sleep(p.retryDelay)
		}

		reqBody := chatRequest{
			Model: p.modelName,
			Messages: []chatMessage{
				{Role: "system", Content: SystemInstruction},
				{Role: "user", Content: prompt},
			},
			Stream:      false,
			Temperature: 0.3,
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			lastErr = fmt.Errorf("failed to marshal request: %w", err)
			continue
		}

		req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s API error: %w", p.name, err)
			p.logger.Error("Chat API error", zap.String("provider", p.name), zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s API returned status %d: %s", p.name, resp.StatusCode, string(body))
			p.logger.Error("Chat API error",
				zap.String("provider", p.name),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
				zap.Int("attempt", attempt+1))
			continue
		}

		var chatResp chatResponse
		if err := json.Unmarshal(body, &chatResp); err != nil {
			lastErr = fmt.Errorf("failed to parse response: %w", err)
			continue
		}

		if len(chatResp.Choices) == 0 {
			lastErr = fmt.Errorf("empty response from %s", p.name)
			continue
		}

		suggestions, err := ParseSuggestions(chatResp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			p.logger.Error("Failed to parse suggestion response",
				zap.String("provider", p.name),
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			continue
		}

		return suggestions, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", p.maxRetries, lastErr)
}
