package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiProvider proposes failure modes through the Gemini API.
type GeminiProvider struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	logger     *zap.Logger
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// GeminiConfig for the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	ModelName  string // Default: "gemini-2.0-flash-exp"
	MaxRetries int
	RetryDelay time.Duration
}

// NewGeminiProvider creates a Gemini-backed suggester.
func NewGeminiProvider(cfg GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash-exp"
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemInstruction)},
	}

	model.ResponseMIMEType = "application/json"

	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.3),
		TopP:            genai.Ptr[float32](0.9),
		TopK:            genai.Ptr[int32](40),
		MaxOutputTokens: genai.Ptr[int32](500),
	}

	logger.Info("Gemini suggestion provider initialized",
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &GeminiProvider{
		client:     client,
		model:      model,
		logger:     logger,
		modelName:  cfg.ModelName,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Close implements Provider.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Suggest asks Gemini for failure-mode candidates.
func (p *GeminiProvider) Suggest(ctx context.Context, input Input) ([]models.Suggestion, error) {
	prompt := BuildPrompt(input)

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("Retrying Gemini request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.maxRetries))
			time.Sleep(p.retryDelay)
		}

		resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("gemini API error: %w", err)
			p.logger.Error("Gemini API error", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = fmt.Errorf("empty response from gemini")
			p.logger.Error("Empty response from Gemini", zap.Int("attempt", attempt+1))
			continue
		}

		textPart, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
		if !ok {
			lastErr = fmt.Errorf("unexpected response type from gemini")
			p.logger.Error("Unexpected response type", zap.Int("attempt", attempt+1))
			continue
		}

		suggestions, err := ParseSuggestions(string(textPart))
		if err != nil {
			lastErr = err
			p.logger.Error("Failed to parse suggestion response",
				zap.Error(err),
				zap.String("response", string(textPart)),
				zap.Int("attempt", attempt+1))
			continue
		}

		p.logger.Debug("Gemini suggestions generated",
			zap.Int("count", len(suggestions)),
			zap.Int("attempt", attempt+1))

		return suggestions, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", p.maxRetries, lastErr)
}

// ParseSuggestions decodes an LLM suggestion payload, tolerating markdown
// code fences and filling missing slugs from the display name.
func ParseSuggestions(raw string) ([]models.Suggestion, error) {
	cleanJSON := strings.TrimSpace(raw)
	cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
	cleanJSON = strings.TrimPrefix(cleanJSON, "```")
	cleanJSON = strings.TrimSuffix(cleanJSON, "```")
	cleanJSON = strings.TrimSpace(cleanJSON)

	var suggestions []models.Suggestion
	if err := json.Unmarshal([]byte(cleanJSON), &suggestions); err != nil {
		return nil, fmt.Errorf("failed to parse suggestions: %w", err)
	}

	valid := suggestions[:0]
	for _, s := range suggestions {
		if strings.TrimSpace(s.DisplayName) == "" {
			continue
		}
		if s.Slug == "" {
			s.Slug = Slugify(s.DisplayName)
		}
		valid = append(valid, s)
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("no usable suggestions in response")
	}

	return valid, nil
}
