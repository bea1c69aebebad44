package suggest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mettafore/evals-workshop/internal/models"

	"go.uber.org/zap"
)

// ProviderType selects a suggestion provider implementation.
type ProviderType string

const (
	ProviderGemini     ProviderType = "gemini"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderHeuristic  ProviderType = "heuristic"
)

// ProviderConfig holds configuration for a single provider instance.
type ProviderConfig struct {
	Type              ProviderType  `yaml:"type"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	ModelName         string        `yaml:"model_name"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// RateLimitedProvider wraps a provider with token-bucket rate limiting.
type RateLimitedProvider struct {
	provider Provider
	limiter  *RateLimiter
}

// RateLimiter implements token bucket rate limiting.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute calls.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		tokens:     requestsPerMinute,
		maxTokens:  requestsPerMinute,
		refillRate: time.Minute / time.Duration(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if tokensToAdd := int(elapsed / rl.refillRate); tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens <= 0 {
		waitTime := rl.refillRate
		rl.mu.Unlock()

		select {
		case <-time.After(waitTime):
			rl.mu.Lock()
			rl.tokens = 1
			rl.lastRefill = time.Now()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	rl.tokens--
	rl.mu.Unlock()

	return nil
}

// NewRateLimitedProvider wraps a provider with rate limiting.
func NewRateLimitedProvider(provider Provider, requestsPerMinute int) *RateLimitedProvider {
	return &RateLimitedProvider{
		provider: provider,
		limiter:  NewRateLimiter(requestsPerMinute),
	}
}

// Suggest implements Provider.
func (p *RateLimitedProvider) Suggest(ctx context.Context, input Input) ([]models.Suggestion, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return p.provider.Suggest(ctx, input)
}

// Name implements Provider.
func (p *RateLimitedProvider) Name() string { return p.provider.Name() }

// Close implements Provider.
func (p *RateLimitedProvider) Close() error { return p.provider.Close() }

// Chain tries providers in order with failover. A provider is skipped for
// the session after maxFailures consecutive errors, and the last provider
// is expected to be the heuristic so suggestions never hard-fail.
type Chain struct {
	providers    []Provider
	currentIndex int
	mu           sync.RWMutex
	logger       *zap.Logger
	failureCount map[int]int
	maxFailures  int
}

// ChainConfig holds configuration for the provider chain.
type ChainConfig struct {
	Providers   []ProviderConfig
	MaxFailures int // consecutive failures before switching provider
}

// NewChain builds the provider chain from configuration. Providers that fail
// to initialize are skipped; the heuristic is always appended as the final
// fallback.
func NewChain(cfg ChainConfig, logger *zap.Logger) *Chain {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}

	var providers []Provider

	for i, providerCfg := range cfg.Providers {
		var provider Provider
		var err error

		switch providerCfg.Type {
		case ProviderGemini:
			provider, err = NewGeminiProvider(GeminiConfig{
				APIKey:     providerCfg.APIKey,
				ModelName:  providerCfg.ModelName,
				MaxRetries: providerCfg.MaxRetries,
				RetryDelay: providerCfg.RetryDelay,
			}, logger)
		case ProviderGroq:
			baseURL := providerCfg.BaseURL
			if baseURL == "" {
				baseURL = "https://api.groq.com/openai/v1"
			}
			provider, err = NewOpenAIProvider(OpenAIConfig{
				Name:       "groq",
				APIKey:     providerCfg.APIKey,
				BaseURL:    baseURL,
				ModelName:  providerCfg.ModelName,
				MaxRetries: providerCfg.MaxRetries,
				RetryDelay: providerCfg.RetryDelay,
			}, logger)
		case ProviderOpenRouter:
			baseURL := providerCfg.BaseURL
			if baseURL == "" {
				baseURL = "https://openrouter.ai/api/v1"
			}
			provider, err = NewOpenAIProvider(OpenAIConfig{
				Name:       "openrouter",
				APIKey:     providerCfg.APIKey,
				BaseURL:    baseURL,
				ModelName:  providerCfg.ModelName,
				MaxRetries: providerCfg.MaxRetries,
				RetryDelay: providerCfg.RetryDelay,
			}, logger)
		case ProviderHeuristic:
			continue // always appended below
		default:
			logger.Warn("Unknown provider type, skipping",
				zap.String("type", string(providerCfg.Type)),
				zap.Int("index", i))
			continue
		}

		if err != nil {
			logger.Error("Failed to create provider",
				zap.String("type", string(providerCfg.Type)),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}

		rateLimit := providerCfg.RequestsPerMinute
		if rateLimit == 0 {
			rateLimit = 8 // conservative default for free tiers
		}

		providers = append(providers, NewRateLimitedProvider(provider, rateLimit))

		logger.Info("Suggestion provider initialized",
			zap.String("type", string(providerCfg.Type)),
			zap.String("model", providerCfg.ModelName),
			zap.Int("rate_limit", rateLimit))
	}

	providers = append(providers, NewHeuristic())

	return &Chain{
		providers:    providers,
		logger:       logger,
		failureCount: make(map[int]int),
		maxFailures:  cfg.MaxFailures,
	}
}

// Name implements Provider.
func (c *Chain) Name() string {
	provider, _ := c.current()
	return provider.Name()
}

func (c *Chain) current() (Provider, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[c.currentIndex], c.currentIndex
}

func (c *Chain) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldIndex := c.currentIndex
	c.currentIndex = (c.currentIndex + 1) % len(c.providers)

	c.logger.Info("Switching suggestion provider",
		zap.Int("from_index", oldIndex),
		zap.Int("to_index", c.currentIndex))
}

func (c *Chain) recordFailure(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount[index]++
	return c.failureCount[index] >= c.maxFailures
}

func (c *Chain) resetFailures(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount[index] = 0
}

// Suggest tries the current provider first, falling through the rest of the
// chain within this call. A provider that keeps failing loses its spot as
// the current one, so later calls skip straight past it.
func (c *Chain) Suggest(ctx context.Context, input Input) ([]models.Suggestion, error) {
	_, start := c.current()

	for offset := 0; offset < len(c.providers); offset++ {
		index := (start + offset) % len(c.providers)
		provider := c.providers[index]

		result, err := provider.Suggest(ctx, input)
		if err == nil {
			c.resetFailures(index)
			return result, nil
		}

		c.logger.Error("Suggestion provider failed",
			zap.String("provider", provider.Name()),
			zap.Error(err))

		if c.recordFailure(index) || isRateLimitError(err) {
			c.advance()
		}
	}

	return nil, fmt.Errorf("all suggestion providers failed")
}

// Close closes all providers.
func (c *Chain) Close() error {
	var lastErr error
	for i, provider := range c.providers {
		if err := provider.Close(); err != nil {
			c.logger.Error("Failed to close provider",
				zap.Int("index", i),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit")
}
