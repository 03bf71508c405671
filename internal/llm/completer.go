package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single non-streaming chat completion.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completer returns the full completion text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Provider() string
}

// StatusError carries the HTTP status of a failed provider call so retry
// policy does not depend on any SDK's error type.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s completion failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Config controls completer construction.
type Config struct {
	Mode            string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	Logger          *slog.Logger
}

// NewCompleter builds the completer for cfg.Mode (auto|openai|anthropic|mock).
// Real providers are wrapped with retries.
func NewCompleter(cfg Config) (Completer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var c Completer
	switch mode {
	case "auto":
		switch {
		case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
			c = NewOpenAICompleter(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel})
		case strings.TrimSpace(cfg.AnthropicAPIKey) != "":
			c = NewAnthropicCompleter(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
		default:
			logger.Warn("no completion API key configured, using mock completer")
			return NewMockCompleter(), nil
		}
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai API key is required for openai mode")
		}
		c = NewOpenAICompleter(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel})
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		c = NewAnthropicCompleter(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	case "mock":
		return NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Mode)
	}

	return NewRetryCompleter(c, RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Logger:     logger,
	}), nil
}
