package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/antoniostano/joi/internal/reliability"
)

// RetryConfig bounds the retry loop of RetryCompleter.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *slog.Logger
}

// RetryCompleter retries transient provider failures with capped
// exponential backoff. Cancellation and non-retryable statuses fail fast.
type RetryCompleter struct {
	inner  Completer
	cfg    RetryConfig
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

func NewRetryCompleter(inner Completer, cfg RetryConfig) *RetryCompleter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 4 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryCompleter{
		inner:  inner,
		cfg:    cfg,
		sleep:  reliability.Sleep,
		logger: logger,
	}
}

func (c *RetryCompleter) Provider() string { return c.inner.Provider() }

func (c *RetryCompleter) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, c.cfg.BaseDelay, c.cfg.MaxDelay)
			c.logger.Warn("retrying completion",
				"provider", c.inner.Provider(),
				"attempt", attempt,
				"delay", delay,
				"err", lastErr,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
		text, err := c.inner.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return "", lastErr
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return reliability.IsRetryableHTTPStatus(se.StatusCode)
	}
	// Transport failures carry no status and are worth another try.
	return true
}
