// Package retry implements bounded retry with exponential backoff for
// calls to the AI provider.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig matches provider guidance for transient failures.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// retryablePatterns are matched against provider error strings. The APIs
// do not expose typed errors for these cases.
var retryablePatterns = []string{
	"rate limit",
	"quota",
	"429",
	"500",
	"502",
	"503",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"unavailable",
	"overloaded",
}

// Retryable reports whether an error is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Do runs fn, retrying transient failures with exponential backoff.
// Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	interval := cfg.InitialInterval

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(interval):
			}
			interval *= 2
			if interval > cfg.MaxInterval {
				interval = cfg.MaxInterval
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("all %d retries exhausted: %w", cfg.MaxRetries, lastErr)
}
