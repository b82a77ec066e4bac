package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	Enabled      bool          // Enable/disable retry logic
	MaxAttempts  int           // Retries after the first call
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Exponential backoff multiplier (typically 2.0)
	Jitter       bool          // Spread delays by +/-25%

	// ShouldRetry decides whether err is worth another attempt. nil retries
	// every error except those in NonRetryableErrors.
	ShouldRetry        func(error) bool
	NonRetryableErrors []error
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry executes a function with exponential backoff retry logic
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a result with exponential
// backoff. Errors that must not be retried are returned unwrapped so callers
// can still classify them.
func RetryWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T

	if !cfg.Enabled {
		return fn()
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(cfg, err) {
			return zero, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(calculateDelay(cfg, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("max attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// calculateDelay calculates the delay for exponential backoff
func calculateDelay(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	duration := time.Duration(delay)

	if cfg.Jitter && duration > 0 {
		jitter := duration / 4
		duration = duration - jitter + time.Duration(rand.Int63n(int64(jitter*2)+1))
	}

	return duration
}

func retryable(cfg Config, err error) bool {
	for _, target := range cfg.NonRetryableErrors {
		if errors.Is(err, target) {
			return false
		}
	}
	if cfg.ShouldRetry != nil {
		return cfg.ShouldRetry(err)
	}
	return true
}
