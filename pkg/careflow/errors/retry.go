package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool
}

// DefaultRetry is used for text service calls.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// FallbackRetry allows exactly one retry and retries every failure,
// including unusable output. Pair it with a fallback prompt on the second
// attempt.
var FallbackRetry = RetryConfig{
	MaxAttempts:    2,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     time.Second,
	BackoffFactor:  1.0,
	RetryableFunc: func(err error) bool {
		cat := Categorize(err)
		return cat == CategoryTransient || cat == CategoryContent
	},
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult contains the result of a retry operation.
type RetryResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent retrying.
	Duration time.Duration
}

// WithRetryContext calls fn until it succeeds, returns a non-retryable
// error, attempts run out, or ctx is done. fn receives the 1-based attempt
// number so callers can switch prompts on later attempts.
func WithRetryContext[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(ctx context.Context, attempt int) (T, error),
) RetryResult[T] {
	start := time.Now()
	backoff := cfg.InitialBackoff
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{
				Err:      &CategorizedError{Err: err, Category: CategoryPermanent, Retries: attempt - 1, Context: "context cancelled"},
				Attempts: attempt - 1,
				Duration: time.Since(start),
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return RetryResult[T]{Value: result, Attempts: attempt, Duration: time.Since(start)}
		}
		lastErr = err

		if !isRetryable(err) {
			return RetryResult[T]{
				Err:      &CategorizedError{Err: err, Category: Categorize(err), Retries: attempt},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return RetryResult[T]{
				Err:      &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Retries: attempt, Context: "context cancelled during backoff"},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		case <-time.After(calculateBackoff(backoff, cfg.Jitter)):
		}

		if cfg.BackoffFactor > 0 {
			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		}
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return RetryResult[T]{
		Err: &CategorizedError{
			Err:      lastErr,
			Category: Categorize(lastErr),
			Retries:  maxAttempts,
			Context:  "max retries exceeded",
		},
		Attempts: maxAttempts,
		Duration: time.Since(start),
	}
}

// calculateBackoff returns base +/- (base * jitter * random).
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}

// RetryOption configures retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) { cfg.MaxAttempts = n }
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) { cfg.InitialBackoff = d }
}

// WithRetryableFunc sets a custom retryability check.
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(cfg *RetryConfig) { cfg.RetryableFunc = fn }
}

// NewRetryConfig starts from base and applies opts.
func NewRetryConfig(base RetryConfig, opts ...RetryOption) RetryConfig {
	cfg := base
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
