package embedder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries int           // total attempts, at least one is always made
	BaseDelay  time.Duration // delay before the second attempt
	MaxDelay   time.Duration // upper bound for any single delay
	Multiplier float64       // growth factor between delays
}

// DefaultRetryConfig returns the policy used by the remote providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// APIError is a non-200 response from an embedding service
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether a failed call may succeed on another attempt.
// Client errors other than timeouts and rate limiting fail the same way again.
func retryable(err error) bool {
	status := 0

	var apiErr *APIError
	var oaiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
	case errors.As(err, &oaiErr):
		status = oaiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return true
	}

	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status == 0 || status >= 500
}

// delay returns the wait before attempt n+1: exponential growth capped at
// MaxDelay, with the upper half randomised so concurrent workers spread out
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
			break
		}
	}

	wait := time.Duration(d)
	if half := wait / 2; half > 0 {
		wait = half + rand.N(half)
	}
	return wait
}

// retryWithBackoff calls fn until it succeeds, returns a non-retryable
// error, or runs out of attempts. Context cancellation ends it at once.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(config.MaxRetries, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !retryable(err) || attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(config.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
