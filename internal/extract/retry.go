package extract

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is the declarative retry contract applied at the HTTP layer.
type RetryPolicy struct {
	MaxAttempts          int     `json:"maxAttempts"`
	InitialDelayMs       int     `json:"initialDelayMs"`
	MaxDelayMs           int     `json:"maxDelayMs"`
	BackoffMultiplier    float64 `json:"backoffMultiplier"`
	RetryableStatusCodes []int   `json:"retryableStatusCodes"`
}

// DefaultRetryPolicy covers transient upstream hiccups without hammering.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:          3,
		InitialDelayMs:       500,
		MaxDelayMs:           10_000,
		BackoffMultiplier:    2,
		RetryableStatusCodes: []int{429, 500, 502, 503, 504},
	}
}

// Retryable reports whether the status code is in the retry set.
func (p RetryPolicy) Retryable(statusCode int) bool {
	for _, code := range p.RetryableStatusCodes {
		if code == statusCode {
			return true
		}
	}
	return false
}

// retryableError marks an attempt failure that permits another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable wraps err so doWithRetry will attempt again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// doWithRetry runs fn up to MaxAttempts times, backing off exponentially
// between attempts. Only errors wrapped via Retryable are retried.
func doWithRetry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if _, retryable := err.(retryableError); !retryable {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if policy.BackoffMultiplier > 1 {
			delay = time.Duration(float64(delay) * policy.BackoffMultiplier)
		}
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func retryFromConfig(cfg map[string]any) RetryPolicy {
	raw, ok := cfg["retry"].(map[string]any)
	if !ok {
		return DefaultRetryPolicy()
	}
	policy := DefaultRetryPolicy()
	if v := intAt(raw, "maxAttempts", 0); v > 0 {
		policy.MaxAttempts = v
	}
	if v := intAt(raw, "initialDelayMs", 0); v > 0 {
		policy.InitialDelayMs = v
	}
	if v := intAt(raw, "maxDelayMs", 0); v > 0 {
		policy.MaxDelayMs = v
	}
	if m, ok := raw["backoffMultiplier"].(float64); ok && m > 0 {
		policy.BackoffMultiplier = m
	}
	if codes, ok := raw["retryableStatusCodes"].([]any); ok {
		policy.RetryableStatusCodes = nil
		for _, c := range codes {
			policy.RetryableStatusCodes = append(policy.RetryableStatusCodes, intAt(map[string]any{"c": c}, "c", 0))
		}
	}
	return policy
}
