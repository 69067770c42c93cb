package extract

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// RateLimit declares request pacing for an HTTP source.
type RateLimit struct {
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`
	MaxConcurrent     int     `json:"maxConcurrent,omitempty"`
	BatchDelayMs      int     `json:"batchDelayMs,omitempty"`
}

// limiter paces request issuance: a minimum interval between requests plus
// a concurrency cap.
type limiter struct {
	interval   time.Duration
	batchDelay time.Duration
	sem        *semaphore.Weighted
	last       time.Time
}

func newLimiter(rl RateLimit) *limiter {
	l := &limiter{
		batchDelay: time.Duration(rl.BatchDelayMs) * time.Millisecond,
	}
	if rl.RequestsPerSecond > 0 {
		l.interval = time.Duration(float64(time.Second) / rl.RequestsPerSecond)
	}
	concurrent := rl.MaxConcurrent
	if concurrent <= 0 {
		concurrent = 1
	}
	l.sem = semaphore.NewWeighted(int64(concurrent))
	return l
}

// acquire blocks until a request slot is available and the pacing interval
// has elapsed. Callers must release() when the request finishes.
func (l *limiter) acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if l.interval > 0 {
		if wait := l.interval - time.Since(l.last); wait > 0 {
			select {
			case <-ctx.Done():
				l.sem.Release(1)
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		l.last = time.Now()
	}
	return nil
}

func (l *limiter) release() {
	l.sem.Release(1)
}

// pageDelay sleeps the configured inter-page delay.
func (l *limiter) pageDelay(ctx context.Context) error {
	if l.batchDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.batchDelay):
		return nil
	}
}

func rateLimitFromConfig(cfg map[string]any) RateLimit {
	raw, ok := cfg["rateLimit"].(map[string]any)
	if !ok {
		return RateLimit{}
	}
	rl := RateLimit{
		MaxConcurrent: intAt(raw, "maxConcurrent", 0),
		BatchDelayMs:  intAt(raw, "batchDelayMs", 0),
	}
	switch v := raw["requestsPerSecond"].(type) {
	case float64:
		rl.RequestsPerSecond = v
	case int:
		rl.RequestsPerSecond = float64(v)
	}
	return rl
}
