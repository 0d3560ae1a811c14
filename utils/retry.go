package utils

import (
	"fmt"
	"math/rand"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
	"github.com/samber/lo"
)

// Backoff maps a failed attempt number (1-based) to the delay before the
// next attempt.
type Backoff func(attempt int) time.Duration

// Linear grows the delay as base * attempt. Both the per-call and the
// per-session retry layers use this policy.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// ExponentialJitter doubles the delay per attempt up to max, randomized into
// [delay/2, delay]. Used for market data IO where thundering retries hurt.
func ExponentialJitter(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		delay := base << (attempt - 1)
		if delay > max {
			delay = max
		}
		half := delay / 2
		return half + time.Duration(rand.Int63n(int64(delay-half)+1))
	}
}

// sleep is swapped out in tests.
var sleep = time.Sleep

// Retry runs op up to attempts times, sleeping backoff(n) after failed
// attempt n. The last error is returned once attempts are exhausted.
func Retry[T any](op func() (T, error), attempts int, backoff Backoff) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := op()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt < attempts {
			sleep(backoff(attempt))
		}
	}
	return lo.Empty[T](), fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// ParseLoose decodes model-produced JSON, repairing the common defects
// (trailing commas, unquoted keys, fenced blocks) before unmarshalling.
func ParseLoose[T any](raw string) (T, error) {
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return lo.Empty[T](), fmt.Errorf("failed to repair JSON: %w", err)
	}
	var result T
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return lo.Empty[T](), fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}
