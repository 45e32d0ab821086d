package collyfetcher

import (
	"crypto/rand"
	"math"
	"math/big"
	"net/http"
	"time"
)

// DefaultRetryStatuses are the transient server answers worth retrying.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	statuses   map[int]struct{}
}

// NewRetryPolicy builds a jittered exponential policy. Transport errors
// (status 0) and the given statuses are retryable.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration, statuses []int) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	if statuses == nil {
		statuses = DefaultRetryStatuses
	}
	set := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return &RetryPolicy{
		maxRetries: max(maxRetries, 0),
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		statuses:   set,
	}
}

// ShouldRetry reports whether attempt (zero based) may be followed by another.
func (p *RetryPolicy) ShouldRetry(status, attempt int) bool {
	if attempt >= p.maxRetries {
		return false
	}
	if status == 0 {
		return true
	}
	_, ok := p.statuses[status]
	return ok
}

// Backoff returns the wait before the attempt following attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
