package download

import (
	"strings"
	"sync"
	"time"
)

// RateLimitRegistry tracks per-host cooldown windows derived from 429
// responses. While a host is inside its window, the session drops new
// submissions for it at admission time instead of hammering the server.
type RateLimitRegistry struct {
	mu      sync.Mutex
	resumes map[string]time.Time
	now     func() time.Time
}

// NewRateLimitRegistry creates an empty registry.
func NewRateLimitRegistry() *RateLimitRegistry {
	return &RateLimitRegistry{
		resumes: make(map[string]time.Time),
		now:     time.Now,
	}
}

// RecordTooManyRequests starts a cooldown for host that ends retryAfter
// from now. Non-positive durations are ignored: a 429 without a usable
// Retry-After carries no cooldown. Host matching is case-insensitive.
func (r *RateLimitRegistry) RecordTooManyRequests(host string, retryAfter time.Duration) {
	if host == "" || retryAfter <= 0 {
		return
	}

	r.mu.Lock()
	r.resumes[strings.ToLower(host)] = r.now().Add(retryAfter)
	r.mu.Unlock()
}

// IsBlocked reports whether host is inside a cooldown window. An entry
// whose window has passed is evicted on the way out, so the registry only
// holds hosts that are actually blocked.
func (r *RateLimitRegistry) IsBlocked(host string) bool {
	host = strings.ToLower(host)

	r.mu.Lock()
	defer r.mu.Unlock()

	resumeAt, ok := r.resumes[host]
	if !ok {
		return false
	}
	if !r.now().Before(resumeAt) {
		delete(r.resumes, host)
		return false
	}
	return true
}
