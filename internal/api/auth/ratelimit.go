package auth

import (
	"sync"
	"time"
)

// LoginRateLimit manages IP-based rate limiting for the login endpoint.
type LoginRateLimit struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	window   time.Duration
	maxReqs  int
}

// NewLoginRateLimit creates a new rate limiter
func NewLoginRateLimit(window time.Duration, maxReqs int) *LoginRateLimit {
	return &LoginRateLimit{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
	}
}

// Check checks if the IP is within rate limit
func (r *LoginRateLimit) Check(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if reqs, exists := r.requests[ip]; exists {
		var valid []time.Time
		for _, t := range reqs {
			if now.Sub(t) < r.window {
				valid = append(valid, t)
			}
		}
		r.requests[ip] = valid
	}

	if len(r.requests[ip]) >= r.maxReqs {
		return false
	}

	r.requests[ip] = append(r.requests[ip], now)
	return true
}
