// Package ratelimit keeps one token bucket per API client.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages rate limits for multiple clients
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a limiter allowing perSecond requests per client with
// the given burst
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// get returns the bucket of a client, creating it on first use
func (l *Limiter) get(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[clientID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = limiter
	}
	return limiter
}

// Allow checks if a request is allowed for the given client
func (l *Limiter) Allow(clientID string) bool {
	return l.get(clientID).Allow()
}

// Tokens returns the tokens currently available to a client
func (l *Limiter) Tokens(clientID string) float64 {
	return l.get(clientID).Tokens()
}

// Burst returns the bucket size
func (l *Limiter) Burst() int {
	return l.burst
}
