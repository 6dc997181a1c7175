package service

import (
	"sync"
	"time"
)

type cooldownKey struct {
	userID int64
	action string
}

// RateLimiter allows one action per user per window. A refused attempt does
// not extend the window.
type RateLimiter struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		window: window,
		now:    time.Now,
		last:   make(map[cooldownKey]time.Time),
	}
}

// TryAcquire reports whether the action may run now and, if so, records it.
func (r *RateLimiter) TryAcquire(userID int64, action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	k := cooldownKey{userID: userID, action: action}
	if t, ok := r.last[k]; ok && now.Sub(t) < r.window {
		return false
	}
	r.last[k] = now
	return true
}

// Prune drops entries whose window has passed.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, t := range r.last {
		if now.Sub(t) >= r.window {
			delete(r.last, k)
		}
	}
}
