package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionCreateChat  = "create_chat"
	ActionTransition  = "transition"
	ActionHTTPRequest = "http_request"
)

// Policy is a token bucket shape: Burst tokens, one refilled every Interval.
type Policy struct {
	Burst    int
	Interval time.Duration
}

var defaultPolicies = map[string]Policy{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Interval: 6 * time.Second},
	// 5 new rooms per hour
	ActionCreateChat: {Burst: 5, Interval: 12 * time.Minute},
	ActionTransition: {Burst: 5, Interval: 10 * time.Second},
	// per client IP
	ActionHTTPRequest: {Burst: 120, Interval: 500 * time.Millisecond},
}

var fallbackPolicy = Policy{Burst: 20, Interval: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one bucket per user and action.
type RateLimiter struct {
	policies map[string]Policy
	buckets  map[string]*bucket
	mutex    sync.Mutex
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	policies := make(map[string]Policy, len(defaultPolicies))
	for action, p := range defaultPolicies {
		policies[action] = p
	}
	return &RateLimiter{
		policies: policies,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// SetPolicy overrides the bucket shape for action. Existing buckets keep their old shape.
func (rl *RateLimiter) SetPolicy(action string, p Policy) {
	if p.Burst <= 0 || p.Interval <= 0 {
		return
	}
	rl.mutex.Lock()
	rl.policies[action] = p
	rl.mutex.Unlock()
}

// Allow consumes a token for userID's action. When none is left it reports how long
// until the next one is available.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		p, found := rl.policies[action]
		if !found {
			p = fallbackPolicy
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(p.Interval), p.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Tokens returns the tokens currently available for userID's action.
func (rl *RateLimiter) Tokens(userID, action string) float64 {
	rl.mutex.Lock()
	b, ok := rl.buckets[userID+":"+action]
	rl.mutex.Unlock()
	if !ok {
		return 0
	}
	return b.limiter.TokensAt(rl.now())
}

// Cleanup drops buckets idle for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every 30 minutes until done is closed.
func (rl *RateLimiter) StartCleanupRoutine(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
