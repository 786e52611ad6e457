package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionCreateRoom  = "create_room"
	ActionTyping      = "typing"
	ActionUpload      = "upload"
	ActionAPI         = "api"
)

// Rule is a burst plus a steady refill interval for one action.
type Rule struct {
	Burst int
	Every time.Duration
}

// DefaultRules mirror what a person can plausibly do by hand.
var DefaultRules = map[string]Rule{
	ActionSendMessage: {Burst: 10, Every: 6 * time.Second}, // 10 per minute
	ActionCreateRoom:  {Burst: 5, Every: 12 * time.Minute}, // 5 per hour
	ActionTyping:      {Burst: 30, Every: 2 * time.Second}, // 30 per minute
	ActionUpload:      {Burst: 5, Every: 30 * time.Second},
	ActionAPI:         {Burst: 60, Every: time.Second}, // per client IP
}

var defaultRule = Rule{Burst: 20, Every: 3 * time.Second}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for different users and actions
type RateLimiter struct {
	rules   map[string]Rule
	entries map[string]*entry
	mutex   sync.Mutex
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithRules(DefaultRules)
}

func NewRateLimiterWithRules(rules map[string]Rule) *RateLimiter {
	return &RateLimiter{
		rules:   rules,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (rl *RateLimiter) rule(action string) Rule {
	if r, ok := rl.rules[action]; ok {
		return r
	}
	return defaultRule
}

// Allow checks if a user action is allowed. When it is not, the returned
// duration is how long until the next token.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	e, ok := rl.entries[key]
	if !ok {
		r := rl.rule(action)
		e = &entry{limiter: rate.NewLimiter(rate.Every(r.Every), r.Burst)}
		rl.entries[key] = e
	}
	e.lastSeen = now
	rl.mutex.Unlock()

	reservation := e.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes limiters that have been idle for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, e := range rl.entries {
		if now.Sub(e.lastSeen) > idle {
			delete(rl.entries, key)
		}
	}
}

// StartCleanupRoutine starts a cleanup routine that runs until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
