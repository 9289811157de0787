package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter allows at most rate requests per client IP inside a sliding
// interval. Clients idle for a full interval are swept out of the map.
type RateLimiter struct {
	rate      int
	interval  time.Duration
	ips       map[string][]time.Time
	lastSweep time.Time
	mu        sync.Mutex
}

func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:     rate,
		interval: interval,
		ips:      make(map[string][]time.Time),
	}
}

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.interval)
	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	valid := rl.ips[ip][:0]
	for _, t := range rl.ips[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.rate {
		rl.ips[ip] = valid
		return false
	}
	rl.ips[ip] = append(valid, now)
	return true
}

// sweep drops clients with no request after cutoff. Caller holds mu.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for ip, times := range rl.ips {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.ips, ip)
		}
	}
}

func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.ips)
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 || !rl.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

const (
	loginBurst  = 5
	loginRefill = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter is a per-IP token bucket. A bucket idle long enough to have
// refilled completely is the same as a new one, so it is evicted.
type loginLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	idle      time.Duration
	lastSweep time.Time
}

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{
		visitors: make(map[string]*visitor),
		idle:     loginBurst * loginRefill,
	}
}

func (ll *loginLimiter) allow(ip string, now time.Time) bool {
	ll.mu.Lock()
	if now.Sub(ll.lastSweep) >= ll.idle {
		for key, v := range ll.visitors {
			if now.Sub(v.lastSeen) >= ll.idle {
				delete(ll.visitors, key)
			}
		}
		ll.lastSweep = now
	}
	v, ok := ll.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(loginRefill), loginBurst)}
		ll.visitors[ip] = v
	}
	v.lastSeen = now
	ll.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (ll *loginLimiter) tracked() int {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return len(ll.visitors)
}

func (ll *loginLimiter) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ll.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "too many attempts, please wait",
			})
			return
		}
		c.Next()
	}
}

// NewStrictRateLimiter is a per-IP token bucket for login: burst 5, refilled
// one token per minute.
func NewStrictRateLimiter() gin.HandlerFunc {
	return newLoginLimiter().handler()
}
