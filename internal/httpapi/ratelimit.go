package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/svwenlabs/svwen-ledger/internal/ledger"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleCutoff = 10 * time.Minute
)

// visitor tracks one client's token bucket and its last activity.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out per-client token buckets. Idle entries are swept
// inline on the first request after limiterSweepEvery elapses; no background
// goroutine is involved.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	nextSweep time.Time
}

func newRateLimiter(rps, burst int) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		nextSweep: time.Now().Add(limiterSweepEvery),
	}
}

// allow reports whether the client identified by key may proceed.
func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	if now.After(rl.nextSweep) {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > limiterIdleCutoff {
				delete(rl.visitors, k)
			}
		}
		rl.nextSweep = now.Add(limiterSweepEvery)
	}
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.bucket.Allow()
}

// RateLimiter returns a Gin middleware enforcing per-IP token-bucket rate
// limiting. rps is the steady-state requests per second, burst the bucket
// capacity. Rejected requests get the EXHAUSTED error envelope.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	rl := newRateLimiter(rps, burst)
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    string(ledger.CodeExhausted),
					"message": "rate limit exceeded",
				},
			})
			return
		}
		c.Next()
	}
}
