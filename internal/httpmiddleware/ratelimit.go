package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimiter enforces a per-client-IP token bucket. State lives in process
// memory; move it to Redis if the API ever runs more than one replica.
type IPRateLimiter struct {
	capacity int
	perMin   int
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
}

type tokenBucket struct {
	tokens   int
	refilled time.Time
}

// NewIPRateLimiter creates a limiter holding up to capacity tokens per IP,
// refilled at perMinute tokens per minute.
func NewIPRateLimiter(capacity, perMinute int) *IPRateLimiter {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &IPRateLimiter{
		capacity: capacity,
		perMin:   perMinute,
		buckets:  make(map[string]*tokenBucket),
	}
}

// Middleware returns a gin handler rejecting clients that run out of tokens.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *IPRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[ip]
	if !ok {
		l.buckets[ip] = &tokenBucket{tokens: l.capacity - 1, refilled: now}
		return true
	}

	elapsed := now.Sub(b.refilled).Minutes()
	if refill := int(elapsed * float64(l.perMin)); refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.refilled = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
