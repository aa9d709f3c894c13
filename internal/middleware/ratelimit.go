package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// tokenLimiter is a per-key token bucket. Each key refills at rate tokens per
// second up to burst; a request consumes one token.
type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*tokenBucket
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*tokenBucket),
	}
}

func (l *tokenLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &tokenBucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = minFloat(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RateLimit throttles requests per client IP. Limits come from
// RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST (defaults 60/min, burst 20).
func RateLimit() gin.HandlerFunc {
	perMinute, _ := strconv.Atoi(os.Getenv("RATE_LIMIT_PER_MINUTE"))
	burst, _ := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	limiter := newTokenLimiter(perMinute, burst)

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error(http.StatusTooManyRequests, "Too many requests"))
			return
		}
		c.Next()
	}
}
