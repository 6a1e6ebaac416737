package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CodeRateLimited is the error code of a 429 response.
const CodeRateLimited = "rate_limited"

// RateLimitConfig sets the per-client token buckets. Reads (GET, HEAD) and
// writes draw from separate buckets so a client polling batch state cannot
// starve its own release or refund.
type RateLimitConfig struct {
	ReadRPS    float64
	ReadBurst  int
	WriteRPS   float64
	WriteBurst int
	IdleTTL    time.Duration // buckets unused this long are dropped; default 10m
}

type clientBuckets struct {
	read, write *rate.Limiter
	lastSeen    time.Time
}

type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientBuckets
}

// RateLimiter returns a Gin middleware that rate limits each client IP.
// Idle buckets are swept until ctx ends.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	rl := &rateLimiter{cfg: cfg, clients: make(map[string]*clientBuckets)}
	go rl.sweep(ctx)

	return func(c *gin.Context) {
		lim := rl.bucket(c.ClientIP(), isRead(c.Request.Method))

		res := lim.Reserve()
		if !res.OK() {
			rl.reject(c, time.Second)
			return
		}
		if d := res.Delay(); d > 0 {
			res.Cancel()
			rl.reject(c, d)
			return
		}
		c.Next()
	}
}

func (rl *rateLimiter) bucket(ip string, read bool) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cb, ok := rl.clients[ip]
	if !ok {
		cb = &clientBuckets{
			read:  rate.NewLimiter(rate.Limit(rl.cfg.ReadRPS), rl.cfg.ReadBurst),
			write: rate.NewLimiter(rate.Limit(rl.cfg.WriteRPS), rl.cfg.WriteBurst),
		}
		rl.clients[ip] = cb
	}
	cb.lastSeen = time.Now()
	if read {
		return cb.read
	}
	return cb.write
}

func (rl *rateLimiter) reject(c *gin.Context, wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
		"code":  CodeRateLimited,
	})
}

func (rl *rateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for ip, cb := range rl.clients {
			if time.Since(cb.lastSeen) > rl.cfg.IdleTTL {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
