package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"parley/pkg/config"
	apperrors "parley/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per client IP. Buckets are
// never reaped; the per-IP footprint is a single limiter struct.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.buckets[ip]
	if !ok {
		bucket = rate.NewLimiter(p.rps, p.burst)
		p.buckets[ip] = bucket
	}
	return bucket
}

// clientIP picks the address to rate-limit on. Behind a proxy the
// remote address is the proxy itself, so the first X-Forwarded-For
// hop wins when it parses as an IP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware limits requests per client IP on the
// HTTP API. The websocket message path has its own limiter inside the
// signal server.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	pool := &limiterPool{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		burst:   cfg.RateLimiting.HTTP.Burst,
	}

	return func(c *gin.Context) {
		if !pool.get(clientIP(c.Request)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   string(apperrors.ErrCodeRateLimit),
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
