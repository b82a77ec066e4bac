package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/config"
	apperrors "github.com/ulearning-intl/bigbluebutton-streaming/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per client and forgets clients that
// have been idle longer than ttl.
type limiterStore struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(r rate.Limit, burst int, ttl time.Duration) *limiterStore {
	return &limiterStore{
		entries: make(map[string]*limiterEntry),
		rate:    r,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *limiterStore) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.ttl > 0 && now.Sub(s.lastSweep) >= s.ttl {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) >= s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func isControlRequest(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/bot/")
}

func tooManyRequests(c *gin.Context, message string) {
	c.Header("Retry-After", "1")
	err := apperrors.NewRateLimitError()
	err.Message = message
	_ = c.Error(err)
	c.Abort()
}

// NewHTTPRateLimitMiddleware limits requests per client IP as resolved by
// gin's ClientIP, so X-Forwarded-For only counts from trusted proxies.
// Control requests (POST /bot/...) additionally pass a stricter per-client
// bucket. Rejections are attached with c.Error and rendered by
// ErrorHandlerMiddleware, which must run earlier in the chain.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.RateLimiting
	if !rl.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	general := newLimiterStore(rate.Limit(rl.HTTP.RequestsPerSecond), rl.HTTP.Burst, rl.IdleTTL)

	var control *limiterStore
	if rl.Control.RequestsPerSecond > 0 {
		control = newLimiterStore(rate.Limit(rl.Control.RequestsPerSecond), rl.Control.Burst, rl.IdleTTL)
	}

	var inflight chan struct{}
	if rl.HTTP.MaxConcurrent > 0 {
		inflight = make(chan struct{}, rl.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if inflight != nil {
			select {
			case inflight <- struct{}{}:
				defer func() { <-inflight }()
			default:
				_ = c.Error(apperrors.NewServiceUnavailableError("too many concurrent requests"))
				c.Abort()
				return
			}
		}

		ip := c.ClientIP()
		if !general.allow(ip) {
			tooManyRequests(c, "rate limit exceeded")
			return
		}
		if control != nil && isControlRequest(c.Request) && !control.allow(ip) {
			tooManyRequests(c, "too many stream control requests")
			return
		}
		c.Next()
	}
}
