package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// StationHeader identifies the triage station issuing a request.
const StationHeader = "X-Triage-Station"

// limiterIdleTTL is how long an unused bucket is kept before eviction.
const limiterIdleTTL = 10 * time.Minute

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	cfg       RateLimitConfig
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		limiters:  make(map[string]*limiterEntry),
		cfg:       cfg,
		ttl:       limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// get returns the bucket for key. Buckets idle for longer than ttl are
// dropped, at most once per ttl.
func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) >= s.ttl {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit throttles each client IP with its own token bucket. The
// station header is not authenticated, so it only labels log lines and
// never selects a bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(store.cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-RateLimit-Limit", limit)

			r := store.get(c.RealIP()).Reserve()
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				retry := int(math.Ceil(delay.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
