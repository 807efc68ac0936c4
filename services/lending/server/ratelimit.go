package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"creditpool/observability"
)

// RateLimit bounds the request rate of a single caller.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

const limiterIdleTTL = 10 * time.Minute

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per authenticated caller, falling back to
// the client address for anonymous requests.
type RateLimiter struct {
	limit     RateLimit
	mu        sync.Mutex
	visitors  map[string]*rateEntry
	lastPrune time.Time
	clockNow  func() time.Time
}

// NewRateLimiter returns nil when the limit is disabled.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.RequestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:    limit,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.allow(limiterKey(req)) {
			observability.ModuleMetrics().RecordThrottle(metricsModule, "rate_limit")
			writeProblem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	if now.Sub(r.lastPrune) > time.Minute {
		for key, entry := range r.visitors {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(r.visitors, key)
			}
		}
		r.lastPrune = now
	}
	entry, ok := r.visitors[id]
	if !ok {
		perSecond := r.limit.RequestsPerMinute / 60.0
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func limiterKey(req *http.Request) string {
	if caller, ok := CallerFrom(req.Context()); ok {
		return caller.Hex()
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
