package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"cohortlens/internal/errors"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleAge         = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key (API key or IP)
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
	logger  *errors.Logger

	rejected int64
}

// NewRateLimiter allows requestsPerMin per client with the given burst, and
// starts a goroutine evicting idle clients until Close
func NewRateLimiter(requestsPerMin, burst int, logger *errors.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Limit(float64(requestsPerMin) / 60.0),
		burst:   burst,
		now:     time.Now,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go l.cleanupLoop(limiterCleanupInterval)
	return l
}

// Allow reports whether one more request from key fits the bucket
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	if c.limiter.AllowN(now, 1) {
		return true
	}
	l.rejected++
	return false
}

// Stats returns current rate limiter statistics
func (l *RateLimiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"enabled":          true,
		"active_clients":   len(l.clients),
		"requests_per_min": float64(l.rate) * 60,
		"burst_capacity":   l.burst,
		"rejected":         l.rejected,
	}
}

func (l *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(limiterIdleAge)
		case <-l.done:
			return
		}
	}
}

func (l *RateLimiter) evictIdle(age time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > age {
			delete(l.clients, key)
		}
	}
	l.logger.Debug("Rate limiter cleanup completed", "remaining_clients", len(l.clients))
}

// Close stops the cleanup goroutine
func (l *RateLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

// rateLimitMiddleware rejects requests over the client's budget with 429
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if s.rateLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key, kind := rateLimitKey(r, s.cfg.RateLimit.ByAPIKey, s.cfg.RateLimit.ByIP)
		if key == "" {
			next(w, r)
			return
		}
		if !s.rateLimiter.Allow(key) {
			s.deps.Observability.RecordRateLimitHit(r.Context(), kind)
			s.logger.Info("Rate limit exceeded",
				"limiter", kind,
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			w.Header().Set("Retry-After", "60")
			s.writeErrorResponse(w, r, http.StatusTooManyRequests, errors.ErrCodeRateLimited, "Too many requests")
			return
		}
		next(w, r)
	}
}

// rateLimitKey picks the bucket for a request: the API key when enabled and
// present, otherwise the client IP
func rateLimitKey(r *http.Request, byAPIKey, byIP bool) (key, kind string) {
	if byAPIKey {
		if apiKey := apiKeyFromRequest(r); apiKey != "" {
			return "api:" + apiKey, "api_key"
		}
	}
	if byIP {
		return "ip:" + getClientIP(r), "ip"
	}
	return "", ""
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for ip := range strings.SplitSeq(xff, ",") {
			ip = strings.TrimSpace(ip)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
