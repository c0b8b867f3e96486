package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"

	"golang.org/x/time/rate"
)

// Rate limit key kinds, also used as the metric label.
const (
	limitByAPIKey = "api_key"
	limitByIP     = "ip"
)

// LimiterManager manages a collection of rate limiters for different keys (IPs, API keys).
type LimiterManager struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	lastSeen     map[string]time.Time
	rate         rate.Limit
	burst        int
	byIP         bool
	byAPIKey     bool
	cleanupAfter time.Duration
	now          func() time.Time
	done         chan struct{}
	closeOnce    sync.Once
	logger       *errors.Logger
}

// NewRateLimiter creates a manager from configuration. Keys idle for longer
// than cfg.CleanupAfter are evicted.
func NewRateLimiter(cfg config.RateLimitConfig, logger *errors.Logger) *LimiterManager {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	burst := cfg.BurstCapacity
	if burst <= 0 {
		burst = 1
	}
	cleanupAfter := cfg.CleanupAfter
	if cleanupAfter <= 0 {
		cleanupAfter = 10 * time.Minute
	}

	m := &LimiterManager{
		limiters:     make(map[string]*rate.Limiter),
		lastSeen:     make(map[string]time.Time),
		rate:         rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:        burst,
		byIP:         cfg.ByIP,
		byAPIKey:     cfg.ByAPIKey,
		cleanupAfter: cleanupAfter,
		now:          time.Now,
		done:         make(chan struct{}),
		logger:       logger,
	}

	go m.cleanupRoutine(cleanupAfter)
	return m
}

// GetLimiter retrieves or creates a limiter for a given key.
func (m *LimiterManager) GetLimiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = limiter
	}
	m.lastSeen[key] = m.now()

	return limiter
}

// Allow checks if a request should be allowed for the given key
func (m *LimiterManager) Allow(key string) bool {
	return m.GetLimiter(key).Allow()
}

// GetStats returns current rate limiter statistics
func (m *LimiterManager) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"enabled":         true,
		"active_limiters": len(m.limiters),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
		"by_ip":           m.byIP,
		"by_api_key":      m.byAPIKey,
	}
}

// cleanupRoutine periodically removes inactive limiters
func (m *LimiterManager) cleanupRoutine(cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

// cleanup removes limiters that have not been used for cleanupAfter
func (m *LimiterManager) cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, lastSeen := range m.lastSeen {
		if now.Sub(lastSeen) > m.cleanupAfter {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
			removed++
		}
	}

	m.logger.Debug("Rate limiter cleanup completed",
		"removed_limiters", removed,
		"remaining_limiters", len(m.limiters))
	return removed
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *LimiterManager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// key returns the limiter key for r and its kind. An empty key is not limited.
func (m *LimiterManager) key(r *http.Request) (string, string) {
	if m.byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey, limitByAPIKey
		}
	}
	if m.byIP {
		return "ip:" + getClientIP(r), limitByIP
	}
	return "", ""
}

// rateLimitMiddleware rejects requests over the per-key token bucket with 429.
func (s *Server) rateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if s.rateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rateLimitKey, kind := s.rateLimiter.key(r)
			if rateLimitKey == "" {
				next(w, r)
				return
			}

			if !s.rateLimiter.Allow(rateLimitKey) {
				s.logger.Info("Rate limit exceeded",
					"by", kind,
					"endpoint", r.URL.Path,
					"client_ip", getClientIP(r))
				s.obs.RecordRateLimitHit(r.Context(), kind)
				w.Header().Set("Retry-After", "60")
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the first valid IP from a comma-separated list
func parseFirstIP(ips string) string {
	for ip := range strings.SplitSeq(ips, ",") {
		ip = strings.TrimSpace(ip)
		if parsed := net.ParseIP(ip); parsed != nil {
			return ip
		}
	}
	return ""
}
