package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/thoughtnest/pkg/httputil"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means clients are keyed on the
	// connection's remote address only.
	TrustedProxies []string
}

// incrWindow increments the window counter and gives it an expiry in the
// same step, so a counter can never be left without one.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter counts requests per key in fixed Redis windows so limits are
// shared across instances.
type RateLimiter struct {
	redis   *redis.Client
	config  *RateLimitConfig
	prefix  string
	metrics *observability.Metrics
	logger  *observability.Logger
	proxies []netip.Prefix
}

// NewRateLimiter creates a Redis-backed rate limiter. A nil client yields a
// limiter that allows everything.
func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string, metrics *observability.Metrics, logger *observability.Logger) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	proxies, err := ParseTrustedProxies(config.TrustedProxies)
	if err != nil {
		logger.WithError(err).Warn("Ignoring invalid trusted proxies, forwarded headers will not be used")
		proxies = nil
	}

	return &RateLimiter{
		redis:   redisClient,
		config:  config,
		prefix:  prefix,
		metrics: metrics,
		logger:  logger.WithField("component", "ratelimit"),
		proxies: proxies,
	}
}

// ParseTrustedProxies parses IPs and CIDRs into prefixes. A bare IP matches
// only itself.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (rl *RateLimiter) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", rl.prefix, scope, key)
}

// Allow records a request for key and reports whether it is within the
// limit, with the requests left in the window. On Redis errors it allows the
// request and returns the error.
func (rl *RateLimiter) Allow(ctx context.Context, scope, key string) (bool, int, error) {
	if rl.redis == nil {
		return true, rl.config.RequestsPerWindow, nil
	}
	redisKey := rl.key(scope, key)

	n, err := incrWindow.Run(ctx, rl.redis, []string{redisKey}, rl.config.WindowDuration.Milliseconds()).Int64()
	if err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}

	count := int(n)
	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.RequestsPerWindow, remaining, nil
}

// TTL returns the time until the window for key resets
func (rl *RateLimiter) TTL(ctx context.Context, scope, key string) (time.Duration, error) {
	if rl.redis == nil {
		return 0, nil
	}
	return rl.redis.TTL(ctx, rl.key(scope, key)).Result()
}

// Reset clears the window for key
func (rl *RateLimiter) Reset(ctx context.Context, scope, key string) error {
	if rl.redis == nil {
		return nil
	}
	return rl.redis.Del(ctx, rl.key(scope, key)).Err()
}

// HealthCheck verifies Redis connectivity for rate limiting
func (rl *RateLimiter) HealthCheck(ctx context.Context) error {
	if rl.redis == nil {
		return nil
	}
	return rl.redis.Ping(ctx).Err()
}

// Middleware limits requests per client IP under scope. Requests go through
// when Redis is unavailable.
func (rl *RateLimiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := rl.clientIP(r)

			allowed, remaining, err := rl.Allow(ctx, scope, key)
			if err != nil {
				rl.logger.WithError(err).WithField("scope", scope).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				rl.rateLimitExceeded(ctx, w, scope, key)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) rateLimitExceeded(ctx context.Context, w http.ResponseWriter, scope, key string) {
	if rl.metrics != nil {
		rl.metrics.RateLimitedTotal.WithLabelValues(scope).Inc()
	}

	retryAfter := rl.config.WindowDuration
	if ttl, err := rl.TTL(ctx, scope, key); err == nil && ttl > 0 {
		retryAfter = ttl
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	httputil.WriteTooManyRequests(w, "Too many requests, please try again later")
}

// clientIP returns the address requests are counted under. Forwarded
// headers are only read when the connection comes from a trusted proxy; the
// client is then the right-most X-Forwarded-For hop that is not itself a
// trusted proxy, falling back to X-Real-IP.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !rl.trusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !rl.trusted(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func (rl *RateLimiter) trusted(host string) bool {
	if len(rl.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range rl.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
