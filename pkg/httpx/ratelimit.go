package httpx

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket refilling Requests per Window, holding at
// most Burst tokens. Field tags let it be embedded in env-parsed config.
type RateLimitConfig struct {
	Requests int           `env:"REQUESTS"`
	Window   time.Duration `env:"WINDOW"`
	Burst    int           `env:"BURST"`
}

var (
	// CredentialLimit guards endpoints that accept secrets (login, refresh).
	CredentialLimit = RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5}

	// SessionLimit guards cheap authenticated or idempotent endpoints.
	SessionLimit = RateLimitConfig{Requests: 100, Window: time.Minute, Burst: 100}
)

// OrDefault fills zero fields of c from def.
func (c RateLimitConfig) OrDefault(def RateLimitConfig) RateLimitConfig {
	if c.Requests <= 0 {
		c.Requests = def.Requests
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
	return c
}

// KeyExtractor groups requests into rate limit buckets.
type KeyExtractor func(*http.Request) string

// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP headers
// are believed. Requests from any other peer are keyed on RemoteAddr.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR prefixes ("10.0.0.0/8") and bare
// addresses ("127.0.0.1").
func ParseTrustedProxies(specs []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if strings.Contains(spec, "/") {
			p, err := netip.ParsePrefix(spec)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", spec, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", spec, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Contains reports whether addr is one of the trusted proxies.
func (t TrustedProxies) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIPKeyExtractor keys on the client IP. Forwarding headers are only
// read when the direct peer is trusted; X-Forwarded-For is walked from the
// right and the first hop that is not itself a trusted proxy wins.
func ClientIPKeyExtractor(trusted TrustedProxies) KeyExtractor {
	return func(r *http.Request) string {
		peer := remoteHost(r.RemoteAddr)
		peerAddr, err := netip.ParseAddr(peer)
		if err != nil || !trusted.Contains(peerAddr) {
			return peer
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
				if err != nil {
					break
				}
				if i == 0 || !trusted.Contains(hop) {
					return hop.Unmap().String()
				}
			}
		}
		if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return xri.Unmap().String()
		}
		return peer
	}
}

// IPKeyExtractor keys on the direct peer address and ignores forwarding
// headers.
func IPKeyExtractor(r *http.Request) string {
	return remoteHost(r.RemoteAddr)
}

func remoteHost(remoteAddr string) string {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}

// UserIDKeyExtractor keys on the authenticated subject, or "" when anonymous.
func UserIDKeyExtractor(r *http.Request) string {
	if userID, ok := r.Context().Value(CtxKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter holds one token bucket per key.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	lastGC   time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:    cfg.Burst,
		idleTTL:  max(cfg.Window, 5*time.Minute),
		lastGC:   time.Now(),
	}
}

func (rl *rateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > rl.idleTTL {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > rl.idleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastGC = now
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimitMiddleware rejects requests with 429 once the bucket for their key
// is empty. Requests without a key pass through.
func RateLimitMiddleware(cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	cfg = cfg.OrDefault(SessionLimit)
	rl := newRateLimiter(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			limiter := rl.get(key, now)
			if limiter.AllowN(now, 1) {
				next.ServeHTTP(w, r)
				return
			}

			res := limiter.ReserveN(now, 1)
			retryAfter := max(int(res.DelayFrom(now).Seconds()), 1)
			res.CancelAt(now)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			log.Warn("rate limit exceeded", "key", key, "path", r.URL.Path, "retry_after", retryAfter)
			WriteError(w, http.StatusTooManyRequests, KindRateLimited, "Too many requests. Please try again later.")
		})
	}
}

// RateLimitByIP limits by client IP, trusting forwarding headers only from
// the given proxies.
func RateLimitByIP(cfg RateLimitConfig, trusted TrustedProxies) Middleware {
	return RateLimitMiddleware(cfg, ClientIPKeyExtractor(trusted))
}

// RateLimitByUser limits by authenticated user, falling back to IP.
func RateLimitByUser(cfg RateLimitConfig, trusted TrustedProxies) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", UserIDKeyExtractor, ClientIPKeyExtractor(trusted)))
}
