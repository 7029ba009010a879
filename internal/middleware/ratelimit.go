package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiterMiddleware holds one limiter per client address.
type RateLimiterMiddleware struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	// Rate is the number of events per second.
	rate rate.Limit
	// Burst is the burst size.
	burst int
	// trusted proxies may set X-Forwarded-For.
	trusted []netip.Prefix
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(r rate.Limit, b int) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

// Middleware rejects clients that exceed their rate with 429.
func (rl *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := rl.clientAddr(r)

		rl.mu.Lock()
		limiter, exists := rl.limiters[client]
		if !exists {
			limiter = rate.NewLimiter(rl.rate, rl.burst)
			rl.limiters[client] = limiter
		}
		rl.mu.Unlock()

		if !limiter.Allow() {
			log.WithFields(log.Fields{"client": client, "path": r.URL.Path}).Warn("rate limit exceeded")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithTrustedProxies accepts addresses or CIDR ranges of reverse proxies
// whose X-Forwarded-For header identifies the client.
func (rl *RateLimiterMiddleware) WithTrustedProxies(proxies ...string) *RateLimiterMiddleware {
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(p); err == nil {
			rl.trusted = append(rl.trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(p); err == nil {
			addr = addr.Unmap()
			rl.trusted = append(rl.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		log.Warnf("ignoring invalid trusted proxy %q", p)
	}
	return rl
}

func (rl *RateLimiterMiddleware) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr keys on the peer address. X-Forwarded-For is only read when the
// peer is a trusted proxy, taking the rightmost hop that isn't one.
func (rl *RateLimiterMiddleware) clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !rl.isTrusted(host) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !rl.isTrusted(hop) {
			return hop
		}
	}
	return host
}
