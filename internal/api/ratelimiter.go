package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the per-client limiter cache; the least recently
// seen client is evicted first.
const maxTrackedClients = 4096

type rateLimiter interface {
	Allow(key string) bool
}

// clientLimiter keeps one token bucket per client key.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients *lru.Cache[string, *rate.Limiter]
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	// lru.New only fails for a non-positive size.
	clients, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &clientLimiter{
		limit:   rate.Limit(ratePerSecond),
		burst:   burst,
		clients: clients,
	}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil || l.clients == nil {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(key, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *clientLimiter) retryAfterSeconds() int {
	if l == nil || l.limit <= 0 {
		return 1
	}
	secs := int(1/float64(l.limit) + 0.999)
	return max(secs, 1)
}

func rateLimitMiddleware(limiter rateLimiter, trustForwarded bool, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(clientKey(r, trustForwarded)) {
			next.ServeHTTP(w, r)
			return
		}
		retry := 1
		if cl, ok := limiter.(*clientLimiter); ok {
			retry = cl.retryAfterSeconds()
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}

// clientKey identifies the caller by the remote host. With trustForwarded
// the first X-Forwarded-For hop wins when present; the header is client
// controlled, so this is only sound behind a proxy that overwrites it.
func clientKey(r *http.Request, trustForwarded bool) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustForwarded && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" && !strings.EqualFold(first, "unknown") {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
