package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle     = 10 * time.Minute
	limiterSweepLen = 1024
)

// ipLimiters keeps one token bucket per client IP.
type ipLimiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= limiterSweepLen {
			for k, v := range l.clients {
				if now.Sub(v.seen) > limiterIdle {
					delete(l.clients, k)
				}
			}
		}
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.limiter.AllowN(now, 1)
}

// RateLimit returns middleware that allows each client IP rps requests per
// second with the given burst. rps <= 0 disables limiting. It expects the
// RealIP middleware to have normalized RemoteAddr.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		l := &ipLimiters{
			limit:   rate.Limit(rps),
			burst:   burst,
			clients: make(map[string]*clientLimiter),
			now:     time.Now,
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr when there is one.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
