package httpserver

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTTL is how long a client's bucket survives without requests.
const clientIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyRateLimiter provides per-key rate limiting using token buckets. Idle
// keys are swept lazily so the map stays bounded by recent clients.
type keyRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newKeyRateLimiter(reqPerSecond float64, burst int) *keyRateLimiter {
	if burst < 1 {
		burst = max(1, int(reqPerSecond))
	}
	return &keyRateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(reqPerSecond),
		burst:     burst,
		idleTTL:   clientIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow checks if the given key is within its rate limit.
func (l *keyRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.Allow()
}

func (l *keyRateLimiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.idleTTL {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}

func (l *keyRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RetryAfter returns an estimate of when the next request will be allowed.
func (l *keyRateLimiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	v, ok := l.visitors[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	reservation := v.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

// ipRateLimiter is chi middleware that rate limits by client IP. A
// non-positive rate disables it.
type ipRateLimiter struct {
	inner *keyRateLimiter
}

func newIPRateLimiter(reqPerSecond float64, burst int) *ipRateLimiter {
	if reqPerSecond <= 0 {
		return &ipRateLimiter{}
	}
	return &ipRateLimiter{inner: newKeyRateLimiter(reqPerSecond, burst)}
}

// Middleware returns a chi-compatible middleware that rate limits by IP.
func (l *ipRateLimiter) Middleware(next http.Handler) http.Handler {
	if l.inner == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr // chi RealIP middleware has already normalised this
		if !l.inner.Allow(ip) {
			retryAfter := l.inner.RetryAfter(ip)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Kind:   "rate_limited",
				Detail: "rate limit exceeded",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
