package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorLimits tracks one token-bucket limiter per client IP. Entries unseen
// for ten minutes are evicted so bursts of one-off webhook callers do not
// grow the map forever.
type visitorLimits struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newVisitorLimits(perSecond float64, burst int) *visitorLimits {
	vl := &visitorLimits{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
	go vl.evictLoop()
	return vl
}

func (vl *visitorLimits) allow(ip string) bool {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	v, ok := vl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(vl.rate, vl.burst)}
		vl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (vl *visitorLimits) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		vl.mu.Lock()
		for ip, v := range vl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(vl.visitors, ip)
			}
		}
		vl.mu.Unlock()
	}
}

// RateLimit returns an HTTP middleware that rejects requests exceeding
// perSecond requests/sec (with the given burst) per client IP with
// 429 Too Many Requests.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limits := newVisitorLimits(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limits.allow(ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
