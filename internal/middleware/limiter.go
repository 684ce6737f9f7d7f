package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"restaurant-be/internal/auth"
	"restaurant-be/internal/utils"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Admin batch triggers (Strict)
	limitStrict = rate.Limit(0.2)
	burstStrict = 2

	// Booking writes contend for capacity windows
	limitBooking = rate.Limit(2)
	burstBooking = 5

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Internal / trusted services
	limitInternal = rate.Limit(100)
	burstInternal = 200
)

const visitorTTL = 3 * time.Minute

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	internalKey string

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter builds a per-identity limiter. Requests carrying internalKey
// in X-Service-Auth get the internal tier.
func NewRateLimiter(internalKey string) *RateLimiter {
	return &RateLimiter{
		internalKey: internalKey,
		visitors:    make(map[string]*visitor),
	}
}

// getVisitor retrieves or creates a rate limiter for the given key.
func (l *RateLimiter) getVisitor(key string, r rate.Limit, b int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		l.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup evicts idle visitors every interval until ctx is done.
func (l *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(time.Now())
		}
	}
}

func (l *RateLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}
}

// Middleware checks if the request is allowed by the rate limiter.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst, tier := l.resolveRateTier(r)

		var identity string
		if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
			identity = fmt.Sprintf("user:%d", userID)
		} else if deviceID := auth.ExtractDeviceID(r); deviceID != "" {
			identity = "device:" + deviceID
		} else {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			identity = "ip:" + ip
		}

		// Separate buckets per tier, e.g. "user:1:booking".
		key := fmt.Sprintf("%s:%s", identity, tier)

		if !l.getVisitor(key, limit, burst).Allow() {
			w.Header().Set("Retry-After", "1")
			utils.WriteJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// resolveRateTier determines which rate limit policy applies to the request.
func (l *RateLimiter) resolveRateTier(r *http.Request) (rate.Limit, int, string) {
	if l.internalKey != "" && auth.ExtractServiceKey(r) == l.internalKey {
		return limitInternal, burstInternal, "internal"
	}

	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/coupons/rules/") {
		return limitStrict, burstStrict, "strict"
	}

	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/orders") {
		return limitBooking, burstBooking, "booking"
	}

	return limitGeneral, burstGeneral, "general"
}
