package restapi

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/models"
)

const (
	// networkRequestCost is charged for a network rollup, which reads
	// every feed of the requested modes.
	networkRequestCost = 5

	idleBucketTTL   = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimitMiddleware keeps one token bucket per API key. Requests without
// a key are bucketed by client address.
type RateLimitMiddleware struct {
	mu       sync.RWMutex
	limiters map[string]*bucket

	rateLimit  rate.Limit
	burstSize  int
	exemptKeys map[string]bool
	clock      clock.Clock

	cleanupTick *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewRateLimitMiddleware allows ratePerSecond requests per interval per
// caller, with the same number as burst. A negative rate disables limiting
// and zero rejects everything.
func NewRateLimitMiddleware(ratePerSecond int, interval time.Duration, exemptKeys []string, clock clock.Clock) *RateLimitMiddleware {
	limit := rate.Inf
	switch {
	case ratePerSecond == 0:
		limit = 0
	case ratePerSecond > 0:
		limit = rate.Every(interval / time.Duration(ratePerSecond))
	}

	exempt := make(map[string]bool, len(exemptKeys))
	for _, key := range exemptKeys {
		if k := strings.TrimSpace(key); k != "" {
			exempt[k] = true
		}
	}

	rl := &RateLimitMiddleware{
		limiters:    make(map[string]*bucket),
		rateLimit:   limit,
		burstSize:   ratePerSecond,
		exemptKeys:  exempt,
		clock:       clock,
		cleanupTick: time.NewTicker(cleanupInterval),
		stopChan:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Handler limits requests at a cost of one token each.
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.HandlerWithCost(1)
}

// HandlerWithCost charges cost tokens per request. Costs above the burst
// are charged as the whole burst, so an expensive route stays reachable.
func (rl *RateLimitMiddleware) HandlerWithCost(cost int) func(http.Handler) http.Handler {
	cost = max(1, min(cost, rl.burstSize))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.URL.Query().Get("key")
			if rl.exemptKeys[apiKey] {
				next.ServeHTTP(w, r)
				return
			}

			now := rl.clock.Now()
			limiter := rl.getLimiter(bucketKey(r, apiKey), now)
			if !limiter.AllowN(now, cost) {
				rl.sendRateLimitExceeded(w, r, cost)
				return
			}
			if rl.rateLimit != rate.Inf {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, int(limiter.TokensAt(now)))))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bucketKey is the API key when one is sent, otherwise the client host.
func bucketKey(r *http.Request, apiKey string) string {
	if apiKey != "" {
		return "key:" + apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (rl *RateLimitMiddleware) getLimiter(key string, now time.Time) *rate.Limiter {
	rl.mu.RLock()
	b, ok := rl.limiters[key]
	rl.mu.RUnlock()
	if !ok {
		rl.mu.Lock()
		// may have been created while waiting for the write lock
		if b, ok = rl.limiters[key]; !ok {
			b = &bucket{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
			rl.limiters[key] = b
		}
		rl.mu.Unlock()
	}
	b.lastSeen.Store(now.UnixNano())
	return b.limiter
}

// retryAfter is how long until cost tokens are back, in whole seconds.
func (rl *RateLimitMiddleware) retryAfter(cost int) int {
	switch rl.rateLimit {
	case 0:
		return int(time.Hour.Seconds())
	case rate.Inf:
		return 1
	}
	wait := time.Duration(float64(cost) * float64(time.Second) / float64(rl.rateLimit))
	return max(1, int(math.Ceil(wait.Seconds())))
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request, cost int) {
	seconds := rl.retryAfter(cost)
	logging.FromContext(r.Context()).Info("rate_limited",
		slog.String("route", r.Pattern),
		slog.Int("cost", cost),
		slog.Int("retry_after_s", seconds))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	response := models.NewErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", rl.clock)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode rate limit response", err)
	}
}

// cleanupOnce drops buckets idle for longer than idleBucketTTL.
func (rl *RateLimitMiddleware) cleanupOnce() {
	cutoff := rl.clock.Now().Add(-idleBucketTTL).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.limiters {
		if seen := b.lastSeen.Load(); seen != 0 && seen < cutoff {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.cleanupTick.Stop()
	})
}
