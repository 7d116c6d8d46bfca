package middleware

import (
	stdjson "encoding/json"
	stdhttp "net/http"
	"strconv"
	"sync"
	"time"

	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/logger"
	pnet "nafbridge/internal/platform/net"
)

// RateLimitOptions configures the per-peer sliding window limiter
type RateLimitOptions struct {
	// Limit is the max requests per Window per peer
	Limit int

	// Window is the sliding interval, default 1 minute
	Window time.Duration

	// Clock is swappable for tests, defaults to the system clock
	Clock clock.Clock
}

type peerWindow struct {
	// hits holds request timestamps inside the current window, oldest first
	hits []time.Time
}

// RateLimiter tracks request timestamps per peer and rejects over-limit
// requests with 429 and a retry_after hint in seconds
type RateLimiter struct {
	mu    sync.Mutex
	peers map[string]*peerWindow

	limit  int
	window time.Duration
	clk    clock.Clock
}

// NewRateLimiter builds a limiter with defaults applied
func NewRateLimiter(o RateLimitOptions) *RateLimiter {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Window <= 0 {
		o.Window = time.Minute
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	return &RateLimiter{
		peers:  make(map[string]*peerWindow),
		limit:  o.Limit,
		window: o.Window,
		clk:    o.Clock,
	}
}

// Allow records a hit for peer and reports whether it is within limit.
// When rejected it returns the whole seconds until the oldest hit expires,
// clamped to at least 1
func (rl *RateLimiter) Allow(peer string) (ok bool, retryAfter int) {
	now := rl.clk.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	pw := rl.peers[peer]
	if pw == nil {
		pw = &peerWindow{}
		rl.peers[peer] = pw
	}

	// drop entries that slid out of the window
	i := 0
	for i < len(pw.hits) && !pw.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		pw.hits = append(pw.hits[:0], pw.hits[i:]...)
	}

	if len(pw.hits) >= rl.limit {
		wait := pw.hits[0].Add(rl.window).Sub(now)
		secs := int(wait.Seconds())
		if wait > time.Duration(secs)*time.Second {
			secs++
		}
		if secs < 1 {
			secs = 1
		}
		return false, secs
	}

	pw.hits = append(pw.hits, now)
	return true, 0
}

// Sweep drops peers with no hits inside the window, call periodically
func (rl *RateLimiter) Sweep() {
	cutoff := rl.clk.Now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for peer, pw := range rl.peers {
		if len(pw.hits) == 0 || !pw.hits[len(pw.hits)-1].After(cutoff) {
			delete(rl.peers, peer)
		}
	}
}

type limitWire struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
	RequestID  string `json:"request_id,omitempty"`
}

// Middleware keys the limiter by peer IP and rejects with a JSON 429
func (rl *RateLimiter) Middleware(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		peer := pnet.PeerIP(r)
		ok, retryAfter := rl.Allow(peer)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		reqID := pnet.RequestID(r.Context())
		logger.C(r.Context()).Warn().
			Str("peer", peer).
			Int("retry_after", retryAfter).
			Msg("rate limit exceeded")

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		if reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		w.WriteHeader(stdhttp.StatusTooManyRequests)
		_ = stdjson.NewEncoder(w).Encode(limitWire{
			StatusCode: stdhttp.StatusTooManyRequests,
			Status:     stdhttp.StatusText(stdhttp.StatusTooManyRequests),
			Error:      "rate limit exceeded",
			RetryAfter: retryAfter,
			RequestID:  reqID,
		})
	})
}
