package middleware_test

import (
	"testing"
	"time"

	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/net/middleware"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{Limit: 100, Window: time.Minute, Clock: clk})

	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("10.0.0.1")
		if !ok {
			t.Fatalf("request %d unexpectedly rejected", i+1)
		}
		clk.Advance(10 * time.Millisecond)
	}

	ok, retryAfter := rl.Allow("10.0.0.1")
	if ok {
		t.Fatalf("101st request should be rejected")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Fatalf("retryAfter out of range: %d", retryAfter)
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{Limit: 2, Window: time.Minute, Clock: clk})

	if ok, _ := rl.Allow("p"); !ok {
		t.Fatalf("first request rejected")
	}
	clk.Advance(30 * time.Second)
	if ok, _ := rl.Allow("p"); !ok {
		t.Fatalf("second request rejected")
	}
	if ok, _ := rl.Allow("p"); ok {
		t.Fatalf("third request should be rejected")
	}

	// first hit expires at t0+60s, only one slot frees up
	clk.Advance(31 * time.Second)
	if ok, _ := rl.Allow("p"); !ok {
		t.Fatalf("request after window slide rejected")
	}
	if ok, _ := rl.Allow("p"); ok {
		t.Fatalf("over-limit request after slide should be rejected")
	}
}

func TestRateLimiterPerPeerIsolation(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{Limit: 1, Window: time.Minute, Clock: clk})

	if ok, _ := rl.Allow("a"); !ok {
		t.Fatalf("peer a first request rejected")
	}
	if ok, _ := rl.Allow("a"); ok {
		t.Fatalf("peer a second request should be rejected")
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Fatalf("peer b should have its own window")
	}
}

func TestRateLimiterSweepDropsIdlePeers(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{Limit: 1, Window: time.Minute, Clock: clk})

	rl.Allow("idle")
	clk.Advance(2 * time.Minute)
	rl.Sweep()

	if ok, _ := rl.Allow("idle"); !ok {
		t.Fatalf("swept peer should start a fresh window")
	}
}
