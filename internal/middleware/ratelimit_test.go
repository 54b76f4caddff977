package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter() (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter()
	rl.now = clock.now
	return rl, clock
}

var fivePerMinute = Budget{Limit: 5, Period: time.Minute}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow("key", fivePerMinute); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, wait := rl.Allow("key", fivePerMinute)
	if ok {
		t.Error("6th request should be denied")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 1m", wait)
	}
	if ok, _ := rl.Allow("other", fivePerMinute); !ok {
		t.Error("other key should have its own window")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl, clock := newTestLimiter()
	b := Budget{Limit: 3, Period: 10 * time.Second}

	for i := 0; i < 3; i++ {
		rl.Allow("key", b)
	}
	clock.t = clock.t.Add(4 * time.Second)
	ok, wait := rl.Allow("key", b)
	if ok {
		t.Error("should be blocked within window")
	}
	if wait != 6*time.Second {
		t.Errorf("wait = %v, want 6s", wait)
	}

	clock.t = clock.t.Add(6 * time.Second)
	if ok, _ := rl.Allow("key", b); !ok {
		t.Error("should be allowed once the window ends")
	}
}

func TestRateLimiterZeroBudgetDenies(t *testing.T) {
	rl, _ := newTestLimiter()
	if ok, _ := rl.Allow("key", Budget{Limit: 0, Period: time.Minute}); ok {
		t.Error("zero budget should deny")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter()

	rl.Allow("expired", Budget{Limit: 5, Period: 10 * time.Second})
	clock.t = clock.t.Add(15 * time.Second)
	rl.Allow("active", fivePerMinute)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.windows["expired"]; ok {
		t.Error("expired window should have been cleaned up")
	}
	if _, ok := rl.windows["active"]; !ok {
		t.Error("active window should still exist")
	}
}

func TestRateLimiterRunStopsWithContext(t *testing.T) {
	rl := NewRateLimiter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLimitScopesAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	prompt := rl.Limit("prompt", Budget{Limit: 2, Period: time.Minute})(ok)
	read := rl.Limit("read", Budget{Limit: 2, Period: time.Minute})(ok)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		prompt.ServeHTTP(rec, httptest.NewRequest("POST", "/api/prompt", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	prompt.ServeHTTP(rec, httptest.NewRequest("POST", "/api/prompt", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}

	rec = httptest.NewRecorder()
	read.ServeHTTP(rec, httptest.NewRequest("GET", "/api/leaderboard", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("read scope status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestLimitKeysByClient(t *testing.T) {
	rl, _ := newTestLimiter()
	h := rl.Limit("read", Budget{Limit: 1, Period: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/api/leaderboard", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", ip, rec.Code, http.StatusOK)
		}
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := RealIP(req); got != "10.0.0.1" {
		t.Errorf("RealIP = %q, want %q", got, "10.0.0.1")
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := RealIP(req); got != "203.0.113.7" {
		t.Errorf("RealIP = %q, want %q", got, "203.0.113.7")
	}

	req.Header.Set("CF-Connecting-IP", "198.51.100.2")
	if got := RealIP(req); got != "198.51.100.2" {
		t.Errorf("RealIP = %q, want %q", got, "198.51.100.2")
	}
}
