package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AllowsThenBlocks(t *testing.T) {
	now := time.Date(2025, 8, 18, 8, 0, 0, 0, time.UTC)
	l := newLimiter(rate.Limit(1), 2, 10*time.Minute)
	l.now = func() time.Time { return now }
	h := rateLimit(l)(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != 200 {
			t.Fatalf("want 200 got %d", rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != 429 {
		t.Fatalf("want 429 got %d", rr.Code)
	}

	// another client has its own bucket
	other := httptest.NewRequest("GET", "/", nil)
	other.RemoteAddr = "5.6.7.8:1234"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, 200, rr.Code)

	now = now.Add(1100 * time.Millisecond)
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	if rr2.Code != 200 {
		t.Fatalf("want 200 after refill got %d", rr2.Code)
	}
}

func TestRateLimit_ForgetsIdleClients(t *testing.T) {
	now := time.Date(2025, 8, 18, 8, 0, 0, 0, time.UTC)
	l := newLimiter(rate.Limit(1), 1, time.Minute)
	l.now = func() time.Time { return now }

	l.allow("a")
	l.allow("b")
	assert.Equal(t, 2, l.size())

	now = now.Add(2 * time.Minute)
	l.allow("c")
	assert.Equal(t, 1, l.size())
}

func TestRateLimit_DisabledAndForwardedFor(t *testing.T) {
	h := RateLimit(0, 0)(okHandler())
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, 200, rr.Code)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 172.16.0.1")
	assert.Equal(t, "10.0.0.9", clientIP(req))
}
