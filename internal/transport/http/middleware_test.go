package httptransport

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterRejectsOverBurstPerKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	limiter := NewRateLimiter(0.001, 2, func(r *http.Request) string { return r.Header.Get("X-User") })
	handler := limiter.Wrap(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
		req.Header.Set("X-User", "alice")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
	req.Header.Set("X-User", "bob")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "buckets are per key")
}

func TestRateLimiterFallsBackToClientIP(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1, nil)
	handler := limiter.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.1:5678"

	handler.ServeHTTP(httptest.NewRecorder(), first)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	start := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	clock := start
	limiter := NewRateLimiter(1, 1, func(r *http.Request) string { return r.Header.Get("X-User") })
	limiter.now = func() time.Time { return clock }
	handler := limiter.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	hit := func(user string, at time.Duration) {
		clock = start.Add(at)
		req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
		req.Header.Set("X-User", user)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	hit("alice", 0)
	hit("bob", 5*time.Minute)
	require.Equal(t, 2, limiter.tracked())

	hit("carol", 11*time.Minute)
	require.Equal(t, 2, limiter.tracked(), "alice was idle past the window")

	hit("dave", 22*time.Minute)
	require.Equal(t, 1, limiter.tracked(), "bob and carol were idle past the window")

	for i := 0; i < 1000; i++ {
		hit(fmt.Sprintf("visitor-%d", i), 40*time.Minute+time.Duration(i)*time.Second)
	}
	hit("erin", 2*time.Hour)
	require.Equal(t, 1, limiter.tracked())
}

func TestCORSAnswersPreflight(t *testing.T) {
	called := false
	handler := CORS("http://localhost:5173")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/activities", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.False(t, called)
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
		Logging(logger),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	require.Contains(t, buf.String(), "status=418")
	require.Contains(t, buf.String(), "path=/brew")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "handler"}, order)
}
