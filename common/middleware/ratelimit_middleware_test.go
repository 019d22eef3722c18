package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/skylens/weathercard/common/logger"
	"github.com/skylens/weathercard/common/ratelimit"
)

// unreachableLimiter builds a limiter whose Redis connection always
// fails, to exercise the fail-open paths
func unreachableLimiter() *ratelimit.RateLimiter {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return ratelimit.NewRateLimiter(client, logger.New("error", "json"))
}

func runThrough(t *testing.T, mw echo.MiddlewareFunc, path string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	handler := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, reached
}

// TestIPRateLimitFailsOpen verifies an unreachable counter store never
// blocks requests
func TestIPRateLimitFailsOpen(t *testing.T) {
	mw := IPRateLimitMiddleware(unreachableLimiter())

	rec, reached := runThrough(t, mw, "/api/v1/cards")
	if !reached || rec.Code != http.StatusOK {
		t.Errorf("expected request allowed through, got code=%d reached=%v", rec.Code, reached)
	}
}

// TestIPRateLimitSkipsNonAPIPaths verifies health and static paths are
// never counted
func TestIPRateLimitSkipsNonAPIPaths(t *testing.T) {
	// A nil limiter would panic if the handler consulted it
	mw := IPRateLimitMiddleware(nil)

	rec, reached := runThrough(t, mw, "/health")
	if !reached || rec.Code != http.StatusOK {
		t.Errorf("expected non-API path skipped, got code=%d reached=%v", rec.Code, reached)
	}
}

// TestGlobalRateLimitFailsOpen verifies the service-wide ceiling also
// degrades to allow on limiter errors
func TestGlobalRateLimitFailsOpen(t *testing.T) {
	mw := GlobalRateLimitMiddleware(unreachableLimiter(), 1000)

	rec, reached := runThrough(t, mw, "/api/v1/cards")
	if !reached || rec.Code != http.StatusOK {
		t.Errorf("expected request allowed through, got code=%d reached=%v", rec.Code, reached)
	}
}

// TestClientIP covers forwarded-for precedence
func TestClientIP(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	if ip := clientIP(c); ip != "203.0.113.9" {
		t.Errorf("expected first forwarded hop, got %q", ip)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	c = e.NewContext(req, httptest.NewRecorder())
	if ip := clientIP(c); ip != "198.51.100.7" {
		t.Errorf("expected remote addr ip, got %q", ip)
	}
}
