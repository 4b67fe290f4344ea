package geocode

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/citypulse-labs/citypulse/internal/resilience"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

// newTestClient returns a geocoder pointed at srv with rate limiting disabled.
func newTestClient(srv *httptest.Server, opts ...Option) *geocoder {
	opts = append([]Option{WithBaseURL(srv.URL), WithRetry(fastRetry())}, opts...)
	g := NewClient(opts...).(*geocoder)
	g.limiter = newTestLimiter()
	return g
}

// nominatimServer serves body for every request and counts calls.
func nominatimServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}
