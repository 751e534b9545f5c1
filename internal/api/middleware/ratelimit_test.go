package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsernavi/navi/internal/api/middleware"
)

func hit(handler http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/navigation/positions", http.NoBody)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(3))(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:12345", nil).Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:12345", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:12345", nil).Code, "other clients are unaffected")
}

func TestRateLimitByIP_RetryAfterFollowsWindow(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerSecond(1))(http.HandlerFunc(okHandler))

	hit(handler, "10.0.1.1:1", nil)
	rec := hit(handler, "10.0.1.1:1", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimit_DisabledPassesEverything(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{})(http.HandlerFunc(okHandler))

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, hit(handler, "10.0.2.1:1", nil).Code)
	}
}

func TestRateLimitByClient_KeysBySubject(t *testing.T) {
	svc := newTokenService(t)
	tokenA, _, err := svc.Issue("client-a", "", time.Hour)
	require.NoError(t, err)
	tokenB, _, err := svc.Issue("client-b", "", time.Hour)
	require.NoError(t, err)

	handler := middleware.Auth(svc)(middleware.RateLimitByClient(middleware.PerMinute(2))(http.HandlerFunc(okHandler)))
	headerA := http.Header{"Authorization": {"Bearer " + tokenA}}
	headerB := http.Header{"Authorization": {"Bearer " + tokenB}}

	// Both clients share an IP but have separate budgets.
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.3.1:1", headerA).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.3.1:1", headerA).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.3.1:1", headerA).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.3.1:1", headerB).Code)
}
