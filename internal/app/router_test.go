package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tricktime/tricktime/internal/checkout"
	"github.com/tricktime/tricktime/internal/observability"
)

func testRouter(cfg *Config) http.Handler {
	return NewRouter(RouterParams{
		Config:          cfg,
		Metrics:         observability.NewMetrics(),
		CheckoutHandler: checkout.NewHandler(checkout.NewService(checkout.Config{}, nil, nil, nil), nil),
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&Config{AppEnv: "test"}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, FunctionsPrefix+"/create-checkout", nil)
	req.Header.Set("Origin", "https://tricktime.vercel.app")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type, apikey, x-client-info")
	rec := httptest.NewRecorder()
	testRouter(&Config{AppEnv: "test"}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "apikey")
}

func TestPublicFunctionsAreRateLimited(t *testing.T) {
	router := testRouter(&Config{AppEnv: "test", RateLimitPerMinute: 1})
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, FunctionsPrefix+"/create-checkout", strings.NewReader(`{"email":"a@b.com"}`))
		req.RemoteAddr = "203.0.113.7:4242"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusInternalServerError, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(&Config{AppEnv: "test"})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tricktime_http_requests_total{code="200",route="/healthz"}`)
}
