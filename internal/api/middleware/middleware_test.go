package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Cache ---

type mockCache struct {
	counter int64
	keys    []string
	err     error
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ string) error                         { return nil }
func (m *mockCache) Exists(_ context.Context, _ string) (bool, error)                 { return false, nil }
func (m *mockCache) Ping(_ context.Context) error                                     { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.keys = append(m.keys, key)
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func withClient(r *http.Request, id string) *http.Request {
	return r.WithContext(mw.SetClientID(r.Context(), id))
}

// ========================================
// Identify Middleware Tests
// ========================================

var testProxies = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/24"),
	netip.MustParsePrefix("fd00::/8"),
}

func identify(t *testing.T, trusted []netip.Prefix, remote string, headers map[string]string) string {
	t.Helper()
	var got string
	handler := mw.Identify(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = mw.GetClientID(r)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, nil, "10.0.0.5:51234", "10.0.0.5"},
		{"remote without port", nil, nil, "pipe", "pipe"},
		{"headers ignored without trusted proxies", nil, map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.2"}, "192.0.2.4:80", "192.0.2.4"},
		{"headers ignored from untrusted peer", testProxies, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.4:80", "192.0.2.4"},
		{"trusted proxy forwards client", testProxies, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.1:80", "203.0.113.7"},
		{"nearest untrusted hop wins", testProxies, map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.7, 10.0.0.2"}, "10.0.0.1:80", "203.0.113.7"},
		{"all hops trusted", testProxies, map[string]string{"X-Forwarded-For": "10.0.0.3, 10.0.0.2"}, "10.0.0.1:80", "10.0.0.3"},
		{"real ip from trusted proxy", testProxies, map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:80", "198.51.100.2"},
		{"trusted ipv6 proxy", testProxies, map[string]string{"X-Forwarded-For": "203.0.113.9"}, "[fd00::1]:443", "203.0.113.9"},
		{"trusted proxy without headers", testProxies, nil, "10.0.0.1:80", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identify(t, tt.trusted, tt.remote, tt.headers))
		})
	}
}

func TestIdentify_SpoofedHeadersShareOneRateLimitKey(t *testing.T) {
	mc := &mockCache{}
	handler := mw.Identify(testProxies)(mw.NewRateLimit(mc, 60).Limit(okHandler()))

	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest("POST", "/api/tools/text_to_image/create", nil)
		req.RemoteAddr = "192.0.2.9:5555"
		req.Header.Set("X-Forwarded-For", spoofed)
		req.Header.Set("X-Real-IP", spoofed)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, mc.keys, 3)
	assert.Equal(t, []string{"ratelimit:192.0.2.9", "ratelimit:192.0.2.9", "ratelimit:192.0.2.9"}, mc.keys)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{counter: 0}
	rl := mw.NewRateLimit(mc, 60)
	handler := rl.Limit(okHandler())

	req := withClient(httptest.NewRequest("POST", "/test", nil), "203.0.113.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:203.0.113.7"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	rl := mw.NewRateLimit(mc, 60)
	handler := rl.Limit(okHandler())

	req := withClient(httptest.NewRequest("POST", "/test", nil), "203.0.113.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_FailsOpenOnCacheError(t *testing.T) {
	mc := &mockCache{counter: 100, err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := withClient(httptest.NewRequest("POST", "/test", nil), "203.0.113.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_NoClientID_PassThrough(t *testing.T) {
	mc := &mockCache{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := withClient(httptest.NewRequest("GET", "/test", nil), "c1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}
