package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serve(origins []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, reached
}

func TestCORSWildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/start", nil)
	req.Header.Set("Origin", "chrome-extension://abc")

	w, reached := serve([]string{"*"}, req)

	assert.True(t, reached)
	assert.Equal(t, "chrome-extension://abc", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSExplicitOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/session/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	w, _ := serve([]string{"http://localhost:5173/"}, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/session/x", nil)
	req.Header.Set("Origin", "https://evil.example")

	w, reached := serve([]string{"http://localhost:5173"}, req)

	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSNoOriginHeader(t *testing.T) {
	w, reached := serve([]string{"*"}, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/start", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w, reached := serve([]string{"*"}, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}
