package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	pingErr error
	count   int64
}

func (f *fakeArchive) Ping(context.Context) error { return f.pingErr }

func (f *fakeArchive) Count(context.Context) (int64, error) { return f.count, nil }

func serveHealth(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterHealth(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthWithoutArchive(t *testing.T) {
	code, body := serveHealth(t, NewHealthHandler(func() int { return 3 }, nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 3, body["sessions"])
	assert.NotContains(t, body["checks"], "archive")
}

func TestHealthWithArchive(t *testing.T) {
	code, body := serveHealth(t, NewHealthHandler(func() int { return 0 }, &fakeArchive{count: 7}))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 7, body["archived"])
	assert.Equal(t, "ok", body["checks"].(map[string]any)["archive"])
}

func TestHealthDegradedArchive(t *testing.T) {
	code, body := serveHealth(t, NewHealthHandler(nil, &fakeArchive{pingErr: errors.New("disk gone")}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["checks"].(map[string]any)["archive"])
	assert.NotContains(t, body, "archived")
}
