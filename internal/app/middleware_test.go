package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStackRouter(t *testing.T, cfg MiddlewareConfig) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(cfg) {
		r.Use(mw)
	}
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	return r
}

func TestMiddlewareStackServesWithNilLogger(t *testing.T) {
	r := newStackRouter(t, MiddlewareConfig{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() { r.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareStackSetsSecureHeaders(t *testing.T) {
	r := newStackRouter(t, MiddlewareConfig{Config: &Config{AppEnv: "development"}})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
}
