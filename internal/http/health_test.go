package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping() error { return f.err }

func newHealthRouter(p DBPinger) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/healthz", newHealthHandler(encoder{}, p).Routes)
	return r
}

func TestHealthHandler_Liveness(t *testing.T) {
	router := newHealthRouter(fakePinger{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/healthz/liveness", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHealthHandler_Readiness(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		router := newHealthRouter(fakePinger{})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/healthz/readiness", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("database unreachable", func(t *testing.T) {
		router := newHealthRouter(fakePinger{err: errors.New("connection refused")})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/healthz/readiness", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), "Unhealthy")
	})
}
