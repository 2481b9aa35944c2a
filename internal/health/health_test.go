package health_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/spacetime/internal/health"
)

type stubChecker struct{ err error }

func (s stubChecker) Ready() error { return s.err }

func TestHealthHandler_AlwaysReturnsOK(t *testing.T) {
	srv := health.NewServer(stubChecker{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyHandler_ReportsOKWhenCheckerHealthy(t *testing.T) {
	srv := health.NewServer(stubChecker{})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyHandler_ReportsServiceUnavailableWhenCheckerFails(t *testing.T) {
	srv := health.NewServer(stubChecker{err: errors.New("datastore not bootstrapped")})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPoll_DoesNotPanicRegardlessOfCheckerResult(t *testing.T) {
	srv := health.NewServer(stubChecker{err: errors.New("boom")})
	assert.NotPanics(t, srv.Poll)

	healthy := health.NewServer(stubChecker{})
	assert.NotPanics(t, healthy.Poll)
}
