package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/casegen/internal/errors"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandler_Healthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("backend", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["backend"])
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("backend", stubChecker{err: errors.New("down")})
	manager.RegisterChecker("registry", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, "unhealthy", checks["backend"])
	assert.Equal(t, "healthy", checks["registry"])
}

func TestHealthHandler_TimeoutIsDegraded(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("backend", stubChecker{err: context.DeadlineExceeded})

	rec := httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "timeout", resp.Checks["backend"])
}

func TestDetermineOverallStatus(t *testing.T) {
	manager := NewHealthManager("dev")
	tests := []struct {
		name   string
		checks map[string]string
		want   string
	}{
		{name: "no checks", checks: nil, want: "healthy"},
		{name: "timeout", checks: map[string]string{"db": "timeout"}, want: "degraded"},
		{name: "unhealthy wins", checks: map[string]string{"a": "timeout", "b": "unhealthy"}, want: "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, manager.determineOverallStatus(tt.checks))
		})
	}
}

func TestGlobalHandlers(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	handlers := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"HealthHandler", HealthHandler},
		{"LivenessHandler", LivenessHandler},
		{"ReadinessHandler", ReadinessHandler},
		{"StartupHandler", StartupHandler},
	}

	t.Run("not initialized", func(t *testing.T) {
		globalHealthManager = nil
		assert.Nil(t, GetHealthManager())
		for _, h := range handlers {
			rec := httptest.NewRecorder()
			h.handler(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, h.name)
		}
	})

	t.Run("initialized", func(t *testing.T) {
		m := InitHealthManager("test-version")
		assert.Same(t, m, GetHealthManager())
		for _, h := range handlers {
			rec := httptest.NewRecorder()
			h.handler(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusOK, rec.Code, h.name)
		}
	})
}
