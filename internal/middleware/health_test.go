package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHealth(t *testing.T, checkers map[string]HealthChecker) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	HealthHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	return rec.Code, status
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	ok := CheckerFunc(func(ctx context.Context) error { return nil })

	code, status := runHealth(t, map[string]HealthChecker{
		"store":   ok,
		"storage": ok,
	})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["store"].Status)
	assert.Equal(t, "healthy", status.Checks["storage"].Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_FailingDependency(t *testing.T) {
	code, status := runHealth(t, map[string]HealthChecker{
		"store": CheckerFunc(func(ctx context.Context) error { return nil }),
		"db":    CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "unhealthy", status.Checks["db"].Status)
	assert.Equal(t, "connection refused", status.Checks["db"].Message)
	assert.Equal(t, "healthy", status.Checks["store"].Status)
}

func TestHealthHandler_NoCheckers(t *testing.T) {
	code, status := runHealth(t, nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Checks)
}
