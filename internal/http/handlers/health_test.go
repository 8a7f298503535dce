package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHealthWithoutChecks(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestApp(&fakeDrawer{}).Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthReportsEachDependency(t *testing.T) {
	var sawDeadline bool
	app := NewApp(Options{
		HealthChecks: map[string]HealthCheck{
			"postgres": func(ctx context.Context) error {
				_, sawDeadline = ctx.Deadline()
				return nil
			},
			"redis": func(context.Context) error { return nil },
		},
		Logger: zerolog.Nop(),
	})

	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","checks":{"postgres":"up","redis":"up"}}`, rec.Body.String())
	require.True(t, sawDeadline)
}

func TestHealthDegradedWhenDependencyDown(t *testing.T) {
	app := NewApp(Options{
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
		},
		Logger: zerolog.Nop(),
	})

	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded","checks":{"postgres":"up","redis":"down"}}`, rec.Body.String())
}
