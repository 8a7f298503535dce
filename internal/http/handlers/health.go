package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs the configured dependency checks. Any failure answers 503
// with status "degraded".
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	report := healthReport{Status: "ok"}
	if len(a.healthChecks) == 0 {
		a.json(w, http.StatusOK, report)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	report.Checks = make(map[string]string, len(a.healthChecks))
	for name, check := range a.healthChecks {
		if err := check(ctx); err != nil {
			a.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
			report.Checks[name] = "down"
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Checks[name] = "up"
	}
	a.json(w, status, report)
}
