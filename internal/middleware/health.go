package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

const (
	healthOK  = "healthy"
	healthBad = "unhealthy"

	perCheckTimeout = 2 * time.Second
	allChecksBudget = 5 * time.Second
)

// HealthChecker is satisfied by every dependency probed on /health.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a plain function into a HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings an sql.DB pool.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, perCheckTimeout)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// CheckStatus reports one dependency.
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler runs every registered checker and reports aggregate
// health. Satu dependency tumbang berarti 503, tapi semua check tetap
// dilaporkan di body.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), allChecksBudget)
		defer cancel()

		report := evaluate(ctx, checkers)

		code := http.StatusOK
		if report.Status != healthOK {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	}
}

func evaluate(ctx context.Context, checkers map[string]HealthChecker) HealthStatus {
	report := HealthStatus{
		Status:    healthOK,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckStatus, len(checkers)),
	}
	for name, c := range checkers {
		if err := c.Check(ctx); err != nil {
			report.Status = healthBad
			report.Checks[name] = CheckStatus{Status: healthBad, Message: err.Error()}
			continue
		}
		report.Checks[name] = CheckStatus{Status: healthOK}
	}
	return report
}
