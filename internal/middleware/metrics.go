package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/bryanwahyu/modelscan-sec/internal/metrics"
)

// MetricsMiddleware counts every request into the process-wide counters.
// Redirect (3xx) masih dihitung sukses.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RequestsTotal.Add(1)
		metrics.RequestsInProgress.Add(1)
		defer metrics.RequestsInProgress.Add(-1)

		wrapped := capture(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.status >= 200 && wrapped.status < 400 {
			metrics.RequestsSuccess.Add(1)
		} else {
			metrics.RequestsFailed.Add(1)
		}
	})
}

// MetricsHandler serves the counter snapshot on /metrics.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics.Snapshot())
}
