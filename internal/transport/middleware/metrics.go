package middleware

import (
	"net/http"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/metrics"
)

// Metrics records request count, latency and in-flight requests per route.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			m.InFlight(1)
			defer m.InFlight(-1)

			next.ServeHTTP(sw, r)
			m.ObserveHTTP(routePattern(r), r.Method, sw.status, start)
		})
	}
}
