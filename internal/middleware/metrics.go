package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestObserver records served requests. Implemented by metrics.Metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, code int, d time.Duration)
}

// InFlightGauge tracks concurrent requests.
type InFlightGauge interface {
	Inc()
	Dec()
}

// Metrics labels requests by their chi route pattern, never by raw path, so
// project and job ids do not explode label cardinality.
func Metrics(obs RequestObserver, inFlight InFlightGauge) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if inFlight != nil {
				inFlight.Inc()
				defer inFlight.Dec()
			}
			start := time.Now()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			obs.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
